package shopify

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Additional-Code/ordersync/internal/config"
)

// Credential is a validated store descriptor ready to be used for requests.
type Credential struct {
	StoreNumber int
	Domain      string
	Token       string
	APIVersion  string
}

var (
	domainLabel = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	apiVersion  = regexp.MustCompile(`^(\d{4}-\d{2}|unstable)$`)
)

// Resolver maps store selectors to credentials. Descriptors are validated once at
// construction; a broken store keeps its error and fails every resolution.
type Resolver struct {
	creds   map[int]Credential
	invalid map[int]*ConfigError
	numbers []int
}

// NewResolver validates the configured store descriptors.
func NewResolver(cfg config.Config) *Resolver {
	return newResolver(cfg.Shopify.Stores, cfg.Shopify.APIVersion, cfg.Shopify.DomainSuffix)
}

func newResolver(stores []config.StoreDescriptor, defaultVersion, suffix string) *Resolver {
	r := &Resolver{
		creds:   make(map[int]Credential, len(stores)),
		invalid: make(map[int]*ConfigError),
	}
	for _, d := range stores {
		r.numbers = append(r.numbers, d.Number)
		cred, err := validateDescriptor(d, defaultVersion, suffix)
		if err != nil {
			r.invalid[d.Number] = err
			continue
		}
		r.creds[d.Number] = cred
	}
	sort.Ints(r.numbers)
	return r
}

// Resolve accepts a store number as int or string.
func (r *Resolver) Resolve(selector any) (Credential, error) {
	n, err := ParseStore(selector)
	if err != nil {
		return Credential{}, err
	}
	if cerr, ok := r.invalid[n]; ok {
		return Credential{}, cerr
	}
	cred, ok := r.creds[n]
	if !ok {
		return Credential{}, &ConfigError{Store: strconv.Itoa(n), Reason: "store is not configured"}
	}
	return cred, nil
}

// Stores lists every configured store number, valid or not, in ascending order.
func (r *Resolver) Stores() []int {
	out := make([]int, len(r.numbers))
	copy(out, r.numbers)
	return out
}

// Valid reports whether the store resolved without error.
func (r *Resolver) Valid(store int) bool {
	_, ok := r.creds[store]
	return ok
}

// ParseStore converts a selector into a store number.
func ParseStore(selector any) (int, error) {
	switch v := selector.(type) {
	case int:
		if v <= 0 {
			return 0, &ConfigError{Store: strconv.Itoa(v), Reason: "store number must be positive"}
		}
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return 0, &ConfigError{Store: v, Reason: "store selector must be a positive number"}
		}
		return n, nil
	default:
		return 0, &ConfigError{Store: fmt.Sprint(selector), Reason: "unsupported store selector type"}
	}
}

func validateDescriptor(d config.StoreDescriptor, defaultVersion, suffix string) (Credential, *ConfigError) {
	store := strconv.Itoa(d.Number)
	domain := strings.ToLower(strings.TrimSpace(d.Domain))
	token := strings.TrimSpace(d.AccessToken)
	version := strings.TrimSpace(d.APIVersion)
	if version == "" {
		version = strings.TrimSpace(defaultVersion)
	}

	switch {
	case domain == "":
		return Credential{}, &ConfigError{Store: store, Reason: "domain is required"}
	case strings.Contains(domain, "://") || strings.HasPrefix(domain, "//"):
		return Credential{}, &ConfigError{Store: store, Reason: "domain must not include a protocol"}
	case !strings.HasSuffix(domain, suffix) || len(domain) == len(suffix):
		return Credential{}, &ConfigError{Store: store, Reason: fmt.Sprintf("domain must end with %s", suffix)}
	case token == "":
		return Credential{}, &ConfigError{Store: store, Reason: "access token is required"}
	case version == "":
		return Credential{}, &ConfigError{Store: store, Reason: "api version is required"}
	case !apiVersion.MatchString(version):
		return Credential{}, &ConfigError{Store: store, Reason: fmt.Sprintf("malformed api version %q", version)}
	}

	shop := strings.TrimSuffix(domain, suffix)
	if !domainLabel.MatchString(shop) {
		return Credential{}, &ConfigError{Store: store, Reason: fmt.Sprintf("malformed shop name %q", shop)}
	}

	return Credential{StoreNumber: d.Number, Domain: domain, Token: token, APIVersion: version}, nil
}
