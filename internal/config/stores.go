package config

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// MaxPageLimit is the largest page size the remote platform accepts.
const MaxPageLimit = 250

// StoreDescriptor identifies one remote store and the credentials used to reach it.
// Descriptors are loaded verbatim; validation happens in the credential resolver so a
// single broken store does not prevent the others from syncing.
type StoreDescriptor struct {
	Number      int    `mapstructure:"number"`
	Domain      string `mapstructure:"domain"`
	AccessToken string `mapstructure:"access_token"`
	APIVersion  string `mapstructure:"api_version"`
}

var storeEnvPattern = regexp.MustCompile(`^SHOPIFY_STORE_(\d+)_(DOMAIN|ACCESS_TOKEN|API_VERSION)$`)

// LoadStores builds the store list from an optional descriptor file and the given
// environment (KEY=VALUE pairs). Environment values override file values for the same
// store number. The result is sorted by store number.
func LoadStores(file string, environ []string) ([]StoreDescriptor, error) {
	byNumber := make(map[int]*StoreDescriptor)

	if strings.TrimSpace(file) != "" {
		fromFile, err := readStoresFile(file)
		if err != nil {
			return nil, err
		}
		for i := range fromFile {
			d := fromFile[i]
			if d.Number <= 0 {
				return nil, fmt.Errorf("stores file %s: invalid store number %d", file, d.Number)
			}
			if _, dup := byNumber[d.Number]; dup {
				return nil, fmt.Errorf("stores file %s: duplicate store number %d", file, d.Number)
			}
			byNumber[d.Number] = &d
		}
	}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		m := storeEnvPattern.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid store number in %s", key)
		}
		d, ok := byNumber[n]
		if !ok {
			d = &StoreDescriptor{Number: n}
			byNumber[n] = d
		}
		value = strings.TrimSpace(value)
		switch m[2] {
		case "DOMAIN":
			d.Domain = value
		case "ACCESS_TOKEN":
			d.AccessToken = value
		case "API_VERSION":
			d.APIVersion = value
		}
	}

	stores := make([]StoreDescriptor, 0, len(byNumber))
	for _, d := range byNumber {
		stores = append(stores, *d)
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i].Number < stores[j].Number })

	return stores, nil
}

func readStoresFile(file string) ([]StoreDescriptor, error) {
	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read stores file %s: %w", file, err)
	}

	var stores []StoreDescriptor
	if err := v.UnmarshalKey("stores", &stores); err != nil {
		return nil, fmt.Errorf("decode stores file %s: %w", file, err)
	}

	return stores, nil
}
