package seeder

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordersync/internal/entity"
	orderrepo "github.com/Additional-Code/ordersync/internal/repository/order"
	"github.com/Additional-Code/ordersync/internal/service/syncer"
)

//go:embed samples/*.json
var samplesFS embed.FS

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Writer persists mapped orders.
type Writer interface {
	Upsert(ctx context.Context, order *entity.Order, items []entity.OrderItem) (int64, error)
}

// Seeder loads sample remote payloads into the mirror for local/dev setups.
type Seeder struct {
	writer Writer
	logger *zap.Logger
}

// New constructs a Seeder backed by the order repository.
func New(repo *orderrepo.Repository, logger *zap.Logger) *Seeder {
	return &Seeder{writer: repo, logger: logger}
}

// Orders maps every sample payload for the given store and upserts it. Running it
// twice leaves the same rows behind.
func (s *Seeder) Orders(ctx context.Context, store int) (int, error) {
	names, err := fs.Glob(samplesFS, "samples/*.json")
	if err != nil {
		return 0, err
	}
	sort.Strings(names)

	seeded := 0
	for _, name := range names {
		raw, err := samplesFS.ReadFile(name)
		if err != nil {
			return seeded, err
		}
		order, items, err := syncer.MapOrder(store, json.RawMessage(raw))
		if err != nil {
			return seeded, fmt.Errorf("sample %s: %w", path.Base(name), err)
		}
		if _, err := s.writer.Upsert(ctx, order, items); err != nil {
			return seeded, fmt.Errorf("sample %s: %w", path.Base(name), err)
		}
		seeded++
	}

	if s.logger != nil {
		s.logger.Info("seeded orders", zap.Int("store", store), zap.Int("count", seeded))
	}
	return seeded, nil
}
