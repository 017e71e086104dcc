package syncer_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/ordersync/internal/dto"
	"github.com/Additional-Code/ordersync/internal/service/syncer"
)

func TestMapOrderGolden(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "order_full.json"))
	require.NoError(t, err)

	order, items, err := syncer.MapOrder(3, raw)
	require.NoError(t, err)
	order.Items = items

	out, err := json.MarshalIndent(dto.NewOrderResponse(order), "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "order_full", out)
}
