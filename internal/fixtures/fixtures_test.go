package fixtures

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkrun/internal/model"
	"milkrun/internal/store"
)

func TestDemoParses(t *testing.T) {
	s, err := Demo()
	require.NoError(t, err)
	assert.Len(t, s.Drivers, 5)
	assert.Len(t, s.Orders, 18)
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte("orders:\n  - id: a\n  - id: a\n"))
	assert.ErrorContains(t, err, "duplicate order id a")
	_, err = Parse([]byte("drivers:\n  - name: nobody\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("orders: ["))
	assert.Error(t, err)
}

func TestModelConversionDefaults(t *testing.T) {
	s, err := Read(strings.NewReader(`
drivers:
  - id: d1
    vehicle_type: " Van "
orders:
  - id: o1
    lat: 13.8
    lng: 100.5
  - id: o2
    status: confirmed
`))
	require.NoError(t, err)
	ds := s.ModelDrivers()
	assert.Equal(t, model.VehicleVan, ds[0].VehicleType)
	assert.Equal(t, model.DriverAvailable, ds[0].Status)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orders := s.ModelOrders(base)
	assert.Equal(t, model.OrderPending, orders[0].Status)
	assert.Equal(t, model.OrderConfirmed, orders[1].Status)
	assert.Equal(t, base.Add(time.Minute), orders[1].CreatedAt)
}

func TestSeedMemory(t *testing.T) {
	s, err := Demo()
	require.NoError(t, err)
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx, m))

	orders, err := m.ListOrders(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, orders, 18)
	d, err := m.GetDriver(ctx, "drv-005")
	require.NoError(t, err)
	assert.Equal(t, model.DriverOffline, d.Status)
}
