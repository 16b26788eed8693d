//go:build postgres_integration

package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"milkrun/internal/model"
)

// startPostgres returns a DSN, from DATABASE_URL or a disposable container.
func startPostgres(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("neither DATABASE_URL nor docker available")
	}
	ctx := context.Background()
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env:          map[string]string{"POSTGRES_PASSWORD": "milkrun", "POSTGRES_DB": "milkrun"},
			WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://postgres:milkrun@%s:%s/milkrun?sslmode=disable", host, port.Port())
}

func TestPostgresDriverTxRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := NewPostgres(startPostgres(t))
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Ping(ctx))
	require.NoError(t, p.Migrate(ctx))
	require.NoError(t, p.Migrate(ctx), "migrations are idempotent")

	require.NoError(t, p.UpsertDriver(ctx, model.Driver{ID: "pg-d1", VehicleType: model.VehicleCar}))
	require.NoError(t, p.UpsertOrder(ctx, model.Order{ID: "pg-o1", Latitude: 13.8, Longitude: 100.53}))
	require.NoError(t, p.UpsertOrder(ctx, model.Order{ID: "pg-o2"}))

	err = p.WithDriverTx(ctx, "pg-d1", func(tx DriverTx) error {
		require.NoError(t, tx.Attempt(ctx, func() error {
			if _, err := tx.DispatchOrder(ctx, "pg-o1", model.OrderDispatch{Status: model.OrderInTransit, TrackingNumber: "PG-1", ShopID: "s", DispatchedAt: time.Now()}); err != nil {
				return err
			}
			_, err := tx.InsertAssignment(ctx, model.DispatchAssignment{OrderID: "pg-o1", DriverID: "pg-d1", ShopID: "s", TrackingNumber: "PG-1", Status: model.AssignmentAssigned})
			return err
		}))
		err := tx.Attempt(ctx, func() error {
			_, err := tx.DispatchOrder(ctx, "pg-o2", model.OrderDispatch{Status: model.OrderInTransit, TrackingNumber: "PG-2", ShopID: "s", DispatchedAt: time.Now()})
			return err
		})
		assert.ErrorIs(t, err, ErrOrderNotDispatchable)
		n, err := tx.ActiveCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return tx.SetDriverLoad(ctx, model.DriverAvailable, n)
	})
	require.NoError(t, err)

	o, err := p.GetOrder(ctx, "pg-o1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderInTransit, o.Status)
	d, err := p.GetDriver(ctx, "pg-d1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.ActiveOrderCount)
	as, err := p.ListAssignmentsForDriver(ctx, "pg-d1")
	require.NoError(t, err)
	require.Len(t, as, 1)

	assert.ErrorIs(t, p.WithDriverTx(ctx, "ghost", func(DriverTx) error { return nil }), ErrNotFound)
	_, err = p.GetAssignment(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}
