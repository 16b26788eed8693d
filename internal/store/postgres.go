package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"milkrun/internal/geo"
	"milkrun/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded schema migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	return p.migrateFS(ctx, sub)
}

// MigrateDir applies *.sql files from dir, in name order, skipping those already recorded.
func (p *Postgres) MigrateDir(ctx context.Context, dir string) error {
	return p.migrateFS(ctx, os.DirFS(dir))
}

func (p *Postgres) migrateFS(ctx context.Context, fsys fs.FS) error {
	if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`); err != nil {
		return err
	}
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		var done bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name=$1)`, name).Scan(&done); err != nil {
			return err
		}
		if done {
			continue
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// queryer is the part of *sql.DB and *sql.Tx the read helpers need.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const orderCols = `id, customer_name, delivery_address, latitude, longitude, city, status, total_amount, created_at, tracking_number, shop_id, dispatched_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanOrder(r rowScanner) (model.Order, error) {
	var o model.Order
	var lat, lng sql.NullFloat64
	var city, tracking, shop sql.NullString
	var dispatched sql.NullTime
	if err := r.Scan(&o.ID, &o.CustomerName, &o.DeliveryAddress, &lat, &lng, &city, &o.Status, &o.TotalAmount, &o.CreatedAt, &tracking, &shop, &dispatched); err != nil {
		return model.Order{}, err
	}
	// NULL coordinates read as 0, the missing sentinel
	o.Latitude, o.Longitude = lat.Float64, lng.Float64
	o.City, o.TrackingNumber, o.ShopID = city.String, tracking.String, shop.String
	if dispatched.Valid {
		t := dispatched.Time.UTC()
		o.DispatchedAt = &t
	}
	return o, nil
}

func (p *Postgres) ListOrders(ctx context.Context, statuses []string) ([]model.Order, error) {
	q := `SELECT ` + orderCols + ` FROM orders`
	var args []any
	if len(statuses) > 0 {
		ph := make([]string, len(statuses))
		for i, s := range statuses {
			ph[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, s)
		}
		q += ` WHERE status IN (` + strings.Join(ph, ",") + `)`
	}
	q += ` ORDER BY created_at, id`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (model.Order, error) {
	o, err := scanOrder(p.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	return o, err
}

const driverCols = `id, name, vehicle_type, status, active_order_count`

func scanDriver(r rowScanner) (model.Driver, error) {
	var d model.Driver
	var vt, st string
	if err := r.Scan(&d.ID, &d.Name, &vt, &st, &d.ActiveOrderCount); err != nil {
		return model.Driver{}, err
	}
	d.VehicleType = model.VehicleType(vt)
	d.Status = model.DriverStatus(st)
	return d, nil
}

func (p *Postgres) GetDriver(ctx context.Context, id string) (model.Driver, error) {
	d, err := scanDriver(p.db.QueryRowContext(ctx, `SELECT `+driverCols+` FROM drivers WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Driver{}, ErrNotFound
	}
	return d, err
}

func (p *Postgres) ListDrivers(ctx context.Context) ([]model.Driver, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+driverCols+` FROM drivers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Driver{}
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const assignmentCols = `id::text, order_id, driver_id, shop_id, cluster_id, tracking_number, status, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, created_by, created_at, updated_at`

func scanAssignment(r rowScanner) (model.DispatchAssignment, error) {
	var a model.DispatchAssignment
	var cluster, createdBy sql.NullString
	var st string
	if err := r.Scan(&a.ID, &a.OrderID, &a.DriverID, &a.ShopID, &cluster, &a.TrackingNumber, &st,
		&a.Pickup.Lat, &a.Pickup.Lng, &a.Dropoff.Lat, &a.Dropoff.Lng, &createdBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return model.DispatchAssignment{}, err
	}
	a.ClusterID, a.CreatedBy = cluster.String, createdBy.String
	a.Status = model.AssignmentStatus(st)
	a.CreatedAt, a.UpdatedAt = a.CreatedAt.UTC(), a.UpdatedAt.UTC()
	return a, nil
}

func getAssignment(ctx context.Context, q queryer, id string) (model.DispatchAssignment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.DispatchAssignment{}, ErrNotFound
	}
	a, err := scanAssignment(q.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM dispatch_assignments WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.DispatchAssignment{}, ErrNotFound
	}
	return a, err
}

func (p *Postgres) GetAssignment(ctx context.Context, id string) (model.DispatchAssignment, error) {
	return getAssignment(ctx, p.db, id)
}

func (p *Postgres) ListAssignmentsForDriver(ctx context.Context, driverID string) ([]model.DispatchAssignment, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+assignmentCols+` FROM dispatch_assignments WHERE driver_id=$1 ORDER BY created_at, id`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.DispatchAssignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertDriver(ctx context.Context, d model.Driver) error {
	if d.Status == "" {
		d.Status = model.DriverAvailable
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO drivers (id, name, vehicle_type, status, active_order_count) VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, vehicle_type=EXCLUDED.vehicle_type, status=EXCLUDED.status,
        active_order_count=EXCLUDED.active_order_count, updated_at=now()`,
		d.ID, d.Name, string(d.VehicleType), string(d.Status), d.ActiveOrderCount)
	return err
}

func (p *Postgres) UpsertOrder(ctx context.Context, o model.Order) error {
	if o.Status == "" {
		o.Status = model.OrderPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	var lat, lng any
	if geo.Valid(o.Location()) {
		lat, lng = o.Latitude, o.Longitude
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO orders (`+orderCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (id) DO UPDATE SET customer_name=EXCLUDED.customer_name, delivery_address=EXCLUDED.delivery_address,
        latitude=EXCLUDED.latitude, longitude=EXCLUDED.longitude, city=EXCLUDED.city, status=EXCLUDED.status,
        total_amount=EXCLUDED.total_amount, tracking_number=EXCLUDED.tracking_number, shop_id=EXCLUDED.shop_id,
        dispatched_at=EXCLUDED.dispatched_at`,
		o.ID, o.CustomerName, o.DeliveryAddress, lat, lng, nullIfEmpty(o.City), o.Status, o.TotalAmount, o.CreatedAt,
		nullIfEmpty(o.TrackingNumber), nullIfEmpty(o.ShopID), o.DispatchedAt)
	return err
}

func (p *Postgres) WithDriverTx(ctx context.Context, driverID string, fn func(DriverTx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	d, err := scanDriver(tx.QueryRowContext(ctx, `SELECT `+driverCols+` FROM drivers WHERE id=$1 FOR UPDATE`, driverID))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := fn(&pgTx{tx: tx, driver: d}); err != nil {
		return err
	}
	return tx.Commit()
}

type pgTx struct {
	tx     *sql.Tx
	driver model.Driver
	sp     int
}

func (t *pgTx) Driver() model.Driver { return t.driver }

func (t *pgTx) Attempt(ctx context.Context, fn func() error) error {
	t.sp++
	name := fmt.Sprintf("attempt_%d", t.sp)
	if _, err := t.tx.ExecContext(ctx, `SAVEPOINT `+name); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT `+name); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	_, err := t.tx.ExecContext(ctx, `RELEASE SAVEPOINT `+name)
	return err
}

func (t *pgTx) ActiveCount(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT count(*) FROM dispatch_assignments WHERE driver_id=$1 AND status NOT IN ($2,$3)`,
		t.driver.ID, string(model.AssignmentDelivered), string(model.AssignmentCancelled)).Scan(&n)
	return n, err
}

func (t *pgTx) DispatchOrder(ctx context.Context, orderID string, d model.OrderDispatch) (model.Order, error) {
	o, err := scanOrder(t.tx.QueryRowContext(ctx, `UPDATE orders SET status=$2, tracking_number=$3, shop_id=$4, dispatched_at=$5
        WHERE id=$1 AND status NOT IN ('in_transit','delivered','cancelled')
        AND latitude IS NOT NULL AND longitude IS NOT NULL AND latitude <> 0 AND longitude <> 0
        RETURNING `+orderCols, orderID, d.Status, d.TrackingNumber, d.ShopID, d.DispatchedAt))
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, orderID).Scan(&exists); err != nil {
			return model.Order{}, err
		}
		if !exists {
			return model.Order{}, ErrNotFound
		}
		return model.Order{}, ErrOrderNotDispatchable
	}
	return o, err
}

func (t *pgTx) ReleaseOrder(ctx context.Context, orderID, status string) error {
	q := `UPDATE orders SET status=$2 WHERE id=$1`
	if status == model.OrderPending {
		q = `UPDATE orders SET status=$2, tracking_number=NULL, shop_id=NULL, dispatched_at=NULL WHERE id=$1`
	}
	res, err := t.tx.ExecContext(ctx, q, orderID, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *pgTx) InsertAssignment(ctx context.Context, a model.DispatchAssignment) (model.DispatchAssignment, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = a.CreatedAt
	_, err := t.tx.ExecContext(ctx, `INSERT INTO dispatch_assignments (`+strings.Replace(assignmentCols, "id::text", "id", 1)+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.OrderID, a.DriverID, a.ShopID, nullIfEmpty(a.ClusterID), a.TrackingNumber, string(a.Status),
		a.Pickup.Lat, a.Pickup.Lng, a.Dropoff.Lat, a.Dropoff.Lng, nullIfEmpty(a.CreatedBy), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return model.DispatchAssignment{}, err
	}
	return a, nil
}

func (t *pgTx) GetAssignment(ctx context.Context, id string) (model.DispatchAssignment, error) {
	return getAssignment(ctx, t.tx, id)
}

func (t *pgTx) UpdateAssignmentStatus(ctx context.Context, id string, from, to model.AssignmentStatus) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE dispatch_assignments SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		if _, gerr := getAssignment(ctx, t.tx, id); gerr != nil {
			return gerr
		}
		return ErrStaleAssignment
	}
	return nil
}

func (t *pgTx) SetDriverLoad(ctx context.Context, status model.DriverStatus, active int) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE drivers SET status=$2, active_order_count=$3, updated_at=now() WHERE id=$1`, t.driver.ID, string(status), active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
