// Package fixtures reads demo drivers and orders from YAML for seeding and offline optimization runs.
package fixtures

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"milkrun/internal/model"
	"milkrun/internal/store"
)

//go:embed demo.yaml
var demoYAML []byte

type Driver struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	VehicleType string `yaml:"vehicle_type"`
	Status      string `yaml:"status"`
}

type Order struct {
	ID           string  `yaml:"id"`
	CustomerName string  `yaml:"customer_name"`
	Address      string  `yaml:"address"`
	Lat          float64 `yaml:"lat"`
	Lng          float64 `yaml:"lng"`
	City         string  `yaml:"city"`
	Status       string  `yaml:"status"`
	TotalAmount  float64 `yaml:"total_amount"`
}

type Set struct {
	Drivers []Driver `yaml:"drivers"`
	Orders  []Order  `yaml:"orders"`
}

// Demo is the fixture set compiled into the binary.
func Demo() (*Set, error) { return Parse(demoYAML) }

func Parse(b []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	seen := map[string]bool{}
	for i, o := range s.Orders {
		if o.ID == "" {
			return nil, fmt.Errorf("order #%d has no id", i+1)
		}
		if seen["o:"+o.ID] {
			return nil, fmt.Errorf("duplicate order id %s", o.ID)
		}
		seen["o:"+o.ID] = true
	}
	for i, d := range s.Drivers {
		if d.ID == "" {
			return nil, fmt.Errorf("driver #%d has no id", i+1)
		}
		if seen["d:"+d.ID] {
			return nil, fmt.Errorf("duplicate driver id %s", d.ID)
		}
		seen["d:"+d.ID] = true
	}
	return &s, nil
}

func Read(r io.Reader) (*Set, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Load reads path, or the embedded demo set when path is empty.
func Load(path string) (*Set, error) {
	if path == "" {
		return Demo()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// ModelOrders converts orders; createdAt is spaced a minute apart so listing order is stable.
func (s *Set) ModelOrders(base time.Time) []model.Order {
	out := make([]model.Order, len(s.Orders))
	for i, o := range s.Orders {
		status := o.Status
		if status == "" {
			status = model.OrderPending
		}
		out[i] = model.Order{
			ID:              o.ID,
			CustomerName:    o.CustomerName,
			DeliveryAddress: o.Address,
			Latitude:        o.Lat,
			Longitude:       o.Lng,
			City:            o.City,
			Status:          status,
			TotalAmount:     o.TotalAmount,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func (s *Set) ModelDrivers() []model.Driver {
	out := make([]model.Driver, len(s.Drivers))
	for i, d := range s.Drivers {
		status := model.DriverStatus(d.Status)
		if status == "" {
			status = model.DriverAvailable
		}
		out[i] = model.Driver{ID: d.ID, Name: d.Name, VehicleType: model.ParseVehicleType(d.VehicleType), Status: status}
	}
	return out
}

// Seed upserts every driver and order.
func (s *Set) Seed(ctx context.Context, dst store.Seeder) error {
	for _, d := range s.ModelDrivers() {
		if err := dst.UpsertDriver(ctx, d); err != nil {
			return fmt.Errorf("seed driver %s: %w", d.ID, err)
		}
	}
	for _, o := range s.ModelOrders(time.Now().UTC().Truncate(time.Minute)) {
		if err := dst.UpsertOrder(ctx, o); err != nil {
			return fmt.Errorf("seed order %s: %w", o.ID, err)
		}
	}
	return nil
}
