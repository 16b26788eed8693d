package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"milkrun/internal/api"
	"milkrun/internal/fixtures"
	"milkrun/internal/logger"
	"milkrun/internal/model"
	"milkrun/internal/opt"
)

var (
	optFixtures string
	optVehicle  string
	optRadius   float64
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Cluster fixture orders offline and print the result as JSON",
	RunE:  optimize,
}

func init() {
	optimizeCmd.Flags().StringVar(&optFixtures, "fixtures", "", "fixtures YAML file (default: built-in demo set)")
	optimizeCmd.Flags().StringVar(&optVehicle, "vehicle", string(model.VehicleCar), "vehicle type")
	optimizeCmd.Flags().Float64Var(&optRadius, "radius", 0, "clustering radius in km (0 uses the configured default)")
	rootCmd.AddCommand(optimizeCmd)
}

func optimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	capacity, ok := cfg.Capacities().Capacity(model.ParseVehicleType(optVehicle))
	if !ok {
		return fmt.Errorf("unknown vehicle type %q", optVehicle)
	}
	set, err := fixtures.Load(optFixtures)
	if err != nil {
		return err
	}
	var orders []model.Order
	for _, o := range set.ModelOrders(time.Now().UTC()) {
		if o.Dispatchable() {
			orders = append(orders, o)
		}
	}
	res := opt.NewOptimizer(logger.New("optimize")).Optimize(api.GeoPoints(orders), api.OptimizeParams(*cfg, capacity, optRadius))
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
