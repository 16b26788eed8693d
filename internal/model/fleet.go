package model

// CapacityTable maps a vehicle type to the number of simultaneous active orders it may carry.
type CapacityTable map[VehicleType]int

// DefaultCapacities is the stock fleet table.
func DefaultCapacities() CapacityTable {
	return CapacityTable{
		VehicleMotorbike: 3,
		VehicleCar:       5,
		VehicleVan:       10,
		VehicleTruck:     20,
	}
}

// Capacity looks up vt. Unknown or non-positive entries report ok=false.
func (t CapacityTable) Capacity(vt VehicleType) (int, bool) {
	c, ok := t[ParseVehicleType(string(vt))]
	if !ok || c <= 0 {
		return 0, false
	}
	return c, true
}
