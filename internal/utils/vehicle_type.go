package utils

import (
	"strings"

	"playas/internal/db"
)

// NormalizeVehicleClass maps user input to a space pool.
// suv and pickup share the car pool, scooters park with motorcycles.
func NormalizeVehicleClass(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "car", "auto", "suv", "pickup", "camioneta":
		return db.ClassCar, true
	case "motorcycle", "moto", "scooter":
		return db.ClassMotorcycle, true
	case "van", "utilitario":
		return db.ClassVan, true
	}
	return "", false
}

// VehicleClasses lists every pool, in display order.
func VehicleClasses() []string {
	return []string{db.ClassCar, db.ClassMotorcycle, db.ClassVan}
}
