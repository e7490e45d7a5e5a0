package service

import (
	"context"
	"fmt"
	"strings"

	"playas/internal/auth"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/repository"
	"playas/internal/utils"
)

type DriverInput struct {
	FullName string
	Document string
	Email    string
	Phone    string
}

type VehicleInput struct {
	Plate        string
	VehicleClass string
	Brand        string
	Model        string
	Color        string
}

type DriverService struct {
	drivers     repository.DriverRepository
	occupancies repository.OccupancyRepository
}

func NewDriverService(drivers repository.DriverRepository, occupancies repository.OccupancyRepository) *DriverService {
	return &DriverService{drivers: drivers, occupancies: occupancies}
}

func isStaff(p auth.Principal) bool {
	return p.Is(db.RoleAdmin, db.RoleOwner, db.RoleAttendant)
}

// canSee lets staff see every driver and a driver only itself.
func (s *DriverService) canSee(ctx context.Context, p auth.Principal, d *db.Driver) error {
	if isStaff(p) {
		return nil
	}
	if d.UserID != nil && *d.UserID == p.UserID {
		return nil
	}
	return apperrors.Forbidden("drivers.view", "not your profile")
}

func (s *DriverService) CreateDriver(ctx context.Context, p auth.Principal, in DriverInput) (*db.Driver, error) {
	if !isStaff(p) {
		return nil, apperrors.Forbidden("drivers.create", "staff only")
	}
	if strings.TrimSpace(in.FullName) == "" {
		return nil, apperrors.Invalid("drivers.create", "full name is required")
	}
	d := &db.Driver{FullName: in.FullName, Document: in.Document, Email: strings.ToLower(in.Email), Phone: in.Phone}
	if err := s.drivers.CreateDriver(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DriverService) GetDriver(ctx context.Context, p auth.Principal, id int) (*db.Driver, error) {
	d, err := s.drivers.GetDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canSee(ctx, p, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Self returns the driver profile of the calling driver.
func (s *DriverService) Self(ctx context.Context, p auth.Principal) (*db.Driver, error) {
	if p.Role != db.RoleDriver {
		return nil, apperrors.Forbidden("drivers.self", "drivers only")
	}
	return s.drivers.GetDriverByUser(ctx, p.UserID)
}

func (s *DriverService) ListDrivers(ctx context.Context, p auth.Principal, query string) ([]db.Driver, error) {
	if !isStaff(p) {
		return nil, apperrors.Forbidden("drivers.list", "staff only")
	}
	return s.drivers.ListDrivers(ctx, query)
}

func (s *DriverService) UpdateDriver(ctx context.Context, p auth.Principal, id int, in DriverInput) (*db.Driver, error) {
	d, err := s.GetDriver(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.FullName) == "" {
		return nil, apperrors.Invalid("drivers.update", "full name is required")
	}
	d.FullName, d.Document, d.Email, d.Phone = in.FullName, in.Document, strings.ToLower(in.Email), in.Phone
	if err := s.drivers.UpdateDriver(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func normalizeVehicle(op string, in VehicleInput) (VehicleInput, error) {
	in.Plate = utils.NormalizePlate(in.Plate)
	if !utils.ValidPlate(in.Plate) {
		return in, apperrors.Invalid(op, fmt.Sprintf("invalid plate %q", in.Plate))
	}
	class, ok := utils.NormalizeVehicleClass(in.VehicleClass)
	if !ok {
		return in, apperrors.Invalid(op, fmt.Sprintf("unknown vehicle class %q", in.VehicleClass))
	}
	in.VehicleClass = class
	return in, nil
}

func (s *DriverService) AddVehicle(ctx context.Context, p auth.Principal, driverID int, in VehicleInput) (*db.Vehicle, error) {
	if _, err := s.GetDriver(ctx, p, driverID); err != nil {
		return nil, err
	}
	in, err := normalizeVehicle("vehicles.create", in)
	if err != nil {
		return nil, err
	}

	// a plate registered at check-in without owner can be claimed
	existing, err := s.drivers.FindVehicleByPlate(ctx, in.Plate)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.DriverID != nil {
			return nil, apperrors.Conflict("vehicles.create", fmt.Sprintf("plate %s already registered", in.Plate))
		}
		existing.DriverID = &driverID
		existing.Brand, existing.Model, existing.Color = in.Brand, in.Model, in.Color
		if err := s.drivers.ClaimVehicle(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	v := &db.Vehicle{
		Plate:        in.Plate,
		VehicleClass: in.VehicleClass,
		Brand:        in.Brand,
		Model:        in.Model,
		Color:        in.Color,
		DriverID:     &driverID,
	}
	if err := s.drivers.CreateVehicle(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *DriverService) ListVehicles(ctx context.Context, p auth.Principal, driverID int) ([]db.Vehicle, error) {
	if _, err := s.GetDriver(ctx, p, driverID); err != nil {
		return nil, err
	}
	return s.drivers.ListVehicles(ctx, driverID)
}

func (s *DriverService) FindVehicleByPlate(ctx context.Context, p auth.Principal, plate string) (*db.Vehicle, error) {
	if !isStaff(p) {
		return nil, apperrors.Forbidden("vehicles.find", "staff only")
	}
	plate = utils.NormalizePlate(plate)
	v, err := s.drivers.FindVehicleByPlate(ctx, plate)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apperrors.NotFound("vehicles.find", "plate "+plate+" not found")
	}
	return v, nil
}

func (s *DriverService) RemoveVehicle(ctx context.Context, p auth.Principal, vehicleID int) error {
	v, err := s.drivers.GetVehicle(ctx, vehicleID)
	if err != nil {
		return err
	}
	if v.DriverID == nil {
		if !isStaff(p) {
			return apperrors.Forbidden("vehicles.delete", "staff only")
		}
	} else if _, err := s.GetDriver(ctx, p, *v.DriverID); err != nil {
		return err
	}
	active, err := s.occupancies.FindActiveByPlate(ctx, v.Plate)
	if err != nil {
		return err
	}
	if active != nil {
		return apperrors.Conflict("vehicles.delete", "vehicle is parked")
	}
	return s.drivers.DeleteVehicle(ctx, vehicleID)
}
