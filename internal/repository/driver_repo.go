package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"playas/internal/db"
	apperrors "playas/internal/errors"
)

type DriverRepository interface {
	CreateDriver(ctx context.Context, d *db.Driver) error
	GetDriver(ctx context.Context, id int) (*db.Driver, error)
	GetDriverByUser(ctx context.Context, userID int) (*db.Driver, error)
	ListDrivers(ctx context.Context, query string) ([]db.Driver, error)
	UpdateDriver(ctx context.Context, d *db.Driver) error

	CreateVehicle(ctx context.Context, v *db.Vehicle) error
	GetVehicle(ctx context.Context, id int) (*db.Vehicle, error)
	FindVehicleByPlate(ctx context.Context, plate string) (*db.Vehicle, error)
	ClaimVehicle(ctx context.Context, v *db.Vehicle) error
	ListVehicles(ctx context.Context, driverID int) ([]db.Vehicle, error)
	DeleteVehicle(ctx context.Context, id int) error
}

type driverRepository struct {
	db *sql.DB
}

func NewDriverRepository(conn *sql.DB) DriverRepository {
	return &driverRepository{db: conn}
}

const driverColumns = `id, user_id, full_name, document, email, phone, created_at`

func scanDriver(s scanner, d *db.Driver) error {
	var user sql.NullInt64
	if err := s.Scan(&d.ID, &user, &d.FullName, &d.Document, &d.Email, &d.Phone, &d.CreatedAt); err != nil {
		return err
	}
	d.UserID = intPtr(user)
	return nil
}

func insertDriver(ctx context.Context, q queryRower, d *db.Driver) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO drivers (user_id, full_name, document, email, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		nullableInt(d.UserID), d.FullName, d.Document, d.Email, d.Phone,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return writeErr(err, "drivers.create", "user already has a driver profile")
	}
	return nil
}

func (r *driverRepository) CreateDriver(ctx context.Context, d *db.Driver) error {
	return insertDriver(ctx, r.db, d)
}

func (r *driverRepository) GetDriver(ctx context.Context, id int) (*db.Driver, error) {
	var d db.Driver
	err := scanDriver(r.db.QueryRowContext(ctx, "SELECT "+driverColumns+" FROM drivers WHERE id = $1", id), &d)
	if err != nil {
		return nil, notFound(err, "drivers.get", fmt.Sprintf("driver %d", id))
	}
	return &d, nil
}

func (r *driverRepository) GetDriverByUser(ctx context.Context, userID int) (*db.Driver, error) {
	var d db.Driver
	err := scanDriver(r.db.QueryRowContext(ctx, "SELECT "+driverColumns+" FROM drivers WHERE user_id = $1", userID), &d)
	if err != nil {
		return nil, notFound(err, "drivers.get_by_user", "driver profile")
	}
	return &d, nil
}

func (r *driverRepository) ListDrivers(ctx context.Context, query string) ([]db.Driver, error) {
	q := "SELECT " + driverColumns + " FROM drivers"
	args := []any{}
	if query != "" {
		q += " WHERE full_name ILIKE $1 OR document ILIKE $1 OR email ILIKE $1"
		args = append(args, "%"+query+"%")
	}
	q += " ORDER BY full_name, id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("drivers.list: %w", err)
	}
	defer rows.Close()

	var drivers []db.Driver
	for rows.Next() {
		var d db.Driver
		if err := scanDriver(rows, &d); err != nil {
			return nil, fmt.Errorf("drivers.list scan: %w", err)
		}
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

func (r *driverRepository) UpdateDriver(ctx context.Context, d *db.Driver) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE drivers SET full_name = $2, document = $3, email = $4, phone = $5 WHERE id = $1`,
		d.ID, d.FullName, d.Document, d.Email, d.Phone)
	if err != nil {
		return fmt.Errorf("drivers.update: %w", err)
	}
	return expectOne(res, "drivers.update", fmt.Sprintf("driver %d", d.ID))
}

const vehicleColumns = `id, plate, vehicle_class, brand, model, color, driver_id, created_at`

func scanVehicle(s scanner, v *db.Vehicle) error {
	var driver sql.NullInt64
	if err := s.Scan(&v.ID, &v.Plate, &v.VehicleClass, &v.Brand, &v.Model, &v.Color, &driver, &v.CreatedAt); err != nil {
		return err
	}
	v.DriverID = intPtr(driver)
	return nil
}

func (r *driverRepository) CreateVehicle(ctx context.Context, v *db.Vehicle) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO vehicles (plate, vehicle_class, brand, model, color, driver_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		v.Plate, v.VehicleClass, v.Brand, v.Model, v.Color, nullableInt(v.DriverID),
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return writeErr(err, "vehicles.create", fmt.Sprintf("plate %s already registered", v.Plate))
	}
	return nil
}

func (r *driverRepository) GetVehicle(ctx context.Context, id int) (*db.Vehicle, error) {
	var v db.Vehicle
	err := scanVehicle(r.db.QueryRowContext(ctx, "SELECT "+vehicleColumns+" FROM vehicles WHERE id = $1", id), &v)
	if err != nil {
		return nil, notFound(err, "vehicles.get", fmt.Sprintf("vehicle %d", id))
	}
	return &v, nil
}

// FindVehicleByPlate returns nil, nil for unknown plates.
func (r *driverRepository) FindVehicleByPlate(ctx context.Context, plate string) (*db.Vehicle, error) {
	var v db.Vehicle
	err := scanVehicle(r.db.QueryRowContext(ctx, "SELECT "+vehicleColumns+" FROM vehicles WHERE plate = $1", plate), &v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("vehicles.find_by_plate: %w", err)
	}
	return &v, nil
}

// ClaimVehicle assigns an ownerless vehicle (registered at check-in) to v.DriverID.
func (r *driverRepository) ClaimVehicle(ctx context.Context, v *db.Vehicle) error {
	err := scanVehicle(r.db.QueryRowContext(ctx, `
		UPDATE vehicles SET driver_id = $1, brand = $2, model = $3, color = $4
		WHERE id = $5 AND driver_id IS NULL
		RETURNING `+vehicleColumns,
		nullableInt(v.DriverID), v.Brand, v.Model, v.Color, v.ID,
	), v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Conflict("vehicles.claim", fmt.Sprintf("plate %s already registered", v.Plate))
		}
		return fmt.Errorf("vehicles.claim: %w", err)
	}
	return nil
}

func (r *driverRepository) ListVehicles(ctx context.Context, driverID int) ([]db.Vehicle, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+vehicleColumns+" FROM vehicles WHERE driver_id = $1 ORDER BY plate", driverID)
	if err != nil {
		return nil, fmt.Errorf("vehicles.list: %w", err)
	}
	defer rows.Close()

	var vehicles []db.Vehicle
	for rows.Next() {
		var v db.Vehicle
		if err := scanVehicle(rows, &v); err != nil {
			return nil, fmt.Errorf("vehicles.list scan: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// DeleteVehicle refuses while the vehicle is parked or has stay history.
func (r *driverRepository) DeleteVehicle(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM vehicles v
		WHERE v.id = $1 AND NOT EXISTS (SELECT 1 FROM occupancies o WHERE o.vehicle_id = v.id)`, id)
	if err != nil {
		return writeErr(err, "vehicles.delete", "vehicle is in use")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("vehicles.delete: %w", err)
	}
	if n == 0 {
		if _, err := r.GetVehicle(ctx, id); err != nil {
			return err
		}
		return apperrors.Conflict("vehicles.delete", "vehicle has parking history")
	}
	return nil
}
