package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"playas/internal/db"
	apperrors "playas/internal/errors"
)

type SpaceRepository interface {
	Create(ctx context.Context, s *db.Space) error
	CreateMany(ctx context.Context, spaces []db.Space) error
	Get(ctx context.Context, id int) (*db.Space, error)
	List(ctx context.Context, lotID int, state string) ([]db.Space, error)
	Update(ctx context.Context, s *db.Space) error
	SetOutOfService(ctx context.Context, id int, out bool) error
	Delete(ctx context.Context, id int) error
	FindFree(ctx context.Context, lotID int, vehicleClass string) (*db.Space, error)
}

type spaceRepository struct {
	db *sql.DB
}

func NewSpaceRepository(conn *sql.DB) SpaceRepository {
	return &spaceRepository{db: conn}
}

const spaceColumns = `id, lot_id, code, vehicle_class, covered, reserved, state, created_at`

func scanSpace(s scanner, sp *db.Space) error {
	return s.Scan(&sp.ID, &sp.LotID, &sp.Code, &sp.VehicleClass, &sp.Covered, &sp.Reserved, &sp.State, &sp.CreatedAt)
}

func insertSpace(ctx context.Context, q queryRower, s *db.Space) error {
	s.State = db.SpaceFree
	err := q.QueryRowContext(ctx, `
		INSERT INTO spaces (lot_id, code, vehicle_class, covered, state)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		s.LotID, s.Code, s.VehicleClass, s.Covered, s.State,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return writeErr(err, "spaces.create", fmt.Sprintf("space %s already exists", s.Code))
	}
	return nil
}

func (r *spaceRepository) Create(ctx context.Context, s *db.Space) error {
	return insertSpace(ctx, r.db, s)
}

// CreateMany inserts all spaces or none.
func (r *spaceRepository) CreateMany(ctx context.Context, spaces []db.Space) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for i := range spaces {
			if err := insertSpace(ctx, tx, &spaces[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *spaceRepository) Get(ctx context.Context, id int) (*db.Space, error) {
	var s db.Space
	err := scanSpace(r.db.QueryRowContext(ctx, "SELECT "+spaceColumns+" FROM spaces WHERE id = $1", id), &s)
	if err != nil {
		return nil, notFound(err, "spaces.get", fmt.Sprintf("space %d", id))
	}
	return &s, nil
}

func (r *spaceRepository) List(ctx context.Context, lotID int, state string) ([]db.Space, error) {
	query := "SELECT " + spaceColumns + " FROM spaces WHERE lot_id = $1"
	args := []any{lotID}
	switch state {
	case "":
	case "reserved":
		query += " AND reserved"
	default:
		query += " AND state = $2"
		args = append(args, state)
	}
	query += " ORDER BY code"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("spaces.list: %w", err)
	}
	defer rows.Close()

	var spaces []db.Space
	for rows.Next() {
		var s db.Space
		if err := scanSpace(rows, &s); err != nil {
			return nil, fmt.Errorf("spaces.list scan: %w", err)
		}
		spaces = append(spaces, s)
	}
	return spaces, rows.Err()
}

func (r *spaceRepository) Update(ctx context.Context, s *db.Space) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE spaces SET code = $2, vehicle_class = $3, covered = $4
		WHERE id = $1
		RETURNING lot_id, reserved, state, created_at`,
		s.ID, s.Code, s.VehicleClass, s.Covered,
	).Scan(&s.LotID, &s.Reserved, &s.State, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("spaces.update", fmt.Sprintf("space %d not found", s.ID))
		}
		return writeErr(err, "spaces.update", fmt.Sprintf("space %s already exists", s.Code))
	}
	return nil
}

// SetOutOfService only moves free spaces out of service and back.
func (r *spaceRepository) SetOutOfService(ctx context.Context, id int, out bool) error {
	from, to := db.SpaceOutOfService, db.SpaceFree
	if out {
		from, to = db.SpaceFree, db.SpaceOutOfService
	}
	res, err := r.db.ExecContext(ctx, `UPDATE spaces SET state = $2 WHERE id = $1 AND state = $3`, id, to, from)
	if err != nil {
		return fmt.Errorf("spaces.set_out_of_service: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("spaces.set_out_of_service: %w", err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return apperrors.Conflict("spaces.set_out_of_service", fmt.Sprintf("space %d is not %s", id, from))
	}
	return nil
}

func (r *spaceRepository) Delete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM spaces s
		WHERE s.id = $1 AND s.state <> 'occupied' AND NOT s.reserved
		  AND NOT EXISTS (SELECT 1 FROM occupancies o WHERE o.space_id = s.id)`, id)
	if err != nil {
		return writeErr(err, "spaces.delete", "space is in use")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("spaces.delete: %w", err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return apperrors.Conflict("spaces.delete", "space has history, is occupied or reserved; set it out of service instead")
	}
	return nil
}

// FindFree returns nil, nil when no space is available. Uncovered spaces go first.
func (r *spaceRepository) FindFree(ctx context.Context, lotID int, vehicleClass string) (*db.Space, error) {
	var s db.Space
	err := scanSpace(r.db.QueryRowContext(ctx, `
		SELECT `+spaceColumns+` FROM spaces
		WHERE lot_id = $1 AND vehicle_class = $2 AND state = 'free' AND NOT reserved
		ORDER BY covered, code
		LIMIT 1`, lotID, vehicleClass), &s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("spaces.find_free: %w", err)
	}
	return &s, nil
}
