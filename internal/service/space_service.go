package service

import (
	"context"
	"fmt"
	"strings"

	"playas/internal/auth"
	"playas/internal/cache"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/repository"
	"playas/internal/utils"
)

const maxBulkSpaces = 500

type SpaceInput struct {
	Code         string
	VehicleClass string
	Covered      bool
}

type BulkSpacesInput struct {
	Prefix       string
	Count        int
	Start        int
	VehicleClass string
	Covered      bool
}

type SpaceService struct {
	spaces repository.SpaceRepository
	access *Access
	cache  cache.Cache
}

func NewSpaceService(spaces repository.SpaceRepository, access *Access, c cache.Cache) *SpaceService {
	return &SpaceService{spaces: spaces, access: access, cache: c}
}

func normalizeSpace(op string, in SpaceInput) (SpaceInput, error) {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	if in.Code == "" {
		return in, apperrors.Invalid(op, "code is required")
	}
	class, ok := utils.NormalizeVehicleClass(in.VehicleClass)
	if !ok {
		return in, apperrors.Invalid(op, fmt.Sprintf("unknown vehicle class %q", in.VehicleClass))
	}
	in.VehicleClass = class
	return in, nil
}

func (s *SpaceService) Create(ctx context.Context, p auth.Principal, lotID int, in SpaceInput) (*db.Space, error) {
	if _, err := s.access.Manage(ctx, p, lotID); err != nil {
		return nil, err
	}
	in, err := normalizeSpace("spaces.create", in)
	if err != nil {
		return nil, err
	}
	sp := &db.Space{LotID: lotID, Code: in.Code, VehicleClass: in.VehicleClass, Covered: in.Covered}
	if err := s.spaces.Create(ctx, sp); err != nil {
		return nil, err
	}
	invalidateDashboard(ctx, s.cache, lotID)
	return sp, nil
}

// BulkCreate names spaces Prefix+number starting at Start (1 when zero).
func (s *SpaceService) BulkCreate(ctx context.Context, p auth.Principal, lotID int, in BulkSpacesInput) ([]db.Space, error) {
	if _, err := s.access.Manage(ctx, p, lotID); err != nil {
		return nil, err
	}
	if in.Count <= 0 || in.Count > maxBulkSpaces {
		return nil, apperrors.Invalid("spaces.bulk_create", fmt.Sprintf("count must be between 1 and %d", maxBulkSpaces))
	}
	if in.Start <= 0 {
		in.Start = 1
	}
	class, ok := utils.NormalizeVehicleClass(in.VehicleClass)
	if !ok {
		return nil, apperrors.Invalid("spaces.bulk_create", fmt.Sprintf("unknown vehicle class %q", in.VehicleClass))
	}
	prefix := strings.ToUpper(strings.TrimSpace(in.Prefix))
	width := len(fmt.Sprint(in.Start + in.Count - 1))

	spaces := make([]db.Space, in.Count)
	for i := range spaces {
		spaces[i] = db.Space{
			LotID:        lotID,
			Code:         fmt.Sprintf("%s%0*d", prefix, width, in.Start+i),
			VehicleClass: class,
			Covered:      in.Covered,
		}
	}
	if err := s.spaces.CreateMany(ctx, spaces); err != nil {
		return nil, err
	}
	invalidateDashboard(ctx, s.cache, lotID)
	return spaces, nil
}

func (s *SpaceService) List(ctx context.Context, p auth.Principal, lotID int, state string) ([]db.Space, error) {
	if _, err := s.access.View(ctx, p, lotID); err != nil {
		return nil, err
	}
	switch state {
	case "", db.SpaceFree, db.SpaceOccupied, db.SpaceOutOfService, "reserved":
	default:
		return nil, apperrors.Invalid("spaces.list", fmt.Sprintf("unknown state %q", state))
	}
	return s.spaces.List(ctx, lotID, state)
}

func (s *SpaceService) managed(ctx context.Context, p auth.Principal, id int) (*db.Space, error) {
	sp, err := s.spaces.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.Manage(ctx, p, sp.LotID); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *SpaceService) Update(ctx context.Context, p auth.Principal, id int, in SpaceInput) (*db.Space, error) {
	sp, err := s.managed(ctx, p, id)
	if err != nil {
		return nil, err
	}
	in, err = normalizeSpace("spaces.update", in)
	if err != nil {
		return nil, err
	}
	if in.VehicleClass != sp.VehicleClass && (sp.State == db.SpaceOccupied || sp.Reserved) {
		return nil, apperrors.Conflict("spaces.update", "cannot change the class of an occupied or reserved space")
	}
	sp.Code, sp.VehicleClass, sp.Covered = in.Code, in.VehicleClass, in.Covered
	if err := s.spaces.Update(ctx, sp); err != nil {
		return nil, err
	}
	invalidateDashboard(ctx, s.cache, sp.LotID)
	return sp, nil
}

func (s *SpaceService) SetOutOfService(ctx context.Context, p auth.Principal, id int, out bool) (*db.Space, error) {
	sp, err := s.managed(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := s.spaces.SetOutOfService(ctx, id, out); err != nil {
		return nil, err
	}
	invalidateDashboard(ctx, s.cache, sp.LotID)
	return s.spaces.Get(ctx, id)
}

func (s *SpaceService) Delete(ctx context.Context, p auth.Principal, id int) error {
	sp, err := s.managed(ctx, p, id)
	if err != nil {
		return err
	}
	if sp.State == db.SpaceOccupied || sp.Reserved {
		return apperrors.Conflict("spaces.delete", "space is occupied or reserved")
	}
	if err := s.spaces.Delete(ctx, id); err != nil {
		return err
	}
	invalidateDashboard(ctx, s.cache, sp.LotID)
	return nil
}
