package service

import (
	"context"
	"strings"

	"playas/internal/auth"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/events"
	"playas/internal/repository"
)

const maxCommentLength = 1000

type RatingService struct {
	ratings   repository.RatingRepository
	drivers   repository.DriverRepository
	lots      repository.LotRepository
	publisher events.Publisher
}

func NewRatingService(ratings repository.RatingRepository, drivers repository.DriverRepository,
	lots repository.LotRepository, publisher events.Publisher) *RatingService {
	return &RatingService{ratings: ratings, drivers: drivers, lots: lots, publisher: publisher}
}

func (s *RatingService) driver(ctx context.Context, p auth.Principal, op string) (*db.Driver, error) {
	if p.Role != db.RoleDriver {
		return nil, apperrors.Forbidden(op, "only drivers rate lots")
	}
	return s.drivers.GetDriverByUser(ctx, p.UserID)
}

// Rate creates or replaces the caller's rating of a lot.
func (s *RatingService) Rate(ctx context.Context, p auth.Principal, lotID, stars int, comment string) (*db.Rating, error) {
	d, err := s.driver(ctx, p, "ratings.rate")
	if err != nil {
		return nil, err
	}
	if stars < 1 || stars > 5 {
		return nil, apperrors.Invalid("ratings.rate", "stars must be between 1 and 5")
	}
	comment = strings.TrimSpace(comment)
	if len(comment) > maxCommentLength {
		return nil, apperrors.Invalid("ratings.rate", "comment is too long")
	}
	lot, err := s.lots.Get(ctx, lotID)
	if err != nil {
		return nil, err
	}
	r := &db.Rating{DriverID: d.ID, LotID: lotID, Stars: stars, Comment: comment}
	agg, err := s.ratings.Upsert(ctx, r)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, lot, agg)
	return r, nil
}

func (s *RatingService) Remove(ctx context.Context, p auth.Principal, lotID int) error {
	d, err := s.driver(ctx, p, "ratings.remove")
	if err != nil {
		return err
	}
	lot, err := s.lots.Get(ctx, lotID)
	if err != nil {
		return err
	}
	agg, err := s.ratings.Delete(ctx, d.ID, lotID)
	if err != nil {
		return err
	}
	s.emit(ctx, lot, agg)
	return nil
}

func (s *RatingService) Mine(ctx context.Context, p auth.Principal, lotID int) (*db.Rating, error) {
	d, err := s.driver(ctx, p, "ratings.mine")
	if err != nil {
		return nil, err
	}
	return s.ratings.Get(ctx, d.ID, lotID)
}

func (s *RatingService) List(ctx context.Context, lotID int) ([]db.Rating, error) {
	return s.ratings.List(ctx, lotID)
}

func (s *RatingService) emit(ctx context.Context, lot *db.Lot, agg repository.RatingAggregate) {
	e := events.New(events.RatingChanged, lot.ID)
	e.LotName = lot.Name
	e.RatingAvg = agg.Avg.StringFixed(2)
	e.RatingCount = agg.Count
	events.Emit(ctx, s.publisher, e)
}
