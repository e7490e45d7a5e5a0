// Package seed loads lots, their spaces and rates from a YAML file.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/repository"
	"playas/internal/utils"
)

type File struct {
	Lots []Lot `yaml:"lots"`
}

type Lot struct {
	Name             string     `yaml:"name"`
	Address          string     `yaml:"address"`
	Latitude         float64    `yaml:"latitude"`
	Longitude        float64    `yaml:"longitude"`
	ToleranceMinutes int        `yaml:"tolerance_minutes"`
	Open24h          bool       `yaml:"open24h"`
	PaymentMethods   []string   `yaml:"payment_methods"`
	Schedule         []Schedule `yaml:"schedule"`
	Spaces           []Spaces   `yaml:"spaces"`
	Rates            []Rate     `yaml:"rates"`
}

type Schedule struct {
	Weekday string `yaml:"weekday"`
	Opens   string `yaml:"opens"`
	Closes  string `yaml:"closes"`
}

type Spaces struct {
	Prefix  string `yaml:"prefix"`
	Count   int    `yaml:"count"`
	Class   string `yaml:"class"`
	Covered bool   `yaml:"covered"`
}

type Rate struct {
	Service string          `yaml:"service"`
	Class   string          `yaml:"class"`
	Price   decimal.Decimal `yaml:"price"`
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if len(f.Lots) == 0 {
		return nil, fmt.Errorf("seed file has no lots")
	}
	return &f, nil
}

// Build turns the YAML lot into the records to insert.
func (l Lot) Build() (*db.Lot, []db.Space, []db.Rate, error) {
	if strings.TrimSpace(l.Name) == "" {
		return nil, nil, nil, fmt.Errorf("lot without name")
	}
	lot := &db.Lot{
		Name:             l.Name,
		Address:          l.Address,
		Latitude:         l.Latitude,
		Longitude:        l.Longitude,
		ToleranceMinutes: l.ToleranceMinutes,
		Open24h:          l.Open24h,
		PaymentMethods:   l.PaymentMethods,
	}
	for _, s := range l.Schedule {
		wd, ok := weekdays[strings.ToLower(s.Weekday)]
		if !ok {
			return nil, nil, nil, fmt.Errorf("lot %s: unknown weekday %q", l.Name, s.Weekday)
		}
		opens, err := utils.ParseClock(s.Opens)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("lot %s: %w", l.Name, err)
		}
		closes, err := utils.ParseClock(s.Closes)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("lot %s: %w", l.Name, err)
		}
		lot.Schedule = append(lot.Schedule, db.ScheduleEntry{Weekday: wd, Opens: opens, Closes: closes})
	}

	var spaces []db.Space
	for _, group := range l.Spaces {
		class, ok := utils.NormalizeVehicleClass(group.Class)
		if !ok {
			return nil, nil, nil, fmt.Errorf("lot %s: unknown vehicle class %q", l.Name, group.Class)
		}
		width := len(fmt.Sprint(group.Count))
		for i := 1; i <= group.Count; i++ {
			spaces = append(spaces, db.Space{
				Code:         fmt.Sprintf("%s%0*d", strings.ToUpper(group.Prefix), width, i),
				VehicleClass: class,
				Covered:      group.Covered,
			})
		}
	}

	var rates []db.Rate
	for _, r := range l.Rates {
		class, ok := utils.NormalizeVehicleClass(r.Class)
		if !ok {
			return nil, nil, nil, fmt.Errorf("lot %s: unknown vehicle class %q", l.Name, r.Class)
		}
		if r.Service == "" || r.Price.IsNegative() {
			return nil, nil, nil, fmt.Errorf("lot %s: invalid rate %s/%s", l.Name, r.Service, r.Class)
		}
		rates = append(rates, db.Rate{Service: strings.ToLower(r.Service), VehicleClass: class, Price: r.Price})
	}
	return lot, spaces, rates, nil
}

type Loader struct {
	Lots   repository.LotRepository
	Spaces repository.SpaceRepository
	Rates  repository.RateRepository
	Now    func() time.Time
}

// Load inserts every lot of f. Lots that already exist are skipped.
func (l *Loader) Load(ctx context.Context, f *File) (int, error) {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	created := 0
	for _, y := range f.Lots {
		lot, spaces, rates, err := y.Build()
		if err != nil {
			return created, err
		}
		if err := l.Lots.Create(ctx, lot); err != nil {
			if apperrors.IsKind(err, apperrors.KindConflict) {
				log.WithField("lot", lot.Name).Info("Lot already exists, skipping")
				continue
			}
			return created, err
		}
		if len(lot.Schedule) > 0 || lot.Open24h {
			if err := l.Lots.SetSchedule(ctx, lot.ID, lot.Open24h, lot.Schedule); err != nil {
				return created, err
			}
		}
		for i := range spaces {
			spaces[i].LotID = lot.ID
		}
		if len(spaces) > 0 {
			if err := l.Spaces.CreateMany(ctx, spaces); err != nil {
				return created, err
			}
		}
		for i := range rates {
			rates[i].LotID = lot.ID
			rates[i].ValidFrom = now()
			if err := l.Rates.Create(ctx, &rates[i]); err != nil {
				return created, err
			}
		}
		log.WithFields(log.Fields{"lot": lot.Name, "spaces": len(spaces), "rates": len(rates)}).Info("Lot seeded")
		created++
	}
	return created, nil
}
