package service

import (
	"context"
	"testing"
	"time"

	"playas/internal/db"
	"playas/internal/events"
	"playas/internal/repository"
)

func TestWarnExpiringPublishesAndMarks(t *testing.T) {
	ends := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	jobs := &fakeJobs{warn: []repository.ExpiringSubscription{
		{SubscriptionID: 4, LotID: 1, LotName: "Centro", SpaceCode: "A02", DriverName: "Ana", Email: "ana@example.com", Phone: "+5491100000000", EndsAt: ends},
		{SubscriptionID: 6, LotID: 1, LotName: "Centro", SpaceCode: "A03", DriverName: "Beto", EndsAt: ends},
	}}
	pub := &fakePublisher{}
	svc := NewJobService(JobDeps{Jobs: jobs, Publisher: pub, WarnDays: 5})

	n, err := svc.WarnExpiring(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || len(jobs.warned) != 2 || jobs.warned[0] != 4 {
		t.Errorf("warned %d: %v", n, jobs.warned)
	}
	if len(pub.events) != 2 {
		t.Fatalf("events = %d", len(pub.events))
	}
	e := pub.events[0]
	if e.Type != events.SubscriptionExpiring || e.Email != "ana@example.com" || e.EndsAt != "2026-03-13T00:00:00Z" {
		t.Errorf("event = %+v", e)
	}
}

func TestAutoCloseDisabledWithoutLimit(t *testing.T) {
	svc := NewJobService(JobDeps{Jobs: &fakeJobs{}})
	n, err := svc.AutoCloseShifts(context.Background())
	if err != nil || n != 0 {
		t.Errorf("got %d, %v", n, err)
	}
}

func TestExpireSubscriptionsEventCarriesSpace(t *testing.T) {
	ends := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	drivers := newFakeDrivers()
	d := drivers.addDriver(&db.Driver{FullName: "Ana", Email: "ana@example.com"})
	jobs := &fakeJobs{expire: []db.Subscription{{ID: 4, DriverID: d.ID, LotID: 1, SpaceID: 2, EndsAt: ends}}}
	pub := &fakePublisher{}
	svc := NewJobService(JobDeps{
		Jobs:      jobs,
		Drivers:   drivers,
		Lots:      newFakeLots(&db.Lot{ID: 1, Name: "Centro"}),
		Spaces:    newFakeSpaces(&db.Space{ID: 2, LotID: 1, Code: "A02"}),
		Publisher: pub,
	})

	n, err := svc.ExpireSubscriptions(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("got %d, %v", n, err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("events = %d", len(pub.events))
	}
	e := pub.events[0]
	if e.Type != events.SubscriptionExpired || e.SpaceCode != "A02" || e.LotName != "Centro" || e.Email != "ana@example.com" {
		t.Errorf("event = %+v", e)
	}
}
