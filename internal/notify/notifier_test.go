package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"playas/internal/events"
)

type sent struct {
	to, subject, plain, html string
}

type fakeSender struct {
	emails []sent
	sms    []sent
	err    error
}

func (f *fakeSender) SendEmail(_ context.Context, to, _, subject, plain, html string) error {
	f.emails = append(f.emails, sent{to: to, subject: subject, plain: plain, html: html})
	return f.err
}

func (f *fakeSender) SendSMS(_ context.Context, to, body string) error {
	f.sms = append(f.sms, sent{to: to, plain: body})
	return f.err
}

func TestReceipt(t *testing.T) {
	f := &fakeSender{}
	n := NewNotifier(f, f, time.UTC)

	e := events.New(events.OccupancyFinished, 1)
	e.LotName = "Playa Centro"
	e.Ticket = "AB12CD34"
	e.VehiclePlate = "AB123CD"
	e.Amount = "1500"
	e.Method = "cash"
	e.ExitedAt = "2024-05-01T13:30:00Z"
	e.Email = "ana@example.com"
	e.DriverName = "Ana"

	if err := n.Handle(context.Background(), e); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.emails) != 1 {
		t.Fatalf("expected one email, got %d", len(f.emails))
	}
	m := f.emails[0]
	if m.to != "ana@example.com" || !strings.Contains(m.subject, "AB12CD34") {
		t.Fatalf("unexpected email %+v", m)
	}
	if !strings.Contains(m.html, "01/05/2024 13:30") || !strings.Contains(m.html, "Playa Centro") {
		t.Fatalf("html body missing data: %s", m.html)
	}
}

func TestReceiptWithoutEmailIsSkipped(t *testing.T) {
	f := &fakeSender{}
	n := NewNotifier(f, f, nil)
	if err := n.Handle(context.Background(), events.New(events.OccupancyFinished, 1)); err != nil {
		t.Fatal(err)
	}
	if len(f.emails) != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestExpiringSendsEmailAndSMS(t *testing.T) {
	f := &fakeSender{}
	n := NewNotifier(f, f, time.UTC)
	e := events.New(events.SubscriptionExpiring, 2)
	e.Email = "b@example.com"
	e.Phone = "+5491100000000"
	e.EndsAt = "2024-06-01T03:00:00Z"
	e.SpaceCode = "B7"

	if err := n.Handle(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if len(f.emails) != 1 || len(f.sms) != 1 {
		t.Fatalf("expected one email and one sms, got %d/%d", len(f.emails), len(f.sms))
	}
	if !strings.Contains(f.sms[0].plain, "B7") {
		t.Fatalf("sms missing space code: %q", f.sms[0].plain)
	}
}

func TestDeliveryErrorsSurface(t *testing.T) {
	f := &fakeSender{err: errors.New("boom")}
	n := NewNotifier(f, f, time.UTC)
	e := events.New(events.SubscriptionExpiring, 2)
	e.Phone = "+5491100000000"
	if err := n.Handle(context.Background(), e); err == nil {
		t.Fatalf("expected error")
	}
}

func TestUnknownEventsAreIgnored(t *testing.T) {
	f := &fakeSender{}
	n := NewNotifier(f, f, time.UTC)
	if err := n.Handle(context.Background(), events.New(events.RatingChanged, 1)); err != nil {
		t.Fatal(err)
	}
}
