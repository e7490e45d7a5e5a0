package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"playas/internal/cache"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/payments"
)

func newPaymentEnv() (*PaymentService, *fakePayments, *fakeGateway) {
	owner := 5
	lots := newFakeLots(&db.Lot{ID: 1, OwnerID: &owner, PaymentMethods: []string{db.MethodCash, db.MethodOnline}})
	pays := newFakePayments()
	gw := &fakeGateway{}
	svc := NewPaymentService(pays, NewAccess(lots, newFakeShifts()), gw, cache.NewMemoryCache())
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return svc, pays, gw
}

func TestWebhookCompletesCheckout(t *testing.T) {
	svc, pays, gw := newPaymentEnv()
	ctx := context.Background()
	p := &db.Payment{LotID: 1, Amount: dec("300"), Method: db.MethodOnline}
	_ = pays.Create(ctx, p)
	_ = pays.SetStripeSession(ctx, p.ID, "cs_1")

	gw.event = payments.WebhookEvent{Type: "checkout.session.completed", SessionID: "cs_1", PaymentIntentID: "pi_1"}
	for i := 0; i < 2; i++ {
		if err := svc.HandleWebhook(ctx, []byte("{}"), "sig"); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	got := pays.pays[p.ID]
	if got.Status != db.PaymentPaid || got.PaymentIntentID != "pi_1" || got.PaidAt == nil {
		t.Fatalf("payment after webhook = %+v", got)
	}

	gw.event = payments.WebhookEvent{Type: "charge.refunded", PaymentIntentID: "pi_1"}
	if err := svc.HandleWebhook(ctx, []byte("{}"), "sig"); err != nil {
		t.Fatal(err)
	}
	if pays.pays[p.ID].Status != db.PaymentRefunded {
		t.Errorf("status = %s, want refunded", pays.pays[p.ID].Status)
	}
}

func TestWebhookBadSignature(t *testing.T) {
	svc, _, gw := newPaymentEnv()
	gw.parseErr = errors.New("signature mismatch")
	err := svc.HandleWebhook(context.Background(), []byte("{}"), "bad")
	if !apperrors.IsKind(err, apperrors.KindInvalid) {
		t.Fatalf("err = %v, want invalid", err)
	}
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	svc, _, gw := newPaymentEnv()
	gw.event = payments.WebhookEvent{Type: "customer.created"}
	if err := svc.HandleWebhook(context.Background(), nil, "sig"); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	owner := ownerPrincipal()

	t.Run("cash", func(t *testing.T) {
		svc, pays, gw := newPaymentEnv()
		p := &db.Payment{LotID: 1, Amount: dec("100"), Method: db.MethodCash}
		_ = pays.Create(ctx, p)
		got, err := svc.Refund(ctx, owner, p.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != db.PaymentRefunded || len(gw.refunds) != 0 {
			t.Errorf("status %s, stripe refunds %v", got.Status, gw.refunds)
		}
	})

	t.Run("online goes through stripe", func(t *testing.T) {
		svc, pays, gw := newPaymentEnv()
		p := &db.Payment{LotID: 1, Amount: dec("100"), Method: db.MethodOnline, Status: db.PaymentPaid, PaymentIntentID: "pi_9"}
		_ = pays.Create(ctx, p)
		if _, err := svc.Refund(ctx, owner, p.ID); err != nil {
			t.Fatal(err)
		}
		if len(gw.refunds) != 1 || gw.refunds[0] != "pi_9" {
			t.Errorf("stripe refunds = %v", gw.refunds)
		}
	})

	t.Run("pending conflicts", func(t *testing.T) {
		svc, pays, _ := newPaymentEnv()
		p := &db.Payment{LotID: 1, Amount: dec("100"), Method: db.MethodOnline}
		_ = pays.Create(ctx, p)
		if _, err := svc.Refund(ctx, owner, p.ID); !apperrors.IsKind(err, apperrors.KindConflict) {
			t.Errorf("err = %v, want conflict", err)
		}
	})

	t.Run("attendant forbidden", func(t *testing.T) {
		svc, pays, _ := newPaymentEnv()
		p := &db.Payment{LotID: 1, Amount: dec("100"), Method: db.MethodCash}
		_ = pays.Create(ctx, p)
		if _, err := svc.Refund(ctx, attendant, p.ID); !apperrors.IsKind(err, apperrors.KindForbidden) {
			t.Errorf("err = %v, want forbidden", err)
		}
	})
}
