package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"playas/internal/auth"
	"playas/internal/cache"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/payments"
	"playas/internal/repository"
)

type PaymentListInput struct {
	From   *time.Time
	To     *time.Time
	Method string
	Status string
}

type PaymentService struct {
	payments repository.PaymentRepository
	access   *Access
	gateway  payments.Gateway
	cache    cache.Cache
	now      func() time.Time
}

func NewPaymentService(payments repository.PaymentRepository, access *Access, gateway payments.Gateway, c cache.Cache) *PaymentService {
	return &PaymentService{payments: payments, access: access, gateway: gateway, cache: c, now: time.Now}
}

func (s *PaymentService) List(ctx context.Context, p auth.Principal, lotID int, in PaymentListInput) ([]db.Payment, error) {
	if _, err := s.access.View(ctx, p, lotID); err != nil {
		return nil, err
	}
	method := strings.ToLower(in.Method)
	if method != "" && !paymentMethods[method] {
		return nil, apperrors.Invalid("payments.list", fmt.Sprintf("unknown method %q", in.Method))
	}
	switch in.Status {
	case "", db.PaymentPending, db.PaymentPaid, db.PaymentRefunded:
	default:
		return nil, apperrors.Invalid("payments.list", fmt.Sprintf("unknown status %q", in.Status))
	}
	return s.payments.List(ctx, repository.PaymentFilter{
		LotID:  lotID,
		From:   in.From,
		To:     in.To,
		Method: method,
		Status: in.Status,
	})
}

func (s *PaymentService) Get(ctx context.Context, p auth.Principal, id int) (*db.Payment, error) {
	pay, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.View(ctx, p, pay.LotID); err != nil {
		return nil, err
	}
	return pay, nil
}

// Refund marks a paid payment refunded. Online payments are refunded through
// Stripe first; the charge.refunded webhook then finds the payment already refunded.
func (s *PaymentService) Refund(ctx context.Context, p auth.Principal, id int) (*db.Payment, error) {
	pay, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.Manage(ctx, p, pay.LotID); err != nil {
		return nil, err
	}
	switch pay.Status {
	case db.PaymentRefunded:
		return pay, nil
	case db.PaymentPending:
		return nil, apperrors.Conflict("payments.refund", "payment is still pending")
	}
	if pay.Method == db.MethodOnline {
		if err := s.gateway.Refund(ctx, pay.PaymentIntentID); err != nil {
			return nil, fmt.Errorf("payments.refund: %w", err)
		}
	}
	refunded, err := s.payments.MarkRefunded(ctx, id)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"payment_id": id, "lot_id": pay.LotID, "by": p.UserID}).Info("Payment refunded")
	invalidateDashboard(ctx, s.cache, pay.LotID)
	return refunded, nil
}

// RetryCheckout opens a new Stripe checkout for a pending online payment.
func (s *PaymentService) RetryCheckout(ctx context.Context, p auth.Principal, id int) (string, error) {
	pay, err := s.payments.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if _, err := s.access.View(ctx, p, pay.LotID); err != nil {
		return "", err
	}
	if pay.Method != db.MethodOnline || pay.Status != db.PaymentPending {
		return "", apperrors.Conflict("payments.checkout", "only pending online payments can be paid online")
	}
	co, err := s.gateway.CreateCheckout(ctx, payments.CheckoutRequest{
		PaymentID:   pay.ID,
		Amount:      pay.Amount,
		Description: fmt.Sprintf("Payment #%d", pay.ID),
	})
	if err != nil {
		return "", fmt.Errorf("payments.checkout: %w", err)
	}
	if err := s.payments.SetStripeSession(ctx, pay.ID, co.SessionID); err != nil {
		return "", err
	}
	return co.URL, nil
}

// HandleWebhook verifies and applies a Stripe event. Unknown event types are ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return apperrors.Invalid("payments.webhook", err.Error())
	}
	logger := log.WithFields(log.Fields{"type": ev.Type, "session": ev.SessionID, "payment_intent": ev.PaymentIntentID})

	switch ev.Type {
	case "checkout.session.completed":
		pay, err := s.payments.MarkPaidBySession(ctx, ev.SessionID, ev.PaymentIntentID, s.now())
		if err != nil {
			return err
		}
		logger.WithField("payment_id", pay.ID).Info("Online payment confirmed")
		invalidateDashboard(ctx, s.cache, pay.LotID)
	case "charge.refunded":
		id := ev.PaymentID
		if ev.PaymentIntentID != "" {
			pay, err := s.payments.GetByPaymentIntent(ctx, ev.PaymentIntentID)
			if err != nil && !apperrors.IsKind(err, apperrors.KindNotFound) {
				return err
			}
			if pay != nil {
				id = pay.ID
			}
		}
		if id == 0 {
			logger.Warn("Refund for unknown payment ignored")
			return nil
		}
		pay, err := s.payments.MarkRefunded(ctx, id)
		if err != nil {
			return err
		}
		logger.WithField("payment_id", pay.ID).Info("Online payment refunded")
		invalidateDashboard(ctx, s.cache, pay.LotID)
	default:
		logger.Debug("Ignoring Stripe event")
	}
	return nil
}
