package api

import (
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"playas/internal/entities"
	apperrors "playas/internal/errors"
	"playas/internal/service"
)

const maxWebhookBytes = int64(65536)

type PaymentHandler struct {
	Service *service.PaymentService
	Loc     *time.Location
}

func NewPaymentHandler(svc *service.PaymentService, loc *time.Location) *PaymentHandler {
	return &PaymentHandler{Service: svc, Loc: loc}
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	in := service.PaymentListInput{Method: q.Get("method"), Status: q.Get("status")}
	if in.From, err = queryTime(r, "from", h.Loc); err != nil {
		writeError(w, r, err)
		return
	}
	if in.To, err = queryTime(r, "to", h.Loc); err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.Service.List(r.Context(), principal(r), lotID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromPayments(list))
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "payment")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Service.Get(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromPayment(p))
}

func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "payment")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Service.Refund(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromPayment(p))
}

func (h *PaymentHandler) RetryCheckout(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "payment")
	if err != nil {
		writeError(w, r, err)
		return
	}
	url, err := h.Service.RetryCheckout(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.CheckoutURLResponse{CheckoutURL: url})
}

// StripeWebhook answers 400 on bad signatures so Stripe stops retrying them, 500 on anything it should retry.
func (h *PaymentHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.WithError(err).Warn("Error reading webhook body")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	err = h.Service.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case apperrors.IsKind(err, apperrors.KindInvalid):
		log.WithError(err).Warn("Webhook rejected")
		w.WriteHeader(http.StatusBadRequest)
	case apperrors.IsKind(err, apperrors.KindNotFound):
		log.WithError(err).Warn("Webhook for unknown payment")
		w.WriteHeader(http.StatusOK)
	default:
		log.WithError(err).Error("Webhook processing failed")
		w.WriteHeader(http.StatusInternalServerError)
	}
}
