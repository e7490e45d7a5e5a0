package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"time"

	"playas/internal/events"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type emailData struct {
	Name        string
	LotName     string
	Ticket      string
	Plate       string
	SpaceCode   string
	EnteredAt   string
	ExitedAt    string
	Amount      string
	Method      string
	EndsAt      string
	CurrentYear int
}

// Notifier turns queue events into emails and text messages.
type Notifier struct {
	mail Mailer
	sms  Texter
	loc  *time.Location
}

func NewNotifier(m Mailer, s Texter, loc *time.Location) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{mail: m, sms: s, loc: loc}
}

// Handle returns an error only when a delivery failed.
func (n *Notifier) Handle(ctx context.Context, e events.Event) error {
	switch e.Type {
	case events.OccupancyFinished:
		return n.receipt(ctx, e)
	case events.SubscriptionExpiring:
		return n.expiring(ctx, e)
	case events.SubscriptionExpired:
		return n.expired(ctx, e)
	}
	return nil
}

func (n *Notifier) data(e events.Event) emailData {
	return emailData{
		Name:        e.DriverName,
		LotName:     e.LotName,
		Ticket:      e.Ticket,
		Plate:       e.VehiclePlate,
		SpaceCode:   e.SpaceCode,
		EnteredAt:   n.local(e.EnteredAt),
		ExitedAt:    n.local(e.ExitedAt),
		Amount:      e.Amount,
		Method:      e.Method,
		EndsAt:      n.local(e.EndsAt),
		CurrentYear: time.Now().In(n.loc).Year(),
	}
}

func (n *Notifier) local(ts string) string {
	if ts == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.In(n.loc).Format("02/01/2006 15:04")
}

func (n *Notifier) receipt(ctx context.Context, e events.Event) error {
	if e.Email == "" {
		return nil
	}
	d := n.data(e)
	subject := fmt.Sprintf("Comprobante de estacionamiento %s - %s", d.Ticket, d.LotName)
	plain := fmt.Sprintf("Hola %s,\n\nTicket: %s\nPatente: %s\nIngreso: %s\nEgreso: %s\nTotal: $%s (%s)\n",
		d.Name, d.Ticket, d.Plate, d.EnteredAt, d.ExitedAt, d.Amount, d.Method)
	html, err := render("receipt.html", d)
	if err != nil {
		return err
	}
	return n.mail.SendEmail(ctx, e.Email, e.DriverName, subject, plain, html)
}

func (n *Notifier) expiring(ctx context.Context, e events.Event) error {
	d := n.data(e)
	var errs []error
	if e.Email != "" {
		subject := fmt.Sprintf("Tu abono en %s vence el %s", d.LotName, d.EndsAt)
		plain := fmt.Sprintf("Hola %s,\n\nTu abono de la plaza %s en %s vence el %s. Renovalo para conservar la plaza.\n",
			d.Name, d.SpaceCode, d.LotName, d.EndsAt)
		html, err := render("expiring.html", d)
		if err != nil {
			return err
		}
		errs = append(errs, n.mail.SendEmail(ctx, e.Email, e.DriverName, subject, plain, html))
	}
	if e.Phone != "" {
		body := fmt.Sprintf("%s: tu abono (plaza %s) vence el %s.", d.LotName, d.SpaceCode, d.EndsAt)
		errs = append(errs, n.sms.SendSMS(ctx, e.Phone, body))
	}
	return errors.Join(errs...)
}

func (n *Notifier) expired(ctx context.Context, e events.Event) error {
	if e.Email == "" {
		return nil
	}
	d := n.data(e)
	subject := fmt.Sprintf("Tu abono en %s venció", d.LotName)
	plain := fmt.Sprintf("Hola %s,\n\nTu abono de la plaza %s en %s venció el %s y la plaza fue liberada.\n",
		d.Name, d.SpaceCode, d.LotName, d.EndsAt)
	return n.mail.SendEmail(ctx, e.Email, e.DriverName, subject, plain, "")
}

func render(name string, d emailData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, d); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
