package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	log "github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type Mailer interface {
	SendEmail(ctx context.Context, toEmail, toName, subject, plain, html string) error
}

type Texter interface {
	SendSMS(ctx context.Context, toNumber, body string) error
}

type SendGridMailer struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridMailer(apiKey, fromEmail, fromName string) *SendGridMailer {
	if fromName == "" {
		fromName = "Playas"
	}
	return &SendGridMailer{client: sendgrid.NewSendClient(apiKey), fromEmail: fromEmail, fromName: fromName}
}

func (m *SendGridMailer) SendEmail(ctx context.Context, toEmail, toName, subject, plain, html string) error {
	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, plain, html)

	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send to %s: %w", toEmail, err)
	}
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		log.WithFields(log.Fields{"to": toEmail, "status": response.StatusCode}).Info("email sent")
		return nil
	}
	return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
}

type TwilioTexter struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioTexter(accountSid, authToken, from string) *TwilioTexter {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   accountSid,
		Password:   authToken,
		AccountSid: accountSid,
	})
	return &TwilioTexter{client: client, from: from}
}

func (t *TwilioTexter) SendSMS(_ context.Context, toNumber, body string) error {
	if !strings.HasPrefix(toNumber, "+") {
		log.Warnf("destination %q is not E.164, the SMS may fail", toNumber)
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(t.from)
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send to %s: %w", toNumber, err)
	}
	if resp != nil && resp.Sid != nil {
		log.WithFields(log.Fields{"to": toNumber, "sid": *resp.Sid}).Info("sms sent")
	}
	return nil
}

// LogSender stands in for both channels when credentials are missing.
type LogSender struct{}

func (LogSender) SendEmail(_ context.Context, toEmail, _, subject, _, _ string) error {
	log.WithFields(log.Fields{"to": toEmail, "subject": subject}).Info("email not sent, SendGrid not configured")
	return nil
}

func (LogSender) SendSMS(_ context.Context, toNumber, _ string) error {
	log.WithField("to", toNumber).Info("sms not sent, Twilio not configured")
	return nil
}
