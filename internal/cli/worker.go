package cli

import (
	"errors"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"playas/internal/config"
	"playas/internal/events"
	"playas/internal/notify"
	"playas/internal/worker"
)

func newWorkerCmd(flags *rootFlags) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume parking events and send notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.settings()
			if err != nil {
				return err
			}
			if s.RMQURL == "" {
				return errors.New("environment variable must be set: RMQ_URL")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			q, err := events.NewRMQueue(s.RMQURL, s.EventsQueueName)
			if err != nil {
				return err
			}
			defer q.Close()
			msgs, err := q.Consume()
			if err != nil {
				return err
			}

			mailer, texter := senders(s)
			log.WithFields(log.Fields{"queue": s.EventsQueueName, "workers": workers}).Info("Worker started")
			worker.Run(ctx, notify.NewNotifier(mailer, texter, s.Timezone), msgs, workers)
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 2, "number of concurrent consumers")
	return cmd
}

// senders falls back to logging for any provider without credentials.
func senders(s *config.Settings) (notify.Mailer, notify.Texter) {
	var m notify.Mailer = notify.LogSender{}
	var t notify.Texter = notify.LogSender{}
	if s.SendGridAPIKey != "" {
		m = notify.NewSendGridMailer(s.SendGridAPIKey, s.SendGridFromEmail, s.SendGridFromName)
	} else {
		log.Warn("SENDGRID_API_KEY not set, emails will only be logged")
	}
	if s.TwilioAccountSID != "" {
		t = notify.NewTwilioTexter(s.TwilioAccountSID, s.TwilioAuthToken, s.TwilioFromNumber)
	} else {
		log.Warn("TWILIO_ACCOUNT_SID not set, SMS will only be logged")
	}
	return m, t
}
