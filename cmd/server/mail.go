package main

import (
	"context"
	"fmt"
	"strings"

	"sahyog-sutra/core/domain"

	"github.com/go-logr/logr"
)

// mailer envia e-mails. A implementação daqui só registra no log; um SMTP
// real entraria no mesmo lugar.
type mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type logMailer struct {
	log logr.Logger
}

func (m logMailer) Send(_ context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("mail %q: empty recipient", subject)
	}
	m.log.Info("mail sent", "to", to, "subject", subject, "bytes", len(body))
	return nil
}

// eventEndedNotifier é a NotifyAction do sweep.
func eventEndedNotifier(m mailer) domain.NotifyAction {
	return func(ctx context.Context, c domain.Candidate) error {
		return m.Send(ctx, c.Email, "Event Ended",
			"Hey there your event was ended, so it has been deleted!\n\nEvent Details:\n\n"+c.Details+"\n\nThank You!")
	}
}
