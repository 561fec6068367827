// internal/mailer/smtp.go
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// smtpSender delivers through a relay at addr (host:port). The SMTP wire
// protocol itself is the relay's concern; this sender only hands off and
// reports whether the relay accepted the message.
type smtpSender struct {
	addr string
	from string
	log  *zap.SugaredLogger
}

func NewSMTPSender(addr, from string, log *zap.SugaredLogger) Sender {
	return &smtpSender{addr: addr, from: from, log: log}
}

func (s *smtpSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	s.log.Infow("mail sent", "to", to, "subject", subject)
	return nil
}

// logSender is the dev fallback when no relay is configured. It confirms
// every dispatch, logging the message instead of delivering it.
type logSender struct {
	log *zap.SugaredLogger
}

func NewLogSender(log *zap.SugaredLogger) Sender { return &logSender{log: log} }

func (s *logSender) Send(ctx context.Context, to, subject, body string) error {
	s.log.Infow("mail (dev, not delivered)", "to", to, "subject", subject, "body", body)
	return nil
}
