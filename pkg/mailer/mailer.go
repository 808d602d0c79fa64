package mailer

import (
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail/v2"

	"github.com/campuscare/campuscare-api/pkg/config"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers notification emails over SMTP.
type Sender interface {
	Send(msg Message) error
}

// SMTPSender sends email through a configured SMTP relay with
// mandatory STARTTLS.
type SMTPSender struct {
	cfg    config.MailerConfig
	dialer *mail.Dialer
}

// NewSMTPSender builds a sender from mailer configuration.
func NewSMTPSender(cfg config.MailerConfig) *SMTPSender {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipTLSVerify,
	}
	return &SMTPSender{cfg: cfg, dialer: d}
}

// Send delivers one message. Callers treat failures as best-effort.
func (s *SMTPSender) Send(msg Message) error {
	if msg.To == "" {
		return nil
	}
	if !s.cfg.Enabled || s.cfg.Host == "" || s.cfg.From == "" {
		return fmt.Errorf("smtp not configured")
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	return s.dialer.DialAndSend(m)
}
