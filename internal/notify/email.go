package notify

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/novacloud-core/internal/infrastructure/config"
)

// sendMailFunc matches smtp.SendMail so tests can capture outgoing mail.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender delivers plain-text email through an SMTP relay.
type EmailSender struct {
	cfg      config.SMTPConfig
	sendMail sendMailFunc
	now      func() time.Time
}

// NewEmailSender creates an email sender. An empty host leaves the sender
// disabled; Send then returns ErrEmailDisabled.
func NewEmailSender(cfg config.SMTPConfig) *EmailSender {
	return &EmailSender{cfg: cfg, sendMail: smtp.SendMail, now: time.Now}
}

// Enabled reports whether an SMTP host is configured.
func (s *EmailSender) Enabled() bool {
	return s.cfg.Host != ""
}

// Send delivers one message to one address.
//
// smtp.SendMail does not take a context, so cancellation is only checked
// before the relay is contacted.
func (s *EmailSender) Send(ctx context.Context, to, subject, body string) error {
	if !s.Enabled() {
		return ErrEmailDisabled
	}
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidRecipient, to, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	relay := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	msg := buildMessage(s.cfg.From, addr.Address, subject, body, s.now())
	if err := s.sendMail(relay, auth, s.cfg.From, []string{addr.Address}, msg); err != nil {
		return fmt.Errorf("%w: smtp %s: %v", ErrDeliveryFailed, relay, err)
	}
	return nil
}

// buildMessage renders a minimal RFC 5322 message with CRLF line endings.
// Header values are stripped of CR and LF to prevent header injection.
func buildMessage(from, to, subject, body string, date time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + headerValue(from) + "\r\n")
	b.WriteString("To: " + headerValue(to) + "\r\n")
	b.WriteString("Subject: " + headerValue(subject) + "\r\n")
	b.WriteString("Date: " + date.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func headerValue(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
