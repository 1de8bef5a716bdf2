// Package mailer delivers outgoing mail over SMTP.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"quillpost/internal/observability"

	"github.com/wneessen/go-mail"
)

// Message kinds, used as the metric label.
const (
	KindPasswordReset = "password_reset"
)

// Message is a plain text mail.
type Message struct {
	Kind    string
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	client *mail.Client
}

// NewSMTPMailer builds a client for the relay. Nothing is dialed until Send.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPMailer{client: client}, nil
}

func buildMsg(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

// Send delivers msg.
func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	m, err := buildMsg(msg)
	if err != nil {
		countSent(msg.Kind, err)
		return err
	}
	err = s.client.DialAndSendWithContext(ctx, m)
	countSent(msg.Kind, err)
	if err != nil {
		return fmt.Errorf("send %s mail: %w", msg.Kind, err)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them. Used when no
// SMTP relay is configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer returns a LogMailer writing to logger, or to slog.Default when nil.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send validates the addresses and logs the message.
func (l *LogMailer) Send(ctx context.Context, msg Message) error {
	if _, err := buildMsg(msg); err != nil {
		countSent(msg.Kind, err)
		return err
	}
	l.logger.InfoContext(ctx, "mail not sent, no smtp server configured",
		slog.String("kind", msg.Kind),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	countSent(msg.Kind, nil)
	return nil
}

func countSent(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.MailsSent.WithLabelValues(kind, result).Inc()
}

// New picks the SMTP mailer when host is set and the log mailer otherwise.
func New(cfg SMTPConfig, logger *slog.Logger) (Mailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return NewLogMailer(logger), nil
	}
	return NewSMTPMailer(cfg)
}

// ResetLink returns the absolute reset URL for token.
func ResetLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/reset_password/" + token
}

// PasswordResetMessage builds the reset request mail.
func PasswordResetMessage(from, to, link string) Message {
	body := "To reset your password, visit the following link:\n" +
		link + "\n\n" +
		"If you did not make this request then simply ignore this email and no changes will be made.\n"
	return Message{
		Kind:    KindPasswordReset,
		From:    from,
		To:      to,
		Subject: "Password Reset Request",
		Body:    body,
	}
}
