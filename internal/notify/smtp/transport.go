// Package smtp delivers notifications by e-mail.
package smtp

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/JakeFAU/solar-plant-monitor/internal/notify"
)

// Config describes the relay and envelope.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	TLS      bool
}

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Transport sends notifications through an SMTP relay.
type Transport struct {
	from   string
	to     []string
	client sender
}

var _ notify.Transport = (*Transport)(nil)

// New creates a Transport for cfg.
func New(cfg Config) (*Transport, error) {
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("smtp sender and recipients are required")
	}
	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
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
	return &Transport{from: cfg.From, to: cfg.To, client: client}, nil
}

// Name implements notify.Transport.
func (t *Transport) Name() string { return "smtp" }

// Build renders msg as a mail message.
func (t *Transport) Build(msg notify.Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(t.from); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := m.To(t.to...); err != nil {
		return nil, fmt.Errorf("set recipients: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	for _, path := range msg.Attachments {
		m.AttachFile(path)
	}
	return m, nil
}

// Send implements notify.Transport.
func (t *Transport) Send(ctx context.Context, msg notify.Message) error {
	m, err := t.Build(msg)
	if err != nil {
		return err
	}
	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
