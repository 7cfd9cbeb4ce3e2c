package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/solar-plant-monitor/internal/metrics"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/publisher"
)

// Transport delivers a rendered message. Every transport accepts messages whose
// attachments were dropped.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// AttachmentResolver locates the evidence files a notification refers to.
type AttachmentResolver interface {
	Attachments(n monitor.Notification) (found []string, missing []string)
}

// Dispatcher implements monitor.Notifier over a set of transports.
type Dispatcher struct {
	transports []Transport
	resolver   AttachmentResolver
	limiter    *rate.Limiter
	clock      monitor.Clock
	logger     *zap.Logger
}

var _ monitor.Notifier = (*Dispatcher)(nil)

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLimiter paces deliveries.
func WithLimiter(l *rate.Limiter) Option {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithClock stamps notifications that carry no timestamp.
func WithClock(c monitor.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// New builds a Dispatcher. resolver may be nil when no evidence is attached.
func New(transports []Transport, resolver AttachmentResolver, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		transports: transports,
		resolver:   resolver,
		logger:     logger.Named("notify"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify renders n and sends it through every transport. An unknown kind panics;
// all other failures are logged.
func (d *Dispatcher) Notify(ctx context.Context, n monitor.Notification) {
	if !n.Kind.Valid() {
		panic(fmt.Sprintf("notify: unknown notification kind %q", n.Kind))
	}
	if n.At.IsZero() {
		if d.clock != nil {
			n.At = d.clock.Now()
		} else {
			n.At = time.Now()
		}
	}

	subject, body := Compose(n)
	msg := Message{Notification: n, Subject: subject, Body: body}
	fields := []zap.Field{
		zap.String("kind", string(n.Kind)),
		zap.String("vendor", n.Vendor),
		zap.String("plant", n.Plant),
	}

	if d.resolver != nil {
		found, missing := d.resolver.Attachments(n)
		for _, m := range missing {
			d.logger.Error("attachment not found, sending without it", append(fields, zap.String("path", m))...)
		}
		msg.Attachments = found
	}

	if len(d.transports) == 0 {
		d.logger.Warn("no notification transport configured", fields...)
		return
	}

	if d.limiter != nil {
		start := time.Now()
		if err := d.limiter.Wait(ctx); err != nil {
			d.logger.Error("notification skipped", append(fields, zap.Error(err))...)
			return
		}
		metrics.ObserveNotificationDelay(time.Since(start))
	}

	d.logger.Info("sending notification", fields...)
	for _, t := range d.transports {
		if err := d.send(ctx, t, msg); err != nil {
			d.logger.Error("notification transport failed", append(fields, zap.String("transport", t.Name()), zap.Error(err))...)
			metrics.ObserveNotification(string(n.Kind), t.Name(), "error")
			continue
		}
		metrics.ObserveNotification(string(n.Kind), t.Name(), "sent")
	}
}

func (d *Dispatcher) send(ctx context.Context, t Transport, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return t.Send(ctx, msg)
}

// PublisherTransport publishes notification events to a broker topic.
type PublisherTransport struct {
	name  string
	pub   publisher.Publisher
	topic string
}

// NewPublisherTransport wraps pub as a Transport named name.
func NewPublisherTransport(name string, pub publisher.Publisher, topic string) *PublisherTransport {
	return &PublisherTransport{name: name, pub: pub, topic: topic}
}

// Name implements Transport.
func (t *PublisherTransport) Name() string { return t.name }

// Send implements Transport.
func (t *PublisherTransport) Send(ctx context.Context, msg Message) error {
	if _, err := t.pub.Publish(ctx, t.topic, NewEvent(msg)); err != nil {
		return fmt.Errorf("publish %s event: %w", msg.Notification.Kind, err)
	}
	return nil
}
