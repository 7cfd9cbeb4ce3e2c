// Package notify formats monitoring notifications and fans them out to the
// configured transports. Delivery failures are logged, never returned.
package notify

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
)

const timeLayout = "2006-01-02 15:04"

// Message is a rendered notification ready for delivery.
type Message struct {
	Notification monitor.Notification
	Subject      string
	Body         string
	Attachments  []string
}

// Compose renders the subject and body for n. It panics on an unknown kind.
func Compose(n monitor.Notification) (subject, body string) {
	at := n.At.Format(timeLayout)
	switch n.Kind {
	case monitor.KindOfflineInverter:
		return "Offline inverter(s)", fmt.Sprintf(
			"Warning! Plant %s - %s has %d inverter(s) that are not online.\nChecked at: %s",
			n.Vendor, n.Plant, n.Count, at)
	case monitor.KindFaultHistory:
		return "Fault found in plant history", fmt.Sprintf(
			"Warning! A fault was found in the history of plant %s - %s.\nSeverity: %s\nObserved at: %s",
			n.Vendor, n.Plant, n.Severity, at)
	case monitor.KindInternalError:
		errText := "unknown error"
		if n.Err != nil {
			errText = n.Err.Error()
		}
		subject = "Monitoring run error"
		if n.Vendor != "" {
			subject = fmt.Sprintf("Monitoring run error (%s)", n.Vendor)
		}
		return subject, fmt.Sprintf(
			"Warning! The monitoring run reported the error below at %s\n%s\n\nThe error happened during: %s.",
			at, errText, n.Location)
	default:
		panic(fmt.Sprintf("notify: unknown notification kind %q", n.Kind))
	}
}

// Event is the broker payload published for a notification.
type Event struct {
	Kind        string    `json:"kind"`
	Vendor      string    `json:"vendor,omitempty"`
	Plant       string    `json:"plant,omitempty"`
	Count       int       `json:"count,omitempty"`
	Severity    string    `json:"severity,omitempty"`
	Error       string    `json:"error,omitempty"`
	Location    string    `json:"location,omitempty"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Attachments []string  `json:"attachments,omitempty"`
	At          time.Time `json:"at"`
}

// NewEvent converts a rendered message into its broker payload. Attachments are
// reduced to file names.
func NewEvent(msg Message) Event {
	n := msg.Notification
	ev := Event{
		Kind:     string(n.Kind),
		Vendor:   n.Vendor,
		Plant:    n.Plant,
		Count:    n.Count,
		Severity: string(n.Severity),
		Location: n.Location,
		Subject:  msg.Subject,
		Body:     msg.Body,
		At:       n.At,
	}
	if n.Err != nil {
		ev.Error = n.Err.Error()
	}
	for _, a := range msg.Attachments {
		ev.Attachments = append(ev.Attachments, filepath.Base(a))
	}
	return ev
}

// Attributes implements publisher.Attributer.
func (e Event) Attributes() map[string]string {
	attrs := map[string]string{"kind": e.Kind}
	if e.Vendor != "" {
		attrs["vendor"] = e.Vendor
	}
	return attrs
}
