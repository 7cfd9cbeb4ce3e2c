// Package memory records alert events in process memory so notification fan-out
// can be inspected without a broker.
package memory

import (
	"context"
	"maps"
	"strconv"
	"sync"

	"github.com/JakeFAU/solar-plant-monitor/internal/publisher"
)

// Record is one publish call together with the broker attributes the payload
// carried.
type Record struct {
	Topic      string
	Payload    any
	Attributes map[string]string
}

// Publisher keeps every publish, including failed ones.
type Publisher struct {
	mu      sync.RWMutex
	records []Record
	err     error
}

var _ publisher.Publisher = (*Publisher)(nil)

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes later publishes return err. They are still recorded.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records payload and returns a sequence-based message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	rec := Record{Topic: topic, Payload: payload}
	if a, ok := payload.(publisher.Attributer); ok {
		rec.Attributes = maps.Clone(a.Attributes())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	if p.err != nil {
		return "", p.err
	}
	return "memory-" + strconv.Itoa(len(p.records)), nil
}

// Records returns a copy of everything published so far.
func (p *Publisher) Records() []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Record, len(p.records))
	copy(out, p.records)
	return out
}

// Matching returns the records whose attribute key equals value, for example
// every alert of kind "offline-inverter" or every alert for one vendor.
func (p *Publisher) Matching(key, value string) []Record {
	var out []Record
	for _, r := range p.Records() {
		if r.Attributes[key] == value {
			out = append(out, r)
		}
	}
	return out
}
