package monitortest

import (
	"context"
	"sync"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
)

// Session is a fake monitor.Session handing out scripted pages in order.
type Session struct {
	Vendor string
	// Hub is returned by the first NewPage call; later calls get fresh pages.
	Hub *Page

	mu      sync.Mutex
	pages   []*Page
	closed  int
	onClose func()
}

var _ monitor.Session = (*Session)(nil)

// NewPage implements monitor.Session.
func (s *Session) NewPage(_ context.Context) (monitor.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p *Page
	if len(s.pages) == 0 && s.Hub != nil {
		p = s.Hub
	} else {
		p = NewPage(s.Vendor)
	}
	s.pages = append(s.pages, p)
	return p, nil
}

// Close implements monitor.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed++
	first := s.closed == 1
	hook := s.onClose
	s.mu.Unlock()
	if first && hook != nil {
		hook()
	}
	return nil
}

// Closed reports how many times Close was called.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Browser is a fake monitor.Browser that tracks concurrently open sessions.
type Browser struct {
	// Hubs maps a vendor name to the hub page its session returns.
	Hubs map[string]*Page

	mu        sync.Mutex
	sessions  map[string]*Session
	active    int
	maxActive int
	closed    bool
}

var _ monitor.Browser = (*Browser)(nil)

// NewBrowser returns an empty fake browser.
func NewBrowser() *Browser {
	return &Browser{Hubs: map[string]*Page{}, sessions: map[string]*Session{}}
}

// NewSession implements monitor.Browser.
func (b *Browser) NewSession(_ context.Context, vendor monitor.Vendor) (monitor.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active++
	if b.active > b.maxActive {
		b.maxActive = b.active
	}
	s := &Session{Vendor: vendor.Name, Hub: b.Hubs[vendor.Name]}
	s.onClose = func() {
		b.mu.Lock()
		b.active--
		b.mu.Unlock()
	}
	b.sessions[vendor.Name] = s
	return s, nil
}

// Close implements monitor.Browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// MaxActive returns the peak number of simultaneously open sessions.
func (b *Browser) MaxActive() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxActive
}

// Session returns the session created for vendor, if any.
func (b *Browser) Session(vendor string) *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[vendor]
}
