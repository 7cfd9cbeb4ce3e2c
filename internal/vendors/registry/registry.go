// Package registry maps vendor keys to adapter constructors.
package registry

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/config"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/vendors"
	"github.com/JakeFAU/solar-plant-monitor/internal/vendors/growatt"
	"github.com/JakeFAU/solar-plant-monitor/internal/vendors/phb"
	"github.com/JakeFAU/solar-plant-monitor/internal/vendors/shine"
	"github.com/JakeFAU/solar-plant-monitor/internal/vendors/solis"
	"github.com/JakeFAU/solar-plant-monitor/internal/vendors/solplanet"
	"github.com/JakeFAU/solar-plant-monitor/internal/vendors/sungrow"
)

// Factory builds an adapter.
type Factory func(opts vendors.Options) (monitor.VendorAdapter, error)

func wrap[A monitor.VendorAdapter](fn func(vendors.Options) (A, error)) Factory {
	return func(opts vendors.Options) (monitor.VendorAdapter, error) {
		a, err := fn(opts)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

var factories = map[string]Factory{
	solis.Name:     wrap(solis.New),
	solplanet.Name: wrap(solplanet.New),
	sungrow.Name:   wrap(sungrow.New),
	growatt.Name:   wrap(growatt.New),
	phb.Name:       wrap(phb.New),
	shine.Name:     wrap(shine.New),
}

// Names returns every known vendor key in sorted order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the adapter registered under name.
func New(name string, opts vendors.Options) (monitor.VendorAdapter, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown vendor %q (known: %v)", name, Names())
	}
	adapter, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("build %s adapter: %w", name, err)
	}
	return adapter, nil
}

// Options derives adapter options for vendor from the loaded configuration.
func Options(cfg config.Config, vendor monitor.Vendor, notifier monitor.Notifier, logger *zap.Logger) vendors.Options {
	vc := cfg.Vendors[vendor.Name]
	return vendors.Options{
		Vendor:         vendor,
		Selectors:      vc.Selectors,
		CarouselFrames: vc.CarouselFrames,
		Challenge: vendors.ChallengeOptions{
			Attempts:       cfg.Challenge.Attempts,
			ReloadPause:    time.Duration(cfg.Challenge.ReloadPauseMillis) * time.Millisecond,
			SuccessTimeout: time.Duration(cfg.Challenge.SuccessTimeoutSeconds) * time.Second,
		},
		Notifier: notifier,
		Logger:   logger,
	}
}

// Build resolves the named vendor from cfg and builds its adapter.
func Build(cfg config.Config, name string, notifier monitor.Notifier, logger *zap.Logger) (monitor.Vendor, monitor.VendorAdapter, error) {
	vendor, err := cfg.Vendor(name)
	if err != nil {
		return monitor.Vendor{}, nil, err
	}
	adapter, err := New(name, Options(cfg, vendor, notifier, logger))
	if err != nil {
		return monitor.Vendor{}, nil, err
	}
	return vendor, adapter, nil
}

// CarouselFrames returns the frame counts of carousel vendors for the evidence
// layout.
func CarouselFrames(cfg config.Config) map[string]int {
	out := map[string]int{}
	for _, name := range cfg.EnabledVendors() {
		if name != phb.Name {
			continue
		}
		frames := cfg.Vendors[name].CarouselFrames
		if frames <= 0 {
			frames = phb.DefaultCarouselFrames
		}
		out[name] = frames
	}
	return out
}
