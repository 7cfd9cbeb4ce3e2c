// Package evidence persists screenshots under the per-vendor directory layout and
// answers questions about the artifacts already on disk.
package evidence

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
)

// FaultDir is the per-vendor subdirectory holding dated fault screenshots.
const FaultDir = "Falhas"

const faultPrefix = "falha "

// Layout maps artifacts to store-relative paths. CarouselFrames records vendors
// whose inverter panel is captured as numbered frames.
type Layout struct {
	CarouselFrames map[string]int
}

// ArtifactPath returns "<vendor>/<plant> - <kind>.png".
func (l Layout) ArtifactPath(vendor, plant string, kind monitor.ArtifactKind) string {
	return path.Join(clean(vendor), fmt.Sprintf("%s - %s.png", clean(plant), kind))
}

// FramePath returns "<vendor>/<plant> - inversor <n>.png".
func (l Layout) FramePath(vendor, plant string, frame int) string {
	return path.Join(clean(vendor), fmt.Sprintf("%s - inversor %d.png", clean(plant), frame))
}

// FaultPath returns "<vendor>/Falhas/falha <plant> - <YYYY-MM-DD>.png".
func (l Layout) FaultPath(vendor, plant string, at time.Time) string {
	return path.Join(clean(vendor), FaultDir, fmt.Sprintf("%s%s - %s.png", faultPrefix, clean(plant), at.Format(time.DateOnly)))
}

// CapturePath resolves the path for a capture produced by a vendor adapter.
func (l Layout) CapturePath(vendor, plant string, c monitor.Capture) string {
	if c.Frame > 0 {
		return l.FramePath(vendor, plant, c.Frame)
	}
	return l.ArtifactPath(vendor, plant, c.Kind)
}

// InverterPaths returns the inverter evidence paths for a plant: the numbered
// carousel frames for carousel vendors, otherwise the single panel artifact.
func (l Layout) InverterPaths(vendor, plant string) []string {
	frames := l.CarouselFrames[vendor]
	if frames <= 0 {
		return []string{l.ArtifactPath(vendor, plant, monitor.ArtifactInverters)}
	}
	out := make([]string, 0, frames)
	for i := 1; i <= frames; i++ {
		out = append(out, l.FramePath(vendor, plant, i))
	}
	return out
}

// ReportPaths returns the ordered artifact list handed to report assembly:
// overview, chart, then inverter evidence.
func (l Layout) ReportPaths(vendor, plant string) []string {
	out := []string{
		l.ArtifactPath(vendor, plant, monitor.ArtifactOverview),
		l.ArtifactPath(vendor, plant, monitor.ArtifactChart),
	}
	return append(out, l.InverterPaths(vendor, plant)...)
}

// IsFaultOf reports whether a file name in FaultDir belongs to plant.
func IsFaultOf(name, plant string) bool {
	return strings.HasPrefix(name, faultPrefix+clean(plant)+" - ")
}

func clean(s string) string {
	return strings.NewReplacer("/", "-", "\\", "-").Replace(strings.TrimSpace(s))
}
