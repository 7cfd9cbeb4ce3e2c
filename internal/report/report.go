// Package report keeps one monthly report container per plant. A container is a
// JSON manifest listing, page by page, the evidence collected on each run.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/storage/local"
)

// ErrNoContainer indicates the month's container does not exist and cannot be
// created outside the first day of the month.
var ErrNoContainer = errors.New("report container not found")

// ArtifactSource lists the evidence files of a plant in report order.
type ArtifactSource interface {
	ReportArtifacts(vendor, plant string) []string
}

// Manifest is the stored container.
type Manifest struct {
	Vendor  string    `json:"vendor"`
	Plant   string    `json:"plant"`
	Year    int       `json:"year"`
	Month   int       `json:"month"`
	Created time.Time `json:"created"`
	Pages   []Page    `json:"pages"`
}

// Page is the evidence of one run.
type Page struct {
	Date      string   `json:"date"`
	RunID     string   `json:"run_id,omitempty"`
	Artifacts []string `json:"artifacts"`
}

// Assembler creates containers and appends pages to them.
type Assembler struct {
	files     *local.BlobStore
	artifacts ArtifactSource
	logger    *zap.Logger
}

// New creates an Assembler writing into files.
func New(files *local.BlobStore, artifacts ArtifactSource, logger *zap.Logger) (*Assembler, error) {
	if files == nil {
		return nil, fmt.Errorf("report file store is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{files: files, artifacts: artifacts, logger: logger.Named("report")}, nil
}

// FileName returns "<vendor>/<plant> - mês <N>.json" for the month of at.
func FileName(vendor, plant string, at time.Time) string {
	return path.Join(vendor, fmt.Sprintf("%s - mês %d.json", plant, int(at.Month())))
}

// Ensure creates the container for the month of now unless it already exists.
// It reports whether a container was created.
func (a *Assembler) Ensure(ctx context.Context, vendor, plant string, now time.Time) (bool, error) {
	name := FileName(vendor, plant, now)
	ok, err := a.files.Exists(name)
	if err != nil {
		return false, fmt.Errorf("check container %s: %w", name, err)
	}
	if ok {
		return false, nil
	}
	m := newManifest(vendor, plant, now)
	if err := a.write(ctx, name, m); err != nil {
		return false, err
	}
	a.logger.Info("report container created", zap.String("vendor", vendor), zap.String("plant", plant), zap.String("path", name))
	return true, nil
}

// Load reads the container for the month of at.
func (a *Assembler) Load(ctx context.Context, vendor, plant string, at time.Time) (Manifest, error) {
	name := FileName(vendor, plant, at)
	raw, err := a.files.GetObject(ctx, name)
	if errors.Is(err, fs.ErrNotExist) {
		return Manifest{}, fmt.Errorf("%s: %w", name, ErrNoContainer)
	}
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode %s: %w", name, err)
	}
	return m, nil
}

// AppendPage adds a page dated now listing the plant's current evidence. On the
// first day of the month a missing container is created first.
func (a *Assembler) AppendPage(ctx context.Context, vendor, plant string, now time.Time, runID string) error {
	m, err := a.Load(ctx, vendor, plant, now)
	switch {
	case errors.Is(err, ErrNoContainer) && now.Day() == 1:
		m = newManifest(vendor, plant, now)
	case err != nil:
		return err
	}

	artifacts := a.artifacts.ReportArtifacts(vendor, plant)
	if len(artifacts) == 0 {
		return fmt.Errorf("no evidence on disk for %s - %s", vendor, plant)
	}
	m.Pages = append(m.Pages, Page{
		Date:      now.Format("02/01/2006"),
		RunID:     runID,
		Artifacts: artifacts,
	})
	if err := a.write(ctx, FileName(vendor, plant, now), m); err != nil {
		return err
	}
	a.logger.Info("report page appended",
		zap.String("vendor", vendor),
		zap.String("plant", plant),
		zap.Int("pages", len(m.Pages)),
		zap.Int("artifacts", len(artifacts)),
	)
	return nil
}

func newManifest(vendor, plant string, now time.Time) Manifest {
	return Manifest{
		Vendor:  vendor,
		Plant:   plant,
		Year:    now.Year(),
		Month:   int(now.Month()),
		Created: now,
		Pages:   []Page{},
	}
}

func (a *Assembler) write(ctx context.Context, name string, m Manifest) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if _, err := a.files.PutObject(ctx, name, "application/json", &buf); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
