package evidence

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/storage"
	"github.com/JakeFAU/solar-plant-monitor/internal/storage/local"
)

const pngContentType = "image/png"

// Recorder writes evidence to the authoritative local store and best-effort mirrors.
type Recorder struct {
	store   *local.BlobStore
	layout  Layout
	mirrors []storage.Named
	logger  *zap.Logger
}

var _ monitor.EvidenceSink = (*Recorder)(nil)

// NewRecorder wires a Recorder. Mirror failures are logged and never returned.
func NewRecorder(store *local.BlobStore, layout Layout, logger *zap.Logger, mirrors ...storage.Named) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("local store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:   store,
		layout:  layout,
		mirrors: mirrors,
		logger:  logger.Named("evidence"),
	}, nil
}

// Layout returns the recorder's path layout.
func (r *Recorder) Layout() Layout {
	return r.layout
}

// Save implements monitor.EvidenceSink.
func (r *Recorder) Save(ctx context.Context, vendor, plant string, c monitor.Capture) (string, error) {
	return r.put(ctx, r.layout.CapturePath(vendor, plant, c), c.Data)
}

// SaveFault implements monitor.EvidenceSink.
func (r *Recorder) SaveFault(ctx context.Context, vendor, plant string, at time.Time, data []byte) (string, error) {
	return r.put(ctx, r.layout.FaultPath(vendor, plant, at), data)
}

// CountFaults implements monitor.EvidenceSink. It counts every stored fault
// screenshot for plant across all dates.
func (r *Recorder) CountFaults(vendor, plant string) (int, error) {
	names, err := r.store.List(path.Join(clean(vendor), FaultDir))
	if err != nil {
		return 0, fmt.Errorf("count faults for %s: %w", plant, err)
	}
	n := 0
	for _, name := range names {
		if IsFaultOf(name, plant) {
			n++
		}
	}
	return n, nil
}

// Resolve maps store-relative paths to filesystem paths, dropping the ones that
// do not exist.
func (r *Recorder) Resolve(paths []string) (found []string, missing []string) {
	for _, p := range paths {
		full, err := r.store.Resolve(p)
		if err != nil {
			missing = append(missing, p)
			continue
		}
		ok, err := r.store.Exists(p)
		if err != nil || !ok {
			missing = append(missing, full)
			continue
		}
		found = append(found, full)
	}
	return found, missing
}

// Attachments returns the evidence files a notification should carry along with
// the expected paths that are missing on disk.
func (r *Recorder) Attachments(n monitor.Notification) (found []string, missing []string) {
	switch n.Kind {
	case monitor.KindOfflineInverter:
		return r.Resolve(r.layout.InverterPaths(n.Vendor, n.Plant))
	case monitor.KindFaultHistory:
		return r.Resolve([]string{r.layout.FaultPath(n.Vendor, n.Plant, n.At)})
	default:
		return nil, nil
	}
}

// ReportArtifacts returns the existing report artifacts for a plant, in order.
func (r *Recorder) ReportArtifacts(vendor, plant string) []string {
	found, _ := r.Resolve(r.layout.ReportPaths(vendor, plant))
	return found
}

func (r *Recorder) put(ctx context.Context, rel string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty artifact %s", rel)
	}
	if _, err := r.store.PutObject(ctx, rel, pngContentType, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("save artifact %s: %w", rel, err)
	}
	for _, m := range r.mirrors {
		uri, err := m.Store.PutObject(ctx, rel, pngContentType, bytes.NewReader(data))
		if err != nil {
			r.logger.Warn("mirror upload failed", zap.String("mirror", m.Name), zap.String("path", rel), zap.Error(err))
			continue
		}
		r.logger.Debug("mirrored artifact", zap.String("mirror", m.Name), zap.String("uri", uri))
	}
	full, err := r.store.Resolve(rel)
	if err != nil {
		return "", err
	}
	return full, nil
}
