// Package challenge solves the horizontal drag puzzle some dashboards show after
// login. The puzzle's target offset is read from the canvas style attribute, so no
// image analysis is involved.
package challenge

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
)

// Selectors locate the puzzle parts on the page.
type Selectors struct {
	Modal  monitor.Locator
	Handle monitor.Locator
	Canvas monitor.Locator
	Reload monitor.Locator
	// SuccessURL is the page the site navigates to once the puzzle is accepted.
	SuccessURL string
}

// Solver resolves one puzzle instance.
type Solver interface {
	Solve(ctx context.Context, page monitor.Page) error
}

// DragSolver drags the slider handle onto the canvas gap.
type DragSolver struct {
	sel            Selectors
	settle         time.Duration
	successTimeout time.Duration
	rng            *rand.Rand
	pause          func(context.Context, time.Duration) error
	logger         *zap.Logger
}

var _ Solver = (*DragSolver)(nil)

// SolverOption customizes a DragSolver.
type SolverOption func(*DragSolver)

// WithSettle sets the pause before pressing and before releasing the handle.
func WithSettle(d time.Duration) SolverOption {
	return func(s *DragSolver) { s.settle = d }
}

// WithSuccessTimeout bounds the wait for the post-solve navigation.
func WithSuccessTimeout(d time.Duration) SolverOption {
	return func(s *DragSolver) { s.successTimeout = d }
}

// WithRand replaces the jitter source.
func WithRand(r *rand.Rand) SolverOption {
	return func(s *DragSolver) { s.rng = r }
}

// WithPause replaces the settle wait, normally monitor.Pause.
func WithPause(fn func(context.Context, time.Duration) error) SolverOption {
	return func(s *DragSolver) { s.pause = fn }
}

// NewDragSolver returns a solver for the given selectors.
func NewDragSolver(sel Selectors, logger *zap.Logger, opts ...SolverOption) *DragSolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DragSolver{
		sel:            sel,
		settle:         700 * time.Millisecond,
		successTimeout: 7 * time.Second,
		rng:            rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		pause:          monitor.Pause,
		logger:         logger.Named("challenge"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Solve performs one press-drag-release attempt and waits for the success URL.
func (s *DragSolver) Solve(ctx context.Context, page monitor.Page) error {
	if s.sel.Modal.CSS != "" {
		if err := page.WaitVisible(ctx, s.sel.Modal); err != nil {
			return fmt.Errorf("wait for challenge modal: %w", err)
		}
	}
	handle, err := page.BoundingBox(ctx, s.sel.Handle)
	if err != nil {
		return fmt.Errorf("locate slider handle: %w", err)
	}
	canvas, err := page.BoundingBox(ctx, s.sel.Canvas)
	if err != nil {
		return fmt.Errorf("locate puzzle canvas: %w", err)
	}
	canvasStyle, err := page.Attribute(ctx, s.sel.Canvas, "style")
	if err != nil {
		return fmt.Errorf("read canvas style: %w", err)
	}
	canvasLeft, err := CanvasOffset(canvasStyle)
	if err != nil {
		return err
	}

	if err := page.MouseMove(ctx, handle.MidX(), handle.MidY(), 1); err != nil {
		return fmt.Errorf("hover handle: %w", err)
	}
	if err := s.pause(ctx, s.settle); err != nil {
		return err
	}
	if err := page.MouseDown(ctx); err != nil {
		return fmt.Errorf("press handle: %w", err)
	}

	jitterY := handle.MidY() + float64(s.rng.IntN(5)-2)
	steps := 9 + s.rng.IntN(8)
	if err := page.MouseMove(ctx, canvas.MidX(), jitterY, steps); err != nil {
		return fmt.Errorf("drag handle: %w", err)
	}

	handleStyle, err := page.Attribute(ctx, s.sel.Handle, "style")
	if err != nil {
		return fmt.Errorf("read handle style: %w", err)
	}
	handleLeft, err := HandleOffset(handleStyle)
	if err != nil {
		return err
	}
	if delta := canvasLeft - handleLeft; delta != 0 {
		s.logger.Debug("correcting drag", zap.Float64("delta", delta))
		if err := page.MouseMove(ctx, canvas.MidX()+delta, handle.MidY(), 1); err != nil {
			return fmt.Errorf("correct drag: %w", err)
		}
	}

	if err := s.pause(ctx, s.settle); err != nil {
		return err
	}
	if err := page.MouseUp(ctx); err != nil {
		return fmt.Errorf("release handle: %w", err)
	}
	if err := page.WaitURL(ctx, s.sel.SuccessURL, s.successTimeout); err != nil {
		return fmt.Errorf("challenge not accepted: %w", err)
	}
	return nil
}

// CanvasOffset reads the horizontal offset from the first declaration of a canvas
// style such as "left: 132px; top: 4px".
func CanvasOffset(style string) (float64, error) {
	first, _, _ := strings.Cut(style, ";")
	_, value, ok := strings.Cut(first, ":")
	if !ok {
		return 0, fmt.Errorf("canvas style %q has no offset", style)
	}
	return parsePixels(value)
}

// HandleOffset reads the horizontal offset from the last declaration of a handle
// style such as "left: 128px;".
func HandleOffset(style string) (float64, error) {
	idx := strings.LastIndex(style, ":")
	if idx < 0 {
		return 0, fmt.Errorf("handle style %q has no offset", style)
	}
	return parsePixels(strings.TrimSuffix(strings.TrimSpace(style[idx+1:]), ";"))
}

func parsePixels(v string) (float64, error) {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse pixel offset %q: %w", v, err)
	}
	return f, nil
}
