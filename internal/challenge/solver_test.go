package challenge

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor/monitortest"
)

const successURL = "https://example.test/overview"

var testSelectors = Selectors{
	Modal:      monitor.CSS("div.ant-modal-body"),
	Handle:     monitor.CSS("div.slider-button"),
	Canvas:     monitor.CSS("div.image-container > canvas.canvas"),
	Reload:     monitor.CSS("span.reload-tips").HasText("Refresh and re-verify"),
	SuccessURL: successURL,
}

func puzzlePage(canvasStyle, handleStyle string) *monitortest.Page {
	p := monitortest.NewPage("solplanet")
	p.SetBox(testSelectors.Handle, monitor.Rect{X: 10, Y: 400, Width: 40, Height: 40})
	p.SetBox(testSelectors.Canvas, monitor.Rect{X: 100, Y: 200, Width: 60, Height: 60})
	p.SetAttr(testSelectors.Canvas, "style", canvasStyle)
	p.SetAttr(testSelectors.Handle, "style", handleStyle)
	p.CurrentURL = successURL
	return p
}

func newTestSolver() *DragSolver {
	return NewDragSolver(testSelectors, zap.NewNop(), WithSettle(0), WithRand(rand.New(rand.NewPCG(1, 2))))
}

func TestSolveWithoutCorrection(t *testing.T) {
	t.Parallel()
	page := puzzlePage("left: 120px; top: 12px", "left: 120px;")

	require.NoError(t, newTestSolver().Solve(context.Background(), page))

	moves := page.Calls("mouse_move")
	require.Len(t, moves, 2)
	assert.Equal(t, 30.0, moves[0].Args[0])
	assert.Equal(t, 420.0, moves[0].Args[1])
	assert.Equal(t, 130.0, moves[1].Args[0])
	steps := moves[1].Args[2].(int)
	assert.GreaterOrEqual(t, steps, 9)
	assert.LessOrEqual(t, steps, 16)
	y := moves[1].Args[1].(float64)
	assert.InDelta(t, 420.0, y, 2)

	assert.Len(t, page.Calls("mouse_down"), 1)
	assert.Len(t, page.Calls("mouse_up"), 1)
}

func TestSolveIssuesOneCorrectiveMove(t *testing.T) {
	t.Parallel()
	page := puzzlePage("left: 120px; top: 12px", "left: 103px;")

	require.NoError(t, newTestSolver().Solve(context.Background(), page))

	moves := page.Calls("mouse_move")
	require.Len(t, moves, 3)
	corrective := moves[2]
	assert.Equal(t, 130.0+17.0, corrective.Args[0])
	assert.Equal(t, 420.0, corrective.Args[1])
	assert.Equal(t, 1, corrective.Args[2], "correction is a single move event")

	calls := page.Calls("")
	var correctiveIdx, releaseIdx int
	for i, c := range calls {
		switch c.Op {
		case "mouse_move":
			correctiveIdx = i
		case "mouse_up":
			releaseIdx = i
		}
	}
	assert.Less(t, correctiveIdx, releaseIdx)
}

func TestSolveFailsWhenURLDoesNotChange(t *testing.T) {
	t.Parallel()
	page := puzzlePage("left: 120px; top: 12px", "left: 120px;")
	page.CurrentURL = "https://example.test/login"

	err := newTestSolver().Solve(context.Background(), page)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "challenge not accepted")
}

func TestSolveMissingHandle(t *testing.T) {
	t.Parallel()
	page := monitortest.NewPage("solplanet")
	err := newTestSolver().Solve(context.Background(), page)
	require.ErrorIs(t, err, monitor.ErrNoBoundingBox)
}

func TestOffsets(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		parse   func(string) (float64, error)
		style   string
		want    float64
		wantErr bool
	}{
		{name: "canvas first declaration", parse: CanvasOffset, style: "left: 87px; top: 10px;", want: 87},
		{name: "canvas fractional", parse: CanvasOffset, style: "left:12.5px", want: 12.5},
		{name: "canvas garbage", parse: CanvasOffset, style: "display none", wantErr: true},
		{name: "handle last declaration", parse: HandleOffset, style: "transition: none; left: 64px;", want: 64},
		{name: "handle without semicolon", parse: HandleOffset, style: "left: 0px", want: 0},
		{name: "handle not a number", parse: HandleOffset, style: "left: auto;", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.parse(tt.style)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
