package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	assert.Equal(t, 1920, cfg.ViewportWidth)
	assert.Equal(t, 1080, cfg.ViewportHeight)
	assert.Equal(t, 45*time.Second, cfg.NavTimeout)
	assert.Equal(t, 30*time.Second, cfg.ActionTimeout)
	assert.NotEmpty(t, cfg.DownloadDir)

	custom := Config{ViewportWidth: 800, NavTimeout: time.Second, DownloadDir: "dl"}.withDefaults()
	assert.Equal(t, 800, custom.ViewportWidth)
	assert.Equal(t, time.Second, custom.NavTimeout)
	assert.Equal(t, "dl", custom.DownloadDir)
}

func TestScriptsQuoteLocatorText(t *testing.T) {
	t.Parallel()

	loc := monitor.CSS(`td[data-x="1"]`).HasText(`Usina "Sol"`).Nth(-1)
	script := markScript(loc, "7", true)
	assert.Contains(t, script, `"td[data-x=\"1\"]", "Usina \"Sol\"", false`)
	assert.Contains(t, script, "__pmPick(__pmMatch(")
	assert.Contains(t, script, "), -1)")
	assert.Contains(t, script, `(true && !__pmVisible(el))`)

	exact := countScript(monitor.Text("Alerta").Nth(0))
	assert.Contains(t, exact, `"", "Alerta", false`)

	texts := textsScript(monitor.CSS("tr").Nth(2))
	assert.Contains(t, texts, "if (2 !== 0)")
}

func TestMarkSelector(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `[data-plantmonitor-mark="42"]`, markSelector("42"))
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()
	stop := forwardCancel(parent, cancelChild)
	defer stop()

	cancelParent()
	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child context not cancelled")
	}
}

func TestBrowserDrivesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/plant" {
			fmt.Fprint(w, `<!doctype html><html><body><h1>Usina 1</h1><p class="kpi">12 kWh</p><p class="kpi">3 kW</p></body></html>`)
			return
		}
		fmt.Fprint(w, `<!doctype html><html><body>
<a id="open" href="/plant" target="_blank">Usina 1</a>
<table><tr><td>INV-1</td><td>Normal</td></tr><tr><td>INV-2</td><td>Offline</td></tr></table>
<label><input type="checkbox" id="agree"> I agree</label>
<button onclick="document.title='clicked'">Login</button>
</body></html>`)
	}))
	defer srv.Close()

	b, err := New(Config{Headless: true, DownloadDir: t.TempDir(), ActionTimeout: 5 * time.Second}, zap.NewNop())
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	sess, err := b.NewSession(ctx, monitor.Vendor{Name: "test"})
	if err != nil {
		t.Skipf("session unavailable: %v", err)
	}
	defer sess.Close()

	page, err := sess.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, page.Navigate(ctx, srv.URL))
	require.NoError(t, page.WaitReady(ctx, monitor.ReadyLoad))

	rows, err := page.InnerTexts(ctx, monitor.CSS("tr"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, strings.HasPrefix(rows[1], "INV-2"))

	n, err := page.Count(ctx, monitor.CSS("td").HasText("INV"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	text, err := page.InnerText(ctx, monitor.Text("Offline"))
	require.NoError(t, err)
	assert.Equal(t, "Offline", text)

	require.NoError(t, page.Check(ctx, monitor.CSS("#agree")))
	require.NoError(t, page.Click(ctx, monitor.CSS("button").HasText("Login")))

	_, err = page.BoundingBox(ctx, monitor.CSS("#missing"))
	assert.ErrorIs(t, err, monitor.ErrElementNotFound)

	shot, err := page.ScreenshotClip(ctx, monitor.Rect{Width: 200, Height: 100})
	require.NoError(t, err)
	assert.NotEmpty(t, shot)

	plant, err := page.ExpectNewPage(ctx, func(ctx context.Context) error {
		return page.Click(ctx, monitor.CSS("#open"))
	})
	require.NoError(t, err)
	defer plant.Close()
	require.NoError(t, plant.WaitReady(ctx, monitor.ReadyLoad))
	title, err := plant.InnerText(ctx, monitor.CSS("h1"))
	require.NoError(t, err)
	assert.Equal(t, "Usina 1", title)
	kpis, err := plant.Count(ctx, monitor.CSS("p.kpi"))
	require.NoError(t, err)
	assert.Equal(t, 2, kpis)

	tab, err := sess.NewPage(ctx)
	require.NoError(t, err)
	defer tab.Close()
	require.NoError(t, tab.Navigate(ctx, srv.URL+"/plant"))
	kpis, err = tab.Count(ctx, monitor.CSS("p.kpi"))
	require.NoError(t, err)
	assert.Equal(t, 2, kpis)

	// The hub tab keeps working after other tabs came and went.
	n, err = page.Count(ctx, monitor.CSS("tr"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWarmupRejectsPlainContext(t *testing.T) {
	t.Parallel()

	tabCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := warmup(context.Background(), tabCtx, cancel, time.Second)
	require.ErrorIs(t, err, chromedp.ErrInvalidContext)
	assert.NoError(t, tabCtx.Err())
}

func TestWarmupReportsCallerCancellation(t *testing.T) {
	t.Parallel()

	caller, stop := context.WithCancel(context.Background())
	stop()
	tabCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := warmup(caller, tabCtx, cancel, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}
