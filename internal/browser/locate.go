package browser

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
)

// markAttr tags the element a locator resolved to so chromedp can address it with
// a plain CSS query.
const markAttr = "data-plantmonitor-mark"

// matchJS defines __pmMatch(css, text, exact) returning the elements a locator
// filters to. A locator without CSS keeps only the innermost text holders.
const matchJS = `function __pmMatch(css, text, exact) {
	const hit = (el) => {
		if (!text) return true;
		const t = el.innerText || el.textContent || "";
		return exact ? t.trim() === text : t.includes(text);
	};
	let found = Array.from(document.querySelectorAll(css || "body *")).filter(hit);
	if (!css) found = found.filter((el) => !Array.from(el.children).some(hit));
	return found;
}
function __pmPick(found, index) {
	const i = index < 0 ? found.length + index : index;
	return i >= 0 && i < found.length ? found[i] : null;
}
function __pmVisible(el) {
	const style = window.getComputedStyle(el);
	return el.getClientRects().length > 0 && style.visibility !== "hidden" && style.display !== "none";
}`

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func matchArgs(loc monitor.Locator) string {
	return fmt.Sprintf("%s, %s, %t", jsString(loc.CSS), jsString(loc.Text), loc.Exact)
}

// markScript resolves loc, tags the chosen element with token and evaluates to
// token, or to "" when nothing matches (or nothing visible matches when visible is set).
func markScript(loc monitor.Locator, token string, visible bool) string {
	return fmt.Sprintf(`(() => {
	%s
	const el = __pmPick(__pmMatch(%s), %d);
	if (!el || (%t && !__pmVisible(el))) return "";
	el.setAttribute(%s, %s);
	return %s;
})()`, matchJS, matchArgs(loc), loc.Index, visible, jsString(markAttr), jsString(token), jsString(token))
}

// countScript evaluates to the number of elements loc matches before indexing.
func countScript(loc monitor.Locator) string {
	return fmt.Sprintf(`(() => {
	%s
	return __pmMatch(%s).length;
})()`, matchJS, matchArgs(loc))
}

// textsScript evaluates to the inner texts of every match, or of the indexed
// match when the locator selects one.
func textsScript(loc monitor.Locator) string {
	return fmt.Sprintf(`(() => {
	%s
	let found = __pmMatch(%s);
	if (%d !== 0) {
		const el = __pmPick(found, %d);
		found = el ? [el] : [];
	}
	return found.map((el) => el.innerText || el.textContent || "");
})()`, matchJS, matchArgs(loc), loc.Index, loc.Index)
}

// rectScript evaluates to the viewport-relative box of the element at sel.
func rectScript(sel string) string {
	return fmt.Sprintf(`(() => {
	const r = document.querySelector(%s).getBoundingClientRect();
	return {x: r.x, y: r.y, width: r.width, height: r.height};
})()`, jsString(sel))
}

// forceClickScript dispatches clicks straight to the element at sel, skipping
// visibility and hit-testing.
func forceClickScript(sel string, count int) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	for (let i = 0; i < %d; i++) el.click();
	if (%d > 1) el.dispatchEvent(new MouseEvent("dblclick", {bubbles: true}));
	return true;
})()`, jsString(sel), count, count)
}

// checkScript ticks the checkbox at sel unless it is already checked.
func checkScript(sel string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el.checked) el.click();
	return el.checked;
})()`, jsString(sel))
}

func markSelector(token string) string {
	return fmt.Sprintf("[%s=%q]", markAttr, token)
}

type jsRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type scrollOffset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

const scrollScript = `({x: window.scrollX, y: window.scrollY})`
