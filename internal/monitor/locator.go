package monitor

import (
	"fmt"
	"strings"
)

// Locator describes how to find an element: a CSS selector, optionally narrowed to
// elements whose text contains Text, then the Index-th match (negative counts from the end).
// An empty CSS with a Text matches the innermost elements holding that text.
type Locator struct {
	CSS   string
	Text  string
	Exact bool
	Index int
}

// CSS returns a locator for the first element matching selector.
func CSS(selector string) Locator {
	return Locator{CSS: selector}
}

// Text returns a locator for the innermost element whose text contains text.
func Text(text string) Locator {
	return Locator{Text: text}
}

// HasText narrows l to elements whose visible text contains text.
func (l Locator) HasText(text string) Locator {
	l.Text = text
	l.Exact = false
	return l
}

// WithExactText narrows l to elements whose trimmed text equals text.
func (l Locator) WithExactText(text string) Locator {
	l.Text = text
	l.Exact = true
	return l
}

// Nth selects the i-th match. Negative values count from the last match.
func (l Locator) Nth(i int) Locator {
	l.Index = i
	return l
}

// Last selects the last match.
func (l Locator) Last() Locator {
	return l.Nth(-1)
}

// Matches reports whether text satisfies the locator's text filter.
func (l Locator) Matches(text string) bool {
	if l.Text == "" {
		return true
	}
	if l.Exact {
		return strings.TrimSpace(text) == l.Text
	}
	return strings.Contains(text, l.Text)
}

func (l Locator) String() string {
	var b strings.Builder
	if l.CSS == "" {
		b.WriteString("text")
	}
	b.WriteString(l.CSS)
	if l.Text != "" {
		if l.Exact {
			fmt.Fprintf(&b, " =%q", l.Text)
		} else {
			fmt.Fprintf(&b, " ~%q", l.Text)
		}
	}
	if l.Index != 0 {
		fmt.Fprintf(&b, " [%d]", l.Index)
	}
	return b.String()
}

// Rect is an element bounding box in CSS pixels.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// MidX returns the horizontal midpoint of r.
func (r Rect) MidX() float64 { return r.X + r.Width/2 }

// MidY returns the vertical midpoint of r.
func (r Rect) MidY() float64 { return r.Y + r.Height/2 }
