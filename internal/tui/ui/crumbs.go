package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Crumbs is a breadcrumb bar showing the page stack.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

// NewCrumbs creates a new breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Crumbs{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the trail. The last title is highlighted as active.
func (c *Crumbs) Update(titles []string) {
	c.Clear()

	var sb strings.Builder
	for i, title := range titles {
		if i > 0 {
			sb.WriteString(" > ")
		}
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(titles)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		fmt.Fprintf(&sb, "[%s:%s:%s] %s [-:-:-]", ColorName(fg), ColorName(bg), attr, tview.Escape(title))
	}
	_, _ = fmt.Fprint(c, sb.String())
}
