package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Menu displays keyboard shortcut hints in columns.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint panel.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// menuRows is how many hints fit in the header before wrapping to a new
// column.
const menuRows = 6

// Update lays hints out top to bottom, then left to right.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()

	cols := (len(hints) + menuRows - 1) / menuRows
	width := 0
	for _, h := range hints {
		width = max(width, len(h.Key)+len(h.Description)+3)
	}
	for row := 0; row < min(len(hints), menuRows); row++ {
		for col := 0; col < cols; col++ {
			i := col*menuRows + row
			if i >= len(hints) {
				break
			}
			_, _ = fmt.Fprint(m, m.cell(hints[i], width))
		}
		_, _ = fmt.Fprintln(m)
	}
}

func (m *Menu) cell(h MenuHint, width int) string {
	kc := ColorName(m.theme.MenuKeyColor)
	if h.Numeric {
		kc = ColorName(m.theme.NumericKeyColor)
	}
	pad := width - len(h.Key) - len(h.Description) - 3
	return fmt.Sprintf("[%s::b]<%s>[-:-:-] %s%*s ", kc, h.Key, h.Description, pad, "")
}
