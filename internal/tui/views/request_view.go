package views

import (
	"fmt"

	"github.com/matheus3301/helpline/internal/home"
	"github.com/matheus3301/helpline/internal/tui/ui"
	"github.com/rivo/tview"
)

// RequestView displays one help request in full.
type RequestView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewRequestView creates a new request details view.
func NewRequestView(theme *ui.Theme) *RequestView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Request ")
	tv.SetTitleColor(theme.TitleColor)

	return &RequestView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (rv *RequestView) Name() string { return "Request" }

// Hints implements Component.
func (rv *RequestView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Accept"},
		{Key: "Esc", Description: "Back"},
	}
}

// Update renders req.
func (rv *RequestView) Update(req home.Request) {
	rv.Clear()

	fg := ui.ColorName(rv.theme.FgColor)
	val := ui.ColorName(rv.theme.CounterColor)

	state := "Open. Press Enter to help."
	if req.Mine {
		state = "Yours. Waiting for someone to accept."
	}
	name := req.RequesterName
	if name == "" {
		name = req.RequesterID
	}

	_, _ = fmt.Fprintf(rv,
		"\n [%s::b]From:[-:-:-]     [%s]%s[-]\n"+
			" [%s::b]Distance:[-:-:-] [%s]%s[-]\n"+
			" [%s::b]Where:[-:-:-]    [%s]%s[-]\n"+
			" [%s::b]State:[-:-:-]    [%s]%s[-]\n\n"+
			" %s\n",
		fg, val, tview.Escape(sanitizeForTerminal(name)),
		fg, val, formatDistance(req.DistanceKm),
		fg, val, req.Location,
		fg, val, state,
		tview.Escape(sanitizeForTerminal(req.Description)),
	)
	rv.SetTitle(fmt.Sprintf(" Request %s ", req.ID))
}
