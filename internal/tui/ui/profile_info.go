package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// ProfileData is the header summary of the signed-in profile.
type ProfileData struct {
	Profile  string
	User     string
	Location string
	Channel  string
	Nearby   int
	RadiusKm float64
}

// ProfileInfo displays profile metadata in the header.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates a new profile info panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &ProfileInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the profile info.
func (pi *ProfileInfo) Update(data ProfileData) {
	pi.Clear()

	fg := ColorName(pi.theme.FgColor)
	val := ColorName(pi.theme.CounterColor)
	orDash := func(s string) string {
		if s == "" {
			return "-"
		}
		return tview.Escape(s)
	}

	_, _ = fmt.Fprintf(pi,
		"[%s::b]Profile:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]     [%s]%s[-]\n"+
			"[%s::b]Location:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]Channel:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Nearby:[-:-:-]   [%s]%d within %g km[-]",
		fg, val, orDash(data.Profile),
		fg, val, orDash(data.User),
		fg, val, orDash(data.Location),
		fg, val, orDash(data.Channel),
		fg, val, data.Nearby, data.RadiusKm,
	)
}
