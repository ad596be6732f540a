package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/helpline/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays the key and command reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

var helpSections = []struct {
	title string
	rows  [][2]string
}{
	{"Global", [][2]string{
		{":", "Command mode"},
		{"p", "Ask for help here"},
		{"c", "Recent chats"},
		{"r", "Refresh location and feed"},
		{"?", "This help"},
		{"x", "Dismiss the notification"},
		{"Esc", "Back / cancel"},
		{"q", "Quit"},
	}},
	{"Nearby", [][2]string{
		{"Enter", "Accept the selected request"},
		{"d", "Request details"},
		{"/", "Filter by text"},
		{"1-9", "Accept the Nth request"},
	}},
	{"Chat", [][2]string{
		{"i", "Focus the composer"},
		{"L", "Share your current location"},
		{"m", "Show the last shared location as a QR code"},
	}},
	{"Commands", [][2]string{
		{":chat <room>", "Open a chat by room id"},
		{":resume", "Reopen the last chat"},
		{":post <text>", "Ask for help"},
		{":loc <lat>,<lon>", "Set your position manually"},
		{":quit", "Quit"},
	}},
}

func (hv *HelpView) render() {
	kc := ui.ColorName(hv.theme.MenuKeyColor)

	var sb strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&sb, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(&sb, "  [%s]%-18s[-:-:-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
	_, _ = fmt.Fprint(hv, sb.String())
}
