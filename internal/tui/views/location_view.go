package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/helpline/internal/message"
	"github.com/matheus3301/helpline/internal/tui/ui"
	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"
)

// LocationView shows a shared location as a scannable map link.
type LocationView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewLocationView creates a new location view.
func NewLocationView(theme *ui.Theme) *LocationView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Shared Location ")
	tv.SetTitleColor(theme.TitleColor)

	return &LocationView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (lv *LocationView) Name() string { return "Location" }

// Hints implements Component.
func (lv *LocationView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Show renders loc shared by sender.
func (lv *LocationView) Show(loc message.Location, sender string) {
	lv.Clear()
	url := loc.MapsURL()
	_, _ = fmt.Fprintf(lv, "\n  %s shared %.5f, %.5f\n  Scan to open the map:\n\n%s\n  [::u]%s[-:-:-]",
		tview.Escape(sanitizeForTerminal(sender)), loc.Latitude, loc.Longitude, renderQR(url), url)
}

// renderQR draws content as a QR code with Unicode half blocks, two
// module rows per terminal line.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}

	bitmap := qr.Bitmap()
	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		sb.WriteString("  ")
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
