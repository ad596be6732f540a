package views

import (
	"fmt"
	"strconv"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/helpline/internal/home"
	"github.com/matheus3301/helpline/internal/tui/ui"
	"github.com/rivo/tview"
)

// NearbyView is the home feed: open help requests around the user.
type NearbyView struct {
	*tview.Table
	theme    *ui.Theme
	requests []home.Request
	filter   string
	radiusKm float64
	empty    string
}

// NewNearbyView creates the nearby requests table.
func NewNearbyView(theme *ui.Theme) *NearbyView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	nv := &NearbyView{
		Table: table,
		theme: theme,
		empty: "Waiting for your location...",
	}
	nv.render()
	return nv
}

// Name implements Component.
func (nv *NearbyView) Name() string { return "Nearby" }

// Hints implements Component.
func (nv *NearbyView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Accept"},
		{Key: "d", Description: "Details"},
		{Key: "/", Description: "Filter"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// Update replaces the feed. Requests arrive sorted by distance.
func (nv *NearbyView) Update(requests []home.Request, radiusKm float64) {
	nv.requests = requests
	nv.radiusKm = radiusKm
	nv.empty = "No open requests nearby."
	nv.render()
}

// SetEmptyText sets the placeholder shown when nothing is listed.
func (nv *NearbyView) SetEmptyText(text string) {
	nv.empty = text
	nv.render()
}

// SetFilter sets the active filter text and re-renders.
func (nv *NearbyView) SetFilter(filter string) {
	nv.filter = filter
	nv.render()
}

// Filter returns the active filter.
func (nv *NearbyView) Filter() string { return nv.filter }

func (nv *NearbyView) visible() []home.Request {
	if nv.filter == "" {
		return nv.requests
	}
	var out []home.Request
	for _, r := range nv.requests {
		if containsFold(r.Description, nv.filter) || containsFold(r.RequesterName, nv.filter) {
			out = append(out, r)
		}
	}
	return out
}

func (nv *NearbyView) render() {
	nv.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" #", 0},
		{" DISTANCE", 0},
		{" FROM", 1},
		{" REQUEST", 3},
		{" STATE", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(nv.theme.TableHeaderFg).
			SetBackgroundColor(nv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		nv.SetCell(0, col, cell)
	}

	rows := nv.visible()
	if len(rows) == 0 {
		nv.SetCell(1, 3, tview.NewTableCell(" "+nv.empty).
			SetSelectable(false).
			SetTextColor(nv.theme.OfflineColor))
	}
	for i, r := range rows {
		row := i + 1
		fg := nv.theme.FgColor
		state := "open"
		if r.Mine {
			fg = nv.theme.MineColor
			state = "yours, waiting"
		}
		name := r.RequesterName
		if name == "" {
			name = r.RequesterID
		}
		nv.SetCell(row, 0, tview.NewTableCell(" "+strconv.Itoa(row)).SetTextColor(nv.theme.NumericKeyColor))
		nv.SetCell(row, 1, tview.NewTableCell(" "+formatDistance(r.DistanceKm)).SetTextColor(fg).SetAlign(tview.AlignRight))
		nv.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetExpansion(1).SetTextColor(fg))
		nv.SetCell(row, 3, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(r.Description))).SetExpansion(3).SetTextColor(fg))
		nv.SetCell(row, 4, tview.NewTableCell(" "+state).SetTextColor(fg))
	}

	if nv.filter != "" {
		nv.SetTitle(fmt.Sprintf(" Nearby (%d/%d) filter: %s ", len(rows), len(nv.requests), tview.Escape(nv.filter)))
	} else {
		nv.SetTitle(fmt.Sprintf(" Nearby within %g km (%d) ", nv.radiusKm, len(nv.requests)))
	}
}

// Selected returns the request under the cursor.
func (nv *NearbyView) Selected() (home.Request, bool) {
	row, _ := nv.GetSelection()
	return nv.ByIndex(row)
}

// ByIndex returns the Nth visible request (1-based).
func (nv *NearbyView) ByIndex(n int) (home.Request, bool) {
	rows := nv.visible()
	if n < 1 || n > len(rows) {
		return home.Request{}, false
	}
	return rows[n-1], true
}
