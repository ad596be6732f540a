package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/helpline/internal/room"
	"github.com/matheus3301/helpline/internal/store"
	"github.com/matheus3301/helpline/internal/tui/ui"
	"github.com/rivo/tview"
)

// ChatsView lists past handoffs so their chats can be reopened.
type ChatsView struct {
	*tview.Table
	theme    *ui.Theme
	handoffs []store.Handoff
	last     room.ID
}

// NewChatsView creates the recent chats table.
func NewChatsView(theme *ui.Theme) *ChatsView {
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
	table.SetTitle(" Chats ")
	table.SetTitleColor(theme.TitleColor)

	return &ChatsView{Table: table, theme: theme}
}

// Name implements Component.
func (cv *ChatsView) Name() string { return "Chats" }

// Hints implements Component.
func (cv *ChatsView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "Esc", Description: "Back"},
	}
}

// Update refreshes the list. last marks the chat that would be resumed.
func (cv *ChatsView) Update(handoffs []store.Handoff, last room.ID) {
	cv.handoffs = handoffs
	cv.last = last
	cv.Clear()

	for col, h := range []string{" PEER", " ROLE", " ROOM", " UPDATED"} {
		cv.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(cv.theme.TableHeaderFg).
			SetBackgroundColor(cv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}

	for i, h := range handoffs {
		row := i + 1
		name := h.PeerName
		if name == "" {
			name = h.PeerID
		}
		if room.ID(h.RoomID) == last {
			name = "* " + name
		}
		role := "helped by"
		if h.Role == store.RoleAccepter {
			role = "helping"
		}
		updated := formatTimestamp(time.UnixMilli(h.UpdatedAt))
		cv.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetExpansion(1).SetTextColor(cv.theme.FgColor))
		cv.SetCell(row, 1, tview.NewTableCell(" "+role).SetTextColor(cv.theme.FgColor))
		cv.SetCell(row, 2, tview.NewTableCell(" "+h.RoomID).SetTextColor(cv.theme.FgColor))
		cv.SetCell(row, 3, tview.NewTableCell(" "+updated).SetTextColor(cv.theme.FgColor).SetAlign(tview.AlignRight))
	}
	cv.SetTitle(fmt.Sprintf(" Chats (%d) ", len(handoffs)))
}

// Selected returns the room under the cursor.
func (cv *ChatsView) Selected() (room.ID, bool) {
	row, _ := cv.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(cv.handoffs) {
		return "", false
	}
	return room.ID(cv.handoffs[idx].RoomID), true
}
