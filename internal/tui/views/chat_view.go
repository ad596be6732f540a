package views

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/helpline/internal/message"
	"github.com/matheus3301/helpline/internal/status"
	"github.com/matheus3301/helpline/internal/tui/ui"
	"github.com/rivo/tview"
)

// ChatSnapshot is everything the chat page renders.
type ChatSnapshot struct {
	Self       string
	PeerName   string
	PeerOnline bool
	Stale      bool
	State      status.State
	Timeline   []message.Message
	HistoryErr error
	Err        error
}

// ChatView displays a room's timeline and a composer.
type ChatView struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	peer     string
	lastLoc  *message.Location
	onSend   func(text string)
}

// NewChatView creates a new chat view.
func NewChatView(theme *ui.Theme) *ChatView {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Chat ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Message (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	cv := &ChatView{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || cv.onSend == nil {
			return
		}
		text := composer.GetText()
		if strings.TrimSpace(text) == "" {
			return
		}
		composer.SetText("")
		cv.onSend(text)
	})

	return cv
}

// Name implements Component.
func (cv *ChatView) Name() string {
	if cv.peer != "" {
		return cv.peer
	}
	return "Chat"
}

// Hints implements Component.
func (cv *ChatView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "L", Description: "Share location"},
		{Key: "m", Description: "Last location QR"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnSend sets the callback for a submitted line.
func (cv *ChatView) SetOnSend(fn func(text string)) {
	cv.onSend = fn
}

// Update re-renders the thread from snap.
func (cv *ChatView) Update(snap ChatSnapshot) {
	cv.peer = snap.PeerName
	cv.lastLoc = nil
	cv.messages.Clear()

	dot, presence := ui.ColorName(cv.theme.OfflineColor), "offline"
	switch {
	case snap.Stale:
		presence = "unknown"
	case snap.PeerOnline:
		dot, presence = ui.ColorName(cv.theme.OnlineColor), "online"
	}
	cv.messages.SetTitle(fmt.Sprintf(" %s [%s]●[-] %s · %s ",
		tview.Escape(sanitizeForTerminal(snap.PeerName)), dot, presence, strings.ToLower(string(snap.State))))

	var sb strings.Builder
	if snap.HistoryErr != nil {
		fmt.Fprintf(&sb, "[%s]Earlier messages could not be loaded.[-]\n\n", ui.ColorName(cv.theme.FlashWarnColor))
	}
	for _, m := range snap.Timeline {
		h := m.Meta()
		sender, color := snap.PeerName, cv.theme.PeerColor
		if h.Sender == snap.Self {
			sender, color = "You", cv.theme.SelfColor
		}
		fmt.Fprintf(&sb, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n", ui.ColorName(color),
			tview.Escape(sanitizeForTerminal(sender)), formatTimestamp(h.Timestamp))
		switch v := m.(type) {
		case message.Text:
			sb.WriteString(tview.Escape(sanitizeForTerminal(v.Body)))
		case message.Location:
			loc := v
			cv.lastLoc = &loc
			fmt.Fprintf(&sb, "📍 %s\n[::u]%s[-:-:-]", tview.Escape(message.Preview(v)), v.MapsURL())
		}
		sb.WriteString("\n\n")
	}
	if len(snap.Timeline) == 0 && snap.HistoryErr == nil {
		fmt.Fprintf(&sb, "[%s]No messages yet. Say hello.[-]\n", ui.ColorName(cv.theme.OfflineColor))
	}
	if snap.Err != nil {
		fmt.Fprintf(&sb, "[%s]%s[-]\n", ui.ColorName(cv.theme.FlashErrColor), tview.Escape(snap.Err.Error()))
	}
	_, _ = fmt.Fprint(cv.messages, sb.String())
	cv.messages.ScrollToEnd()
}

// LastLocation returns the most recent location share in the thread.
func (cv *ChatView) LastLocation() (message.Location, error) {
	if cv.lastLoc == nil {
		return message.Location{}, errors.New("no location shared in this chat yet")
	}
	return *cv.lastLoc, nil
}

// Messages returns the thread text view (for focus management).
func (cv *ChatView) Messages() *tview.TextView {
	return cv.messages
}

// Composer returns the composer input field (for focus management).
func (cv *ChatView) Composer() *tview.InputField {
	return cv.composer
}

// Text returns the rendered thread without color tags.
func (cv *ChatView) Text() string {
	return cv.messages.GetText(true)
}
