package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel represents the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// FlashMessage is a flash notification with a level and expiry.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

// FlashModel holds the current transient notification. Safe for concurrent use.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	watchCh chan FlashMessage
}

// NewFlashModel creates a new flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{
		watchCh: make(chan FlashMessage, 8),
	}
}

// Info sets an info-level flash message.
func (f *FlashModel) Info(msg string) {
	f.set(msg, FlashInfo, 5*time.Second)
}

// Warn sets a warn-level flash message.
func (f *FlashModel) Warn(msg string) {
	f.set(msg, FlashWarn, 8*time.Second)
}

// Err sets an error-level flash message. A nil error is ignored.
func (f *FlashModel) Err(err error) {
	if err == nil {
		return
	}
	f.set(err.Error(), FlashErr, 10*time.Second)
}

// set replaces the current message. Repeating the message on screen only
// extends it, without waking watchers again.
func (f *FlashModel) set(msg string, level FlashLevel, d time.Duration) {
	now := time.Now()
	f.mu.Lock()
	repeat := f.current.Text == msg && f.current.Level == level && now.Before(f.current.Expires)
	f.current = FlashMessage{Text: msg, Level: level, Expires: now.Add(d)}
	fm := f.current
	f.mu.Unlock()
	if repeat {
		return
	}
	select {
	case f.watchCh <- fm:
	default:
	}
}

// Dismiss clears the current message before it expires.
func (f *FlashModel) Dismiss() {
	f.mu.Lock()
	had := time.Now().Before(f.current.Expires)
	f.current = FlashMessage{}
	f.mu.Unlock()
	if !had {
		return
	}
	select {
	case f.watchCh <- FlashMessage{}:
	default:
	}
}

// Current returns the active flash message, or nil if it expired.
func (f *FlashModel) Current() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// Watch returns a channel that receives every new flash message.
// Messages are dropped while the channel is full.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

// FlashBar is the UI component that displays flash notifications.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a new flash notification bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders msg, or clears the bar when msg is nil.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}

	color := ColorName(fb.theme.FlashInfoColor)
	switch msg.Level {
	case FlashWarn:
		color = ColorName(fb.theme.FlashWarnColor)
	case FlashErr:
		color = ColorName(fb.theme.FlashErrColor)
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", color, tview.Escape(msg.Text))
}
