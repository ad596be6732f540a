// Package model holds the TUI state that outlives a single page: the
// running home feed, the open chat session and transient notifications.
package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/helpline/internal/bus"
	"github.com/matheus3301/helpline/internal/chat"
	"github.com/matheus3301/helpline/internal/handoff"
	"github.com/matheus3301/helpline/internal/message"
	"github.com/matheus3301/helpline/internal/presence"
	"github.com/matheus3301/helpline/internal/room"
	"github.com/matheus3301/helpline/internal/status"
	"github.com/matheus3301/helpline/internal/tui/ui"
)

// Chat is the chat session surface the TUI drives. *chat.Session
// implements it.
type Chat interface {
	Start(ctx context.Context) error
	Close() error
	Room() room.ID
	SendText(ctx context.Context, body string) error
	ShareLocation(ctx context.Context) error
	State() status.State
	PeerName() string
	PeerOnline() bool
	PresenceStale() bool
	Timeline() []message.Message
	HistoryErr() error
	Err() error
}

// Opener prepares a chat session for a room.
type Opener func(room.ID) (Chat, error)

// Change tells the shell which part of the screen to redraw.
type Change struct {
	Kind string
	// Open is set when a request of ours was accepted and its chat should
	// be shown.
	Open room.ID
}

// ViewModel turns bus events into redraw signals and flash notices and
// owns the single open chat.
type ViewModel struct {
	mu    sync.Mutex
	open  Opener
	bus   *bus.Bus
	chat  Chat
	Flash *ui.FlashModel

	changes chan Change
}

// New creates a view model.
func New(b *bus.Bus, open Opener) *ViewModel {
	return &ViewModel{
		open:    open,
		bus:     b,
		Flash:   ui.NewFlashModel(),
		changes: make(chan Change, 32),
	}
}

// Changes returns the redraw signal channel.
func (vm *ViewModel) Changes() <-chan Change {
	return vm.changes
}

// Watch consumes bus events until ctx ends.
func (vm *ViewModel) Watch(ctx context.Context) {
	events, unsub := vm.bus.Subscribe("", 64)
	defer unsub()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			c, ok := vm.apply(evt)
			if !ok {
				continue
			}
			if c.Open == "" {
				vm.signal(c)
				continue
			}
			select {
			case vm.changes <- c:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// apply records the notice for evt. Events from chats other than the open
// one are dropped.
func (vm *ViewModel) apply(evt bus.Event) (Change, bool) {
	c := Change{Kind: evt.Kind}
	switch p := evt.Payload.(type) {
	case status.StatusChange:
		if !vm.isOpen(p.Room) {
			return c, false
		}
		switch p.To {
		case status.Disconnected:
			vm.Flash.Warn("Connection lost. Retrying...")
		case status.Joined:
			if p.From == status.Reconnecting {
				vm.Flash.Info("Reconnected.")
			}
		}
	case presence.Snapshot:
		if !vm.isOpen(p.Room) {
			return c, false
		}
	case chat.LocationUnavailable:
		if !vm.isOpen(p.Room) {
			return c, false
		}
		vm.Flash.Err(fmt.Errorf("could not share your location: %w", p.Err))
	case handoff.Result:
		if p.Fresh {
			vm.Flash.Info("Someone accepted your request. Opening the chat.")
			c.Open = p.Room
		}
	}
	return c, true
}

// signal drops the change when the shell is behind; redraws coalesce.
func (vm *ViewModel) signal(c Change) {
	select {
	case vm.changes <- c:
	default:
	}
}

func (vm *ViewModel) isOpen(id room.ID) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.chat != nil && vm.chat.Room() == id
}

// OpenChat closes the current chat, if any, and starts one for id.
// Reopening the current room returns the running session.
func (vm *ViewModel) OpenChat(ctx context.Context, id room.ID) (Chat, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if norm, err := room.Normalize(id.String()); err == nil && vm.chat != nil && vm.chat.Room() == norm {
		return vm.chat, nil
	}
	if vm.chat != nil {
		_ = vm.chat.Close()
		vm.chat = nil
	}
	s, err := vm.open(id)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	vm.chat = s
	return s, nil
}

// Chat returns the open session, or nil.
func (vm *ViewModel) Chat() Chat {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.chat
}

// CloseChat ends the open session.
func (vm *ViewModel) CloseChat() error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.chat == nil {
		return nil
	}
	err := vm.chat.Close()
	vm.chat = nil
	return err
}
