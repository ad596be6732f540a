// Package tui is the terminal front end: the nearby feed, recent chats and
// one live chat at a time.
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/helpline/internal/app"
	"github.com/matheus3301/helpline/internal/bus"
	"github.com/matheus3301/helpline/internal/geo"
	"github.com/matheus3301/helpline/internal/home"
	"github.com/matheus3301/helpline/internal/identity"
	"github.com/matheus3301/helpline/internal/room"
	"github.com/matheus3301/helpline/internal/tui/keys"
	"github.com/matheus3301/helpline/internal/tui/model"
	"github.com/matheus3301/helpline/internal/tui/ui"
	"github.com/matheus3301/helpline/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	pageNearby   = "nearby"
	pageChats    = "chats"
	pageChat     = "chat"
	pageLocation = "location"
	pageRequest  = "request"
	pageHelp     = "help"
)

// Options tunes the shell.
type Options struct {
	// Room, when set, is opened right after start.
	Room room.ID
}

// App is the main TUI application shell.
type App struct {
	env    *app.App
	opts   Options
	home   *home.Home
	vm     *model.ViewModel
	manual *geo.Manual
	logger *zap.Logger

	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	registry *keys.Registry
	info     *ui.ProfileInfo
	menu     *ui.Menu
	crumbs   *ui.Crumbs
	flash    *ui.FlashBar
	prompt   *ui.Prompt
	body     *tview.Flex

	nearby   *views.NearbyView
	chats    *views.ChatsView
	chat     *views.ChatView
	location *views.LocationView
	request  *views.RequestView
	help     *views.HelpView

	components map[string]ui.Component
	selected   home.Request

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp creates the TUI for an opened profile.
func NewApp(env *app.App, opts Options) *App {
	theme := ui.DefaultTheme()
	a := &App{
		env:    env,
		opts:   opts,
		home:   env.NewHome(),
		logger: env.Logger.With(zap.String("component", "tui")),

		app:      tview.NewApplication(),
		theme:    theme,
		pages:    ui.NewPages(),
		registry: keys.NewRegistry(),
		info:     ui.NewProfileInfo(theme),
		menu:     ui.NewMenu(theme),
		crumbs:   ui.NewCrumbs(theme),
		flash:    ui.NewFlashBar(theme),
		prompt:   ui.NewPrompt(theme),

		nearby:   views.NewNearbyView(theme),
		chats:    views.NewChatsView(theme),
		chat:     views.NewChatView(theme),
		location: views.NewLocationView(theme),
		request:  views.NewRequestView(theme),
		help:     views.NewHelpView(theme),
	}
	a.vm = model.New(env.Bus, func(id room.ID) (model.Chat, error) {
		s, err := env.NewChat(id)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	if m, ok := env.Locator.(*geo.Manual); ok {
		a.manual = m
		a.nearby.SetEmptyText("No position yet. Set one with :loc <lat>,<lon>")
	}
	a.components = map[string]ui.Component{
		pageNearby:   a.nearby,
		pageChats:    a.chats,
		pageChat:     a.chat,
		pageLocation: a.location,
		pageRequest:  a.request,
		pageHelp:     a.help,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	r := a.registry
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: ':', Label: ":", Description: "Command",
		Handler: func() { a.showPrompt(ui.PromptCommand) }})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: 'p', Label: "p", Description: "Ask for help",
		Handler: func() { a.showPrompt(ui.PromptPost) }})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: 'c', Label: "c", Description: "Chats",
		Handler: a.showChats})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: 'r', Label: "r", Description: "Refresh",
		Handler: a.refresh})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: '?', Label: "?", Description: "Help",
		Handler: func() { a.push(pageHelp) }})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: 'x', Label: "x", Description: "Dismiss",
		Handler: func() {
			a.vm.Flash.Dismiss()
			a.renderFlash()
		}})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "Quit",
		Handler: a.Stop})

	r.AddView(pageNearby, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Accept",
		Handler: func() {
			if req, ok := a.nearby.Selected(); ok {
				a.accept(req)
			}
		}})
	r.AddView(pageNearby, &keys.Action{Key: tcell.KeyRune, Rune: 'd', Label: "d", Description: "Details",
		Handler: func() {
			if req, ok := a.nearby.Selected(); ok {
				a.selected = req
				a.request.Update(req)
				a.push(pageRequest)
			}
		}})
	r.AddView(pageNearby, &keys.Action{Key: tcell.KeyRune, Rune: '/', Label: "/", Description: "Filter",
		Handler: func() { a.showPrompt(ui.PromptFilter) }})
	for n := '1'; n <= '9'; n++ {
		idx := int(n - '0')
		r.AddView(pageNearby, &keys.Action{Key: tcell.KeyRune, Rune: n, Hidden: true,
			Handler: func() {
				if req, ok := a.nearby.ByIndex(idx); ok {
					a.accept(req)
				}
			}})
	}

	r.AddView(pageRequest, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Accept",
		Handler: func() { a.accept(a.selected) }})

	r.AddView(pageChats, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Open",
		Handler: func() {
			if id, ok := a.chats.Selected(); ok {
				a.openChat(id)
			}
		}})

	r.AddView(pageChat, &keys.Action{Key: tcell.KeyRune, Rune: 'i', Label: "i", Description: "Compose",
		Handler: func() { a.app.SetFocus(a.chat.Composer()) }})
	r.AddView(pageChat, &keys.Action{Key: tcell.KeyRune, Rune: 'L', Label: "L", Description: "Share location",
		Handler: a.shareLocation})
	r.AddView(pageChat, &keys.Action{Key: tcell.KeyRune, Rune: 'm', Label: "m", Description: "Location QR",
		Handler: a.showLocation})
}

func (a *App) setupCallbacks() {
	a.chat.SetOnSend(func(text string) {
		s := a.vm.Chat()
		if s == nil {
			return
		}
		go func() {
			if err := s.SendText(a.ctx, text); err != nil {
				a.vm.Flash.Err(fmt.Errorf("send failed: %w", err))
			}
		}()
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.nearby.SetFilter(strings.TrimSpace(text))
		case ui.PromptPost:
			a.post(text)
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.pages.SetOnChange(func([]string) {
		a.crumbs.Update(a.crumbTitles())
		// Page hints first, then the global keys.
		a.menu.Update(append(slices.Clone(a.components[a.pages.Current()].Hints()), a.registry.Hints("")...))
	})
}

func (a *App) setupLayout() {
	for name, c := range a.components {
		a.pages.AddPage(name, c.(tview.Primitive), true, false)
	}

	header := tview.NewFlex().
		AddItem(ui.NewLogo(a.theme), 16, 0, false).
		AddItem(a.info, 0, 1, false).
		AddItem(a.menu, 0, 1, false)

	a.body = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.flash, 1, 0, false)

	a.app.SetRoot(a.body, true)
	a.app.SetInputCapture(a.handleKey)
	a.pages.Reset(pageNearby)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	focused := a.app.GetFocus()
	if focused == a.prompt.InputField {
		return event
	}
	if focused == a.chat.Composer() {
		if event.Key() == tcell.KeyEscape {
			a.app.SetFocus(a.chat.Messages())
			return nil
		}
		return event
	}

	if event.Key() == tcell.KeyEscape {
		a.back()
		return nil
	}
	if a.registry.HandleEvent(a.pages.Current(), event) {
		return nil
	}
	return event
}

// Run starts the shell and blocks until the user quits or ctx ends.
func (a *App) Run(ctx context.Context) error {
	if !a.env.Identity.LoggedIn() {
		return identity.ErrNotLoggedIn
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	defer a.cancel()

	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		if err := a.home.Run(a.ctx); err != nil && a.ctx.Err() == nil {
			a.logger.Warn("home stopped", zap.Error(err))
			a.vm.Flash.Err(fmt.Errorf("notifications stopped: %w", err))
		}
	}()
	go func() {
		defer a.wg.Done()
		a.vm.Watch(a.ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.watch()
	}()
	go func() {
		<-a.ctx.Done()
		a.app.Stop()
	}()

	a.renderHeader()
	if a.opts.Room != "" {
		a.openChat(a.opts.Room)
	}

	err := a.app.Run()
	a.cancel()
	if cerr := a.vm.CloseChat(); cerr != nil {
		a.logger.Debug("closing chat", zap.Error(cerr))
	}
	a.wg.Wait()
	return err
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.app.Stop()
}

// watch redraws on model changes, flash messages and a clock tick.
func (a *App) watch() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case c := <-a.vm.Changes():
			if c.Open != "" {
				a.openChat(c.Open)
			}
			a.app.QueueUpdateDraw(func() { a.redraw(c.Kind) })
		case <-a.vm.Flash.Watch():
			a.app.QueueUpdateDraw(a.renderFlash)
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() {
				a.renderHeader()
				a.renderFlash()
			})
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) redraw(kind string) {
	switch kind {
	case bus.KindNearbyUpdated:
		a.renderNearby()
	case bus.KindStatusChanged, bus.KindMessage, bus.KindPresenceUpdated, bus.KindLocationUnavailable:
		a.renderChat()
	}
	a.renderHeader()
	a.renderFlash()
}

func (a *App) renderNearby() {
	a.nearby.Update(a.home.Nearby(), a.home.RadiusKm())
	if err := a.home.FeedErr(); err != nil {
		a.nearby.SetEmptyText("Could not load nearby requests: " + err.Error())
	}
}

func (a *App) renderChat() {
	s := a.vm.Chat()
	if s == nil {
		return
	}
	a.chat.Update(views.ChatSnapshot{
		Self:       a.env.Identity.Self(),
		PeerName:   s.PeerName(),
		PeerOnline: s.PeerOnline(),
		Stale:      s.PresenceStale(),
		State:      s.State(),
		Timeline:   s.Timeline(),
		HistoryErr: s.HistoryErr(),
		Err:        s.Err(),
	})
	if a.pages.Current() == pageChat {
		a.crumbs.Update(a.crumbTitles())
	}
}

func (a *App) renderHeader() {
	data := ui.ProfileData{
		Profile:  a.env.Profile,
		Channel:  "offline",
		Nearby:   len(a.home.Nearby()),
		RadiusKm: a.home.RadiusKm(),
	}
	if u, ok := a.env.Identity.User(); ok {
		data.User = fmt.Sprintf("%s (%s)", u.Name, u.ID)
	}
	if p, ok := a.home.Location(); ok {
		data.Location = p.String()
	}
	if a.home.Online() {
		data.Channel = "online"
	}
	a.info.Update(data)
}

func (a *App) renderFlash() {
	a.flash.Update(a.vm.Flash.Current())
}

func (a *App) crumbTitles() []string {
	stack := a.pages.Stack()
	titles := make([]string, 0, len(stack))
	for _, name := range stack {
		titles = append(titles, a.components[name].Name())
	}
	return titles
}

func (a *App) push(page string) {
	a.pages.Push(page)
	a.app.SetFocus(a.focusTarget(page))
}

func (a *App) back() {
	popped := a.pages.Pop()
	if popped == pageChat {
		go func() {
			if err := a.vm.CloseChat(); err != nil {
				a.logger.Debug("closing chat", zap.Error(err))
			}
		}()
	}
	a.app.SetFocus(a.focusTarget(a.pages.Current()))
}

func (a *App) focusTarget(page string) tview.Primitive {
	if page == pageChat {
		return a.chat.Messages()
	}
	return a.components[page].(tview.Primitive)
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	if mode == ui.PromptFilter {
		a.prompt.SetText(a.nearby.Filter())
	}
	a.body.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.body.ResizeItem(a.prompt, 0, 0)
	a.app.SetFocus(a.focusTarget(a.pages.Current()))
}

func (a *App) showChats() {
	handoffs, err := a.env.Handoff.Recent(50)
	if err != nil {
		a.vm.Flash.Err(err)
		a.renderFlash()
		return
	}
	last, _ := a.home.LastChat()
	a.chats.Update(handoffs, last)
	a.push(pageChats)
}

func (a *App) showLocation() {
	loc, err := a.chat.LastLocation()
	if err != nil {
		a.vm.Flash.Warn(err.Error())
		a.renderFlash()
		return
	}
	sender := a.chat.Name()
	if loc.Sender == a.env.Identity.Self() {
		sender = "You"
	}
	a.location.Show(loc, sender)
	a.push(pageLocation)
}

// openChat starts the session off the UI goroutine, then shows it.
func (a *App) openChat(id room.ID) {
	go func() {
		if _, err := a.vm.OpenChat(a.ctx, id); err != nil {
			a.vm.Flash.Err(fmt.Errorf("open chat: %w", err))
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.renderChat()
			a.push(pageChat)
		})
	}()
}

func (a *App) accept(req home.Request) {
	if req.ID == "" {
		return
	}
	if req.Mine {
		a.vm.Flash.Warn("That is your own request. Waiting for someone to accept it.")
		a.renderFlash()
		return
	}
	go func() {
		id, err := a.home.Accept(a.ctx, req.ID)
		if err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.vm.Flash.Info("Request accepted. Opening the chat.")
		a.openChat(id)
	}()
}

func (a *App) post(text string) {
	go func() {
		if err := a.home.Post(a.ctx, text); err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.vm.Flash.Info("Help request posted. Nearby helpers can see it now.")
	}()
}

func (a *App) refresh() {
	go func() {
		if err := a.home.Refresh(a.ctx); err != nil {
			a.vm.Flash.Err(err)
		}
	}()
}

func (a *App) shareLocation() {
	s := a.vm.Chat()
	if s == nil {
		return
	}
	go func() {
		if err := s.ShareLocation(a.ctx); err != nil {
			a.vm.Flash.Warn(err.Error())
			return
		}
		a.vm.Flash.Info("Locating you...")
	}()
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "":
	case "q", "quit":
		a.Stop()
	case "h", "help":
		a.push(pageHelp)
	case "chats":
		a.showChats()
	case "chat":
		id, err := room.Normalize(cmd.Args)
		if err != nil {
			a.vm.Flash.Err(err)
			break
		}
		a.openChat(id)
	case "resume":
		id, ok := a.home.LastChat()
		if !ok {
			a.vm.Flash.Warn("No chat to resume yet.")
			break
		}
		a.openChat(id)
	case "post":
		a.post(cmd.Args)
	case "refresh":
		a.refresh()
	case "loc":
		if a.manual == nil {
			a.vm.Flash.Warn("Position comes from the configuration and cannot be set here.")
			break
		}
		p, err := parsePoint(cmd.Args)
		if err != nil {
			a.vm.Flash.Err(err)
			break
		}
		a.manual.Set(p)
		a.vm.Flash.Info("Position set to " + p.String())
	default:
		a.vm.Flash.Warn(fmt.Sprintf("Unknown command %q. Press ? for help.", cmd.Name))
	}
	a.renderFlash()
}
