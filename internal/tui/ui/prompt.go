package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode selects what a submitted prompt line means.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
	// PromptPost collects the description of a new help request.
	PromptPost
)

// Prompt is the single-line input bar for commands, filters and posts.
type Prompt struct {
	*tview.InputField
	theme    *Theme
	mode     PromptMode
	onSubmit func(mode PromptMode, text string)
	onCancel func()
}

// NewPrompt creates a new prompt input bar.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)
	input.SetPlaceholderTextColor(theme.DimColor)

	p := &Prompt{
		InputField: input,
		theme:      theme,
	}

	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := p.GetText()
			p.SetText("")
			if p.onSubmit != nil {
				p.onSubmit(p.mode, text)
			}
		case tcell.KeyEscape:
			p.SetText("")
			if p.onCancel != nil {
				p.onCancel()
			}
		}
	})

	return p
}

// SetOnSubmit sets the callback for Enter. Empty lines are passed through
// so an empty filter can clear the current one.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnCancel sets the callback for Esc.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// postLimit caps a help request typed in the prompt.
const postLimit = 280

var promptModes = map[PromptMode]struct {
	label, title, placeholder string
}{
	PromptCommand: {":", " Command ", "chats, chat <room>, resume, loc <lat>,<lon>, quit"},
	PromptFilter:  {"/", " Filter ", "match name or description, empty to clear"},
	PromptPost:    {"+ ", " Ask for help ", "what do you need? people nearby will see this"},
}

// Activate prepares the prompt for mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.SetText("")
	m := promptModes[mode]
	p.SetLabel(m.label)
	p.SetTitle(m.title)
	p.SetPlaceholder(m.placeholder)
	if mode == PromptPost {
		p.SetAcceptanceFunc(tview.InputFieldMaxLength(postLimit))
	} else {
		p.SetAcceptanceFunc(nil)
	}
}

// Mode returns the current prompt mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}
