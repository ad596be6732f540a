package ui

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // 1-9 jumps, drawn in a different color
}

// Component is a page the shell can push onto the stack.
type Component interface {
	Name() string
	Hints() []MenuHint
}
