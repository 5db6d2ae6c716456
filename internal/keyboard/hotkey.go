package keyboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/dooshek/murmur/internal/config"
)

// DefaultDebounce ignores repeats of the combination that come too fast.
const DefaultDebounce = 500 * time.Millisecond

// ModifierState tracks the state of modifier keys (Ctrl, Shift, Alt, Super)
type ModifierState struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Super bool
}

// Matcher turns a stream of key events into hotkey activations.
type Matcher struct {
	binding       config.KeyBinding
	targetKeyCode uint16
	modifierState ModifierState
	debounce      time.Duration
	lastFired     time.Time
}

func NewMatcher(binding config.KeyBinding, debounce time.Duration) (*Matcher, error) {
	code, ok := KeyCodes[strings.ToLower(binding.Key)]
	if !ok {
		return nil, fmt.Errorf("unsupported hotkey key %q", binding.Key)
	}
	return &Matcher{
		binding:       binding,
		targetKeyCode: code,
		debounce:      debounce,
	}, nil
}

// Handle records a key press or release and reports whether it completed
// the configured combination.
func (m *Matcher) Handle(code uint16, pressed bool, now time.Time) bool {
	switch code {
	case KeyLeftControl, KeyRightControl:
		m.modifierState.Ctrl = pressed
		return false
	case KeyLeftShift, KeyRightShift:
		m.modifierState.Shift = pressed
		return false
	case KeyLeftAlt, KeyRightAlt:
		m.modifierState.Alt = pressed
		return false
	case KeyLeftSuper, KeyRightSuper:
		m.modifierState.Super = pressed
		return false
	}

	if !pressed || code != m.targetKeyCode || !m.checkModifiers() {
		return false
	}
	if !m.lastFired.IsZero() && now.Sub(m.lastFired) <= m.debounce {
		return false
	}
	m.lastFired = now
	return true
}

// checkModifiers verifies if current modifier state matches the configuration
func (m *Matcher) checkModifiers() bool {
	return m.modifierState.Ctrl == m.binding.Ctrl &&
		m.modifierState.Shift == m.binding.Shift &&
		m.modifierState.Alt == m.binding.Alt &&
		m.modifierState.Super == m.binding.Super
}

// String describes the binding, e.g. "ctrl+shift+m".
func (m *Matcher) String() string {
	var parts []string
	if m.binding.Ctrl {
		parts = append(parts, "ctrl")
	}
	if m.binding.Shift {
		parts = append(parts, "shift")
	}
	if m.binding.Alt {
		parts = append(parts, "alt")
	}
	if m.binding.Super {
		parts = append(parts, "super")
	}
	return strings.Join(append(parts, strings.ToLower(m.binding.Key)), "+")
}
