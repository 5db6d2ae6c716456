package keyboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MarinX/keylogger"
	"github.com/dooshek/murmur/internal/config"
	"github.com/dooshek/murmur/internal/logger"
)

// Monitor reads the first keyboard evdev device and calls toggle whenever
// the configured hotkey is pressed.
type Monitor struct {
	matcher  *Matcher
	toggle   func()
	keyboard *keylogger.KeyLogger
}

func NewMonitor(binding config.KeyBinding, toggle func()) (*Monitor, error) {
	matcher, err := NewMatcher(binding, DefaultDebounce)
	if err != nil {
		return nil, err
	}
	return &Monitor{matcher: matcher, toggle: toggle}, nil
}

// Start blocks reading key events until ctx is done or the device closes.
func (m *Monitor) Start(ctx context.Context) error {
	keyboards := keylogger.FindAllKeyboardDevices()
	if len(keyboards) == 0 {
		return fmt.Errorf("no keyboard devices found")
	}

	kbd, err := keylogger.New(keyboards[0])
	if err != nil {
		if strings.Contains(err.Error(), "permission denied") {
			fmt.Printf("Cannot access keyboard device.\n" +
				"Solution: \n" +
				"1. Add yourself to the input group: sudo usermod -aG input $USER \n" +
				"2. Log out and log back in (or restart your system) \n" +
				"3. Run the program again \n\n")
		}
		return fmt.Errorf("error initializing keylogger: %w", err)
	}
	m.keyboard = kbd
	logger.Infof("⌨️  Hotkey %s toggles listening", m.matcher)

	events := kbd.Read()
	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Type != keylogger.EvKey {
				continue
			}
			if !e.KeyPress() && !e.KeyRelease() {
				continue
			}
			if m.matcher.Handle(uint16(e.Code), e.KeyPress(), time.Now()) {
				logger.Debugf("Detected hotkey %s, toggling session", m.matcher)
				m.toggle()
			}
		}
	}
}

func (m *Monitor) Stop() {
	if m.keyboard != nil {
		m.keyboard.Close()
	}
}
