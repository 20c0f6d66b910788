// Package tray provides the system tray icon of the touch table.
package tray

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/getlantern/systray"
	"github.com/pkg/browser"

	"github.com/ayusman/touchtable/internal/surface"
)

// Tray represents the system tray application.
type Tray struct {
	onOpen func()
	onQuit func()
	status string
	mu     sync.RWMutex

	// Menu items stored for later updates
	menuStatus *systray.MenuItem
}

// New creates a new Tray instance.
func New() *Tray {
	return &Tray{
		status: "Starting",
	}
}

// OnOpen sets the callback function to be called when the open canvas menu item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called or the quit item is clicked.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops a running tray.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Touchtable")
	systray.SetTooltip("Touchtable")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem(t.status, "Table state")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Canvas...", "Open the canvas viewer in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Touchtable")

	go func() {
		for {
			select {
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetStatus updates the status line of the menu.
func (t *Tray) SetStatus(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = text
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(text)
	}
}

// Status returns the current status line.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Label formats a session status for the menu, e.g. "Calibrating 2/4".
func Label(st surface.Status, backgroundReady bool) string {
	switch {
	case !backgroundReady:
		return "Learning background"
	case st.State == surface.StateCalibrating:
		return fmt.Sprintf("Calibrating %d/%d", st.Collected, st.Targets)
	default:
		return "Drawing"
	}
}

// openBrowser is replaced in tests.
var openBrowser = browser.OpenURL

// OpenURL opens an http(s) url in the default browser.
func OpenURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("open %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("open %q: not an http url", rawURL)
	}
	return openBrowser(u.String())
}
