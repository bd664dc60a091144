// Package handle implements component B, the window and application
// handles that wrap an accessibility element together with the observer
// registrations that keep its state current.
//
// Construction is all-or-nothing: if any one of a handle's notification
// registrations fails, the registrations that already succeeded are torn
// down before the constructor returns its error, mirroring what
// `Vec<T>`'s destructor does implicitly in the original Rust
// implementation this package is ported from. Go has no destructors, so
// that unwind is spelled out explicitly with defer/goto-free straight-line
// cleanup.
package handle

import (
	"fmt"
	"sync"

	"github.com/tilepilot/axcore/internal/platform"
	"github.com/tilepilot/axcore/internal/wmtypes"
)

// WindowHandle is a live window: its accessibility element plus every
// observer registered against it. Fields are declared in the order they
// must be torn down — observers before the element itself, since an
// observer registration outliving its element is undefined behavior on
// the OS side.
type WindowHandle struct {
	WinId      wmtypes.WinId
	OwnerPid   wmtypes.Pid
	WindowLayer wmtypes.Layer
	Bounds     wmtypes.Rect
	Owner      string
	WindowName string
	HasName    bool

	observers []platform.ObserverToken
	element   platform.Element

	bindings platform.Bindings
}

// NewWindowHandle registers the full WinNotifications set against elem
// and returns a handle wrapping it. On any registration failure, every
// registration that already succeeded is removed before the error is
// returned; elem itself is left to the caller to release.
func NewWindowHandle(b platform.Bindings, info platform.WindowInfo, elem platform.Element, onEvent platform.NotificationHandler) (*WindowHandle, error) {
	h := &WindowHandle{
		WinId:       info.Number,
		OwnerPid:    info.OwnerPid,
		WindowLayer: info.Layer,
		Bounds:      info.Bounds,
		Owner:       info.OwnerName,
		WindowName:  info.Name,
		HasName:     info.HasName,
		element:     elem,
		bindings:    b,
	}

	refcon := uintptr(info.Number)
	for _, notification := range platform.WinNotifications {
		tok, err := b.RegisterObserver(info.OwnerPid, elem, notification, refcon, onEvent)
		if err != nil {
			h.releaseObservers()
			return nil, fmt.Errorf("NewWindowHandle: registering %q for window %d: %w", notification, info.Number, err)
		}
		h.observers = append(h.observers, tok)
	}
	return h, nil
}

func (h *WindowHandle) releaseObservers() {
	for _, tok := range h.observers {
		_ = h.bindings.RemoveObserver(tok)
	}
	h.observers = nil
}

// Close tears down h's observers, then releases the underlying element.
// After Close, h must not be used again.
func (h *WindowHandle) Close() {
	h.releaseObservers()
	h.bindings.ReleaseElement(h.element)
}

func (h *WindowHandle) Element() platform.Element { return h.element }

func (h *WindowHandle) SetPosition(p wmtypes.Point) error {
	return h.bindings.SetPosition(h.element, p)
}

func (h *WindowHandle) SetSize(w, height int32) error {
	return h.bindings.SetSize(h.element, w, height)
}

func (h *WindowHandle) SetMinimized(minimized bool) error {
	return h.bindings.SetMinimized(h.element, minimized)
}

func (h *WindowHandle) Raise() error {
	return h.bindings.Raise(h.element)
}

func (h *WindowHandle) CloseWindow() error {
	return h.bindings.Close(h.element)
}

func (h *WindowHandle) IsFullscreen() bool {
	return h.bindings.IsFullscreen(h.element)
}

// AppHandle is a live application: its accessibility root element plus
// the AppNotifications observers registered against it. Field order is
// significant for the same reason as WindowHandle's.
type AppHandle struct {
	Pid  wmtypes.Pid
	Name string

	mu        sync.Mutex
	observers []platform.ObserverToken
	element   platform.Element

	bindings platform.Bindings
}

// NewAppHandle registers the full AppNotifications set against the
// accessibility root element for pid, with the same all-or-nothing
// cleanup-on-failure behavior as NewWindowHandle.
func NewAppHandle(b platform.Bindings, pid wmtypes.Pid, name string, onEvent platform.NotificationHandler) (*AppHandle, error) {
	elem, err := b.ApplicationElement(pid)
	if err != nil {
		return nil, fmt.Errorf("NewAppHandle: %w", err)
	}

	h := &AppHandle{Pid: pid, Name: name, element: elem, bindings: b}

	refcon := uintptr(pid)
	for _, notification := range platform.AppNotifications {
		tok, err := b.RegisterObserver(pid, elem, notification, refcon, onEvent)
		if err != nil {
			h.releaseObservers()
			return nil, fmt.Errorf("NewAppHandle: registering %q for pid %d: %w", notification, pid, err)
		}
		h.observers = append(h.observers, tok)
	}
	return h, nil
}

func (h *AppHandle) releaseObservers() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, tok := range h.observers {
		_ = h.bindings.RemoveObserver(tok)
	}
	h.observers = nil
}

// Close tears down h's observers, then releases the underlying element.
// After Close, h must not be used again.
func (h *AppHandle) Close() {
	h.releaseObservers()
	h.bindings.ReleaseElement(h.element)
}

func (h *AppHandle) Element() platform.Element { return h.element }

func (h *AppHandle) Activate() error {
	return h.bindings.Activate(h.element, h.Pid)
}

func (h *AppHandle) FocusedWindow() (wmtypes.WinId, bool) {
	win, err := h.bindings.FocusedWindow(h.element)
	if err != nil {
		return 0, false
	}
	defer h.bindings.ReleaseElement(win)
	return h.bindings.WindowIDForElement(win)
}

// EnhancedUserInterfaceEnabled reads the undocumented attribute; while it
// is enabled the app animates its own window resizes/moves, and turning
// it off suppresses that animation.
func (h *AppHandle) EnhancedUserInterfaceEnabled() bool {
	return h.bindings.EnhancedUserInterfaceEnabled(h.element)
}

// SetEnhancedUserInterface writes the attribute. Turned off to bracket a batch
// of geometry writes so the OS applies them without animating each one.
func (h *AppHandle) SetEnhancedUserInterface(enabled bool) error {
	return h.bindings.SetEnhancedUserInterface(h.element, enabled)
}

// ResolveWindow finds the accessibility element for id among h's windows.
// Returns wmerr.ErrWindowNotFound if no match exists.
func (h *AppHandle) ResolveWindow(id wmtypes.WinId) (platform.Element, error) {
	return h.bindings.ResolveWindowElement(h.element, id)
}
