// Package platform provides thin, memory-safe wrappers over the OS
// accessibility, workspace, and display primitives the connection core is
// built on. It is the only package in the module that may import cgo or
// OS-specific frameworks; every other package consumes the Bindings
// interface.
package platform

import (
	"github.com/tilepilot/axcore/internal/wmtypes"
)

// WindowInfo is the attribute dictionary the OS reports for an on-screen,
// non-desktop window: {number, owner_pid, layer, bounds, owner_name, name?}.
type WindowInfo struct {
	Number    wmtypes.WinId
	OwnerPid  wmtypes.Pid
	Layer     wmtypes.Layer
	Bounds    wmtypes.Rect
	OwnerName string
	Name      string // optional; empty if the OS reported none
	HasName   bool
}

// RunningApp is the subset of a running-application object the core needs
// to construct an application record.
type RunningApp struct {
	Pid  wmtypes.Pid
	Name string
}

// Element is an opaque accessibility-element handle (an application, a
// window, or a child element such as a close button). It is deliberately
// opaque outside this package; callers pass it back into Bindings methods.
type Element interface {
	// IsValid reports whether the underlying native reference is non-nil.
	// It does not guarantee the OS-side element is still alive.
	IsValid() bool
}

// ObserverToken is returned by RegisterObserver and passed to
// RemoveObserver to tear the registration down. Holding a token does not
// keep anything alive; the caller owns the lifetime.
type ObserverToken interface{}

// NotificationHandler is invoked on the main thread when a registered
// accessibility notification fires. refcon is the integer the caller
// supplied at registration time (a Pid or a WinId, carried directly as the
// integer value).
type NotificationHandler func(notification string, refcon uintptr)

// WorkspaceHandler is invoked on the main thread for one of the six
// application-lifecycle notifications, carrying the pid extracted from the
// notification's user-info dictionary.
type WorkspaceHandler func(notification string, pid wmtypes.Pid)

// Bindings is the full platform surface this layer describes. A single
// implementation backs darwin builds (platform_darwin.go, cgo); a stub
// implementation whose error-returning methods fail with ErrUnsupported
// (apart from the two observer-removal methods, which return nil) backs
// all other GOOS so the rest of the module remains cross-compilable.
type Bindings interface {
	// ProcessIsAccessibilityTrusted checks (and, if prompt is true, asks
	// the user to grant) accessibility trust for this process.
	ProcessIsAccessibilityTrusted(prompt bool) bool

	// SetGlobalMessagingTimeout establishes the process-wide accessibility
	// messaging timeout on the system-wide element. Without this, one
	// frozen application can wedge every accessibility call for tens of
	// seconds.
	SetGlobalMessagingTimeout(seconds float64) error

	// ConfigureAsRegularActivationPolicy marks this process as a regular
	// (non-agent) application so the OS delivers workspace notifications
	// to it, then activates it so the main thread becomes the observer
	// host.
	ConfigureAsRegularActivationPolicy() error
	ActivateSelf() error

	// ActiveDisplays returns the bounds of every active display.
	ActiveDisplays() ([]wmtypes.Rect, error)

	// OnScreenWindows returns the attribute dictionaries of every
	// on-screen, non-desktop window currently reported by the display
	// server.
	OnScreenWindows() ([]WindowInfo, error)

	// RunningApplications returns every running application with regular
	// activation policy (agents and background processes are filtered at
	// this layer).
	RunningApplications() ([]RunningApp, error)

	// CursorPosition reads the current pointer location in global
	// coordinates.
	CursorPosition() (wmtypes.Point, error)

	// WarpCursor moves the pointer to an absolute global-coordinate
	// position.
	WarpCursor(p wmtypes.Point) error

	// ApplicationElement synthesizes an accessibility-root handle for pid.
	ApplicationElement(pid wmtypes.Pid) (Element, error)

	// SystemWideElement returns the system-wide accessibility element
	// (used only for the messaging-timeout setter above).
	SystemWideElement() Element

	// ResolveWindowElement resolves the accessibility handle for a window
	// by iterating the owning application's window list and matching on
	// WinId via the private element-to-window-id primitive. Returns
	// wmerr.ErrWindowNotFound if no match exists.
	ResolveWindowElement(app Element, id wmtypes.WinId) (Element, error)

	// WindowIDForElement resolves an accessibility-element handle to its
	// WinId using the private primitive backing ResolveWindowElement.
	WindowIDForElement(win Element) (wmtypes.WinId, bool)

	// FocusedWindow reads an application element's focused-window
	// attribute.
	FocusedWindow(app Element) (Element, error)

	// Activate activates the process owning app (identified by pid),
	// ignoring other apps, so its windows come to the front.
	Activate(app Element, pid wmtypes.Pid) error

	// EnhancedUserInterfaceEnabled / SetEnhancedUserInterface read and
	// write the undocumented AXEnhancedUserInterface attribute; turning it
	// off suppresses per-app auto-resize animation.
	EnhancedUserInterfaceEnabled(app Element) bool
	SetEnhancedUserInterface(app Element, enabled bool) error

	// SetPosition / SetSize write the corresponding accessibility
	// geometry attributes on a window element.
	SetPosition(win Element, p wmtypes.Point) error
	SetSize(win Element, w, h int32) error

	// SetMinimized writes the AXMinimized attribute.
	SetMinimized(win Element, minimized bool) error

	// Raise sets the window's "main" attribute then invokes its raise
	// action.
	Raise(win Element) error

	// Close retrieves the window's close-button child and invokes its
	// press action.
	Close(win Element) error

	// IsFullscreen reads the AXFullScreen boolean attribute.
	IsFullscreen(win Element) bool

	// ReleaseElement releases a native reference obtained from
	// ApplicationElement, ResolveWindowElement, or FocusedWindow. It is a
	// no-op for the system-wide element, which this package never
	// releases.
	ReleaseElement(e Element)

	// RegisterObserver attaches an accessibility observer for notification
	// on element, carrying refcon as its opaque user-data payload, and
	// invokes handler on the main thread when it fires.
	RegisterObserver(pid wmtypes.Pid, element Element, notification string, refcon uintptr, handler NotificationHandler) (ObserverToken, error)

	// RemoveObserver tears down a registration created by RegisterObserver.
	// Must be called, and must complete, before the observed element's
	// last reference is released.
	RemoveObserver(token ObserverToken) error

	// RegisterWorkspaceObserver registers handler for one workspace
	// lifecycle notification with the shared notification center.
	RegisterWorkspaceObserver(notification string, handler WorkspaceHandler) (ObserverToken, error)

	// RemoveWorkspaceObserver tears down a registration created by
	// RegisterWorkspaceObserver.
	RemoveWorkspaceObserver(token ObserverToken) error

	// RunMainLoop blocks the calling goroutine (which must be locked to
	// the OS main thread) running the native event loop until the process
	// exits. Accessibility and workspace callbacks are delivered from
	// inside this call.
	RunMainLoop()
}

// Workspace lifecycle notification names.
const (
	NotifyDidLaunch     = "NSWorkspaceDidLaunchApplicationNotification"
	NotifyDidActivate   = "NSWorkspaceDidActivateApplicationNotification"
	NotifyDidDeactivate = "NSWorkspaceDidDeactivateApplicationNotification"
	NotifyDidHide       = "NSWorkspaceDidHideApplicationNotification"
	NotifyDidUnhide     = "NSWorkspaceDidUnhideApplicationNotification"
	NotifyDidTerminate  = "NSWorkspaceDidTerminateApplicationNotification"
)

// WorkspaceNotifications is the ordered set registered at startup.
var WorkspaceNotifications = [...]string{
	NotifyDidLaunch,
	NotifyDidActivate,
	NotifyDidDeactivate,
	NotifyDidHide,
	NotifyDidUnhide,
	NotifyDidTerminate,
}

// Accessibility notification names.
const (
	NotifyWindowCreated          = "AXWindowCreated"
	NotifyFocusedWindowChanged   = "AXFocusedWindowChanged"
	NotifyUIElementDestroyed     = "AXUIElementDestroyed"
	NotifyWindowMiniaturized     = "AXWindowMiniaturized"
	NotifyWindowDeminiaturized   = "AXWindowDeminiaturized"
	NotifyMoved                  = "AXMoved"
	NotifyResized                = "AXResized"
)

// AppNotifications is the set registered on every app handle.
var AppNotifications = [...]string{NotifyWindowCreated, NotifyFocusedWindowChanged}

// WinNotifications is the set registered on every window handle.
var WinNotifications = [...]string{
	NotifyUIElementDestroyed,
	NotifyWindowMiniaturized,
	NotifyWindowDeminiaturized,
	NotifyMoved,
	NotifyResized,
}
