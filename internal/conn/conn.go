// Package conn implements component D, Connection State: the
// authoritative record of every tracked application and window, kept
// behind a single mutex and refreshed from the platform bindings on
// demand.
package conn

import (
	"errors"
	"fmt"
	"log"

	"github.com/tilepilot/axcore/internal/handle"
	"github.com/tilepilot/axcore/internal/platform"
	"github.com/tilepilot/axcore/internal/telemetry"
	"github.com/tilepilot/axcore/internal/wmerr"
	"github.com/tilepilot/axcore/internal/wmtypes"
)

// State owns the apps/windows maps. All access goes through WithLock so
// that a single command-layer operation (which may touch both maps
// several times, as with_suppressed_animations does) sees a consistent
// view and excludes concurrent refreshes.
type State struct {
	bindings  platform.Bindings
	onEvent   platform.NotificationHandler
	telemetry *telemetry.Registry

	mu      chan struct{} // 1-buffered; used as a mutex with Lock/Unlock semantics
	apps    map[wmtypes.Pid]*handle.AppHandle
	windows map[wmtypes.WinId]*handle.WindowHandle
}

// New returns an empty State. Call (*Locked).UpdateKnownAppsAndWindows
// once via WithLock before relying on it for lookups.
func New(b platform.Bindings, onEvent platform.NotificationHandler) *State {
	mu := make(chan struct{}, 1)
	mu <- struct{}{}
	return &State{
		bindings: b,
		onEvent:  onEvent,
		mu:       mu,
		apps:     map[wmtypes.Pid]*handle.AppHandle{},
		windows:  map[wmtypes.WinId]*handle.WindowHandle{},
	}
}

// SetTelemetry attaches a metrics registry; every subsequent refresh
// records axcore_refreshes_total and the axcore_tracked_windows/apps
// gauges into it. Optional: a nil or never-set registry leaves
// UpdateKnownAppsAndWindows's metrics calls as no-ops.
func (s *State) SetTelemetry(r *telemetry.Registry) { s.telemetry = r }

// Locked is a view onto State valid only for the duration of the
// function passed to WithLock. It must not be retained past that call.
type Locked struct {
	s *State
}

// WithLock runs f with exclusive access to the connection state. Nesting
// a second WithLock call from within f deadlocks, matching the single
// non-reentrant Mutex<ConnState> this package is modeled on.
func (s *State) WithLock(f func(*Locked) error) error {
	<-s.mu
	defer func() { s.mu <- struct{}{} }()
	return f(&Locked{s: s})
}

// UpdateKnownAppsAndWindows is the sole writer of both maps: it re-reads
// the running-application list and the on-screen window list from the
// platform bindings, drops anything no longer present, and constructs
// handles for anything new. Construction failures for an individual app
// or window are logged and skipped rather than aborting the refresh: a
// best-effort partial refresh beats failing the whole cycle over one
// uncooperative window.
func (l *Locked) UpdateKnownAppsAndWindows() error {
	s := l.s

	running, err := s.bindings.RunningApplications()
	if err != nil {
		return err
	}
	current := make(map[wmtypes.Pid]string, len(running))
	for _, a := range running {
		current[a.Pid] = a.Name
	}

	for pid, app := range s.apps {
		if _, ok := current[pid]; !ok {
			app.Close()
			delete(s.apps, pid)
		}
	}
	for pid, name := range current {
		if _, ok := s.apps[pid]; ok {
			continue
		}
		app, err := handle.NewAppHandle(s.bindings, pid, name, s.onEvent)
		if err != nil {
			log.Printf("conn: skipping app pid %d: %v", pid, err)
			continue
		}
		s.apps[pid] = app
	}

	infos, err := s.bindings.OnScreenWindows()
	if err != nil {
		return err
	}
	next := make(map[wmtypes.WinId]*handle.WindowHandle, len(infos))
	for _, info := range infos {
		if info.Layer != wmtypes.ManagedLayer {
			continue
		}
		if existing, ok := s.windows[info.Number]; ok {
			next[info.Number] = existing
			continue
		}
		appElem, err := s.bindings.ApplicationElement(info.OwnerPid)
		if err != nil {
			log.Printf("conn: skipping window %d: %v", info.Number, err)
			continue
		}
		winElem, err := s.bindings.ResolveWindowElement(appElem, info.Number)
		s.bindings.ReleaseElement(appElem)
		if err != nil {
			if errors.Is(err, wmerr.ErrWindowNotFound) {
				continue
			}
			log.Printf("conn: skipping window %d: %v", info.Number, err)
			continue
		}
		win, err := handle.NewWindowHandle(s.bindings, info, winElem, s.onEvent)
		if err != nil {
			log.Printf("conn: skipping window %d: %v", info.Number, err)
			s.bindings.ReleaseElement(winElem)
			continue
		}
		next[info.Number] = win
	}
	for id, win := range s.windows {
		if _, ok := next[id]; !ok {
			win.Close()
		}
	}
	s.windows = next

	if s.telemetry != nil {
		s.telemetry.RecordRefresh("state")
		s.telemetry.SetTrackedCounts(len(s.windows), len(s.apps))
	}
	return nil
}

// Window is the win! lookup-with-retry helper: if id is not currently
// tracked, it triggers one refresh before reporting UnknownClient.
func (l *Locked) Window(id wmtypes.WinId) (*handle.WindowHandle, error) {
	if w, ok := l.s.windows[id]; ok {
		return w, nil
	}
	if err := l.UpdateKnownAppsAndWindows(); err != nil {
		return nil, err
	}
	if w, ok := l.s.windows[id]; ok {
		return w, nil
	}
	return nil, wmerr.UnknownClient(id)
}

// App is the app! lookup-with-retry helper.
func (l *Locked) App(pid wmtypes.Pid) (*handle.AppHandle, error) {
	if a, ok := l.s.apps[pid]; ok {
		return a, nil
	}
	if err := l.UpdateKnownAppsAndWindows(); err != nil {
		return nil, err
	}
	if a, ok := l.s.apps[pid]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("unknown app pid %d", pid)
}

// WinIDForElement reports the WinId of the tracked window wrapping elem,
// if any.
func (l *Locked) WinIDForElement(elem platform.Element) (wmtypes.WinId, bool) {
	id, ok := l.s.bindings.WindowIDForElement(elem)
	if !ok {
		return 0, false
	}
	if _, tracked := l.s.windows[id]; !tracked {
		return 0, false
	}
	return id, true
}

// WindowProperty reads a property off the window id via f, refreshing
// once if id is not yet tracked. It is the generic form of win_prop.
func WindowProperty[T any](l *Locked, id wmtypes.WinId, f func(*handle.WindowHandle) T) (T, error) {
	var zero T
	if _, ok := l.s.windows[id]; !ok {
		if err := l.UpdateKnownAppsAndWindows(); err != nil {
			return zero, err
		}
	}
	w, ok := l.s.windows[id]
	if !ok {
		return zero, wmerr.UnknownClient(id)
	}
	return f(w), nil
}

// WithSuppressedAnimations brackets f with the owning app's
// AXEnhancedUserInterface attribute disabled, if it was enabled, and
// restores it afterward regardless of f's outcome. Grounded on
// https://github.com/koekeishiya/yabai/commit/3fe4c77 and
// https://github.com/rxhanson/Rectangle/pull/285.
func (l *Locked) WithSuppressedAnimations(id wmtypes.WinId, f func(*handle.WindowHandle) error) error {
	win, err := l.Window(id)
	if err != nil {
		return err
	}
	app, err := l.App(win.OwnerPid)
	if err != nil {
		return err
	}
	wasEnabled := app.EnhancedUserInterfaceEnabled()
	if wasEnabled {
		if err := app.SetEnhancedUserInterface(false); err != nil {
			return err
		}
	}
	res := f(win)
	if wasEnabled {
		_ = app.SetEnhancedUserInterface(true)
	}
	return res
}

// ExistingClients refreshes the connection state and returns every
// currently-tracked WinId.
func (l *Locked) ExistingClients() ([]wmtypes.WinId, error) {
	if err := l.UpdateKnownAppsAndWindows(); err != nil {
		return nil, err
	}
	ids := make([]wmtypes.WinId, 0, len(l.s.windows))
	for id := range l.s.windows {
		ids = append(ids, id)
	}
	return ids, nil
}

// RemoveApp drops pid's app record (and closes its handle) without
// touching its windows; callers clear window state separately.
func (l *Locked) RemoveApp(pid wmtypes.Pid) {
	if app, ok := l.s.apps[pid]; ok {
		app.Close()
		delete(l.s.apps, pid)
	}
}

// RemoveWindow drops id's window record and closes its handle.
func (l *Locked) RemoveWindow(id wmtypes.WinId) {
	if win, ok := l.s.windows[id]; ok {
		win.Close()
		delete(l.s.windows, id)
	}
}

// WindowsOwnedBy returns every tracked WinId whose owner is pid.
func (l *Locked) WindowsOwnedBy(pid wmtypes.Pid) []wmtypes.WinId {
	var ids []wmtypes.WinId
	for id, win := range l.s.windows {
		if win.OwnerPid == pid {
			ids = append(ids, id)
		}
	}
	return ids
}
