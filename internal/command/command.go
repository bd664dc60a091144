// Package command implements component E, the Command Layer: the full
// set of operations the WM engine calls into, plus the event-dispatch
// policy that reacts to notifications from the Event Source.
package command

import (
	"errors"
	"log"
	"sort"
	"time"

	"github.com/tilepilot/axcore/internal/audit"
	"github.com/tilepilot/axcore/internal/conn"
	"github.com/tilepilot/axcore/internal/eventsrc"
	"github.com/tilepilot/axcore/internal/handle"
	"github.com/tilepilot/axcore/internal/platform"
	"github.com/tilepilot/axcore/internal/telemetry"
	"github.com/tilepilot/axcore/internal/wmerr"
	"github.com/tilepilot/axcore/internal/wmtypes"
)

// Root is the sentinel id meaning "the whole screen space", used by
// WarpPointer.
const Root wmtypes.WinId = 0

// WMEngine is the minimal surface the Command Layer calls back into: the
// outer workspace/tag/layout engine that owns everything the WM does
// beyond connecting to the OS. It is not implemented by this module.
type WMEngine interface {
	// Manage brings id under the engine's tiling model.
	Manage(id wmtypes.WinId) error
	// Unmanage removes id from the engine's model (the window has closed
	// or its owning app has terminated).
	Unmanage(id wmtypes.WinId) error
	// FocusClient makes id the engine's current client, triggering
	// whatever layout/visual refresh the engine associates with a focus
	// change.
	FocusClient(id wmtypes.WinId) error
	// CurrentClient reports the engine's presently focused client, if
	// any.
	CurrentClient() (wmtypes.WinId, bool)
	// ScreenContaining returns the index of the screen (in the order
	// returned by ScreenDetails) whose geometry contains p.
	// ManageExistingClients calls it with each window's midpoint and logs
	// the windows for which it reports no screen.
	ScreenContaining(p wmtypes.Point) (int, bool)
}

// Layer is the Command Layer. It owns no OS state of its own beyond the
// pre-hide positions recorded by HideClientOffscreen; everything else is
// delegated to conn.State and platform.Bindings.
type Layer struct {
	bindings        platform.Bindings
	state           *conn.State
	events          *eventsrc.Source
	metrics         *telemetry.Registry
	audit           *audit.Logger
	hidePointMargin int32

	hidden map[wmtypes.WinId]wmtypes.Point // pre-hide position, for HideClientOffscreen/ShowClientOffscreen
}

// New builds a Command Layer over an already-constructed connection
// state and event source. auditLogger may be nil, in which case
// OS-affecting calls are not recorded anywhere beyond the metrics
// registry. The hide-point margin defaults to 1 (config.HidePointMargin's
// own default); call SetHidePointMargin to override it.
func New(b platform.Bindings, state *conn.State, events *eventsrc.Source, metrics *telemetry.Registry, auditLogger *audit.Logger) *Layer {
	return &Layer{bindings: b, state: state, events: events, metrics: metrics, audit: auditLogger, hidePointMargin: 1, hidden: map[wmtypes.WinId]wmtypes.Point{}}
}

// SetHidePointMargin overrides the default 1px margin HideClientOffscreen
// uses when computing its off-screen target, per config.HidePointMargin.
func (l *Layer) SetHidePointMargin(margin int32) { l.hidePointMargin = margin }

// Root returns the sentinel root id.
func (l *Layer) Root() wmtypes.WinId { return Root }

// NextEvent blocks until one event is available, or returns an error if
// the event channel has been closed (process shutdown).
func (l *Layer) NextEvent() (eventsrc.Event, error) {
	evt, ok := <-l.events.Events()
	if !ok {
		return eventsrc.Event{}, errors.New("command: event channel closed")
	}
	return evt, nil
}

// ScreenDetails returns the active displays sorted left-to-right by x.
func (l *Layer) ScreenDetails() ([]wmtypes.Rect, error) {
	displays, err := l.bindings.ActiveDisplays()
	if err != nil {
		return nil, err
	}
	if len(displays) == 0 {
		return nil, wmerr.ErrNoScreens
	}
	sort.Slice(displays, func(i, j int) bool { return displays[i].X < displays[j].X })
	return displays, nil
}

// CursorPosition returns the current pointer location.
func (l *Layer) CursorPosition() (wmtypes.Point, error) {
	return l.bindings.CursorPosition()
}

// WarpPointer moves the cursor. If id is Root, x/y are absolute; for any
// other id, x/y are relative to the window's cached bounds and the
// window is focused first.
func (l *Layer) WarpPointer(id wmtypes.WinId, x, y int32) error {
	if id == Root {
		return l.bindings.WarpCursor(wmtypes.Point{X: x, Y: y})
	}
	var bounds wmtypes.Rect
	err := l.state.WithLock(func(lk *conn.Locked) error {
		var err error
		bounds, err = conn.WindowProperty(lk, id, func(w *handle.WindowHandle) wmtypes.Rect { return w.Bounds })
		return err
	})
	if err != nil {
		return err
	}
	if err := l.FocusClient(id); err != nil {
		return err
	}
	return l.bindings.WarpCursor(wmtypes.Point{X: bounds.X + x, Y: bounds.Y + y})
}

// ExistingClients refreshes connection state and returns the current set
// of window ids.
func (l *Layer) ExistingClients() ([]wmtypes.WinId, error) {
	var ids []wmtypes.WinId
	err := l.state.WithLock(func(lk *conn.Locked) error {
		var err error
		ids, err = lk.ExistingClients()
		return err
	})
	return ids, err
}

// PositionClient suppresses animations, sets position and size, and
// updates the window record's cached bounds to match.
func (l *Layer) PositionClient(id wmtypes.WinId, r wmtypes.Rect) error {
	return l.run("PositionClient", id, func() error {
		return l.state.WithLock(func(lk *conn.Locked) error {
			return lk.WithSuppressedAnimations(id, func(win *handle.WindowHandle) error {
				if err := win.SetPosition(wmtypes.Point{X: r.X, Y: r.Y}); err != nil {
					return wmerr.Custom("PositionClient.SetPosition", wmerr.CodeOf(err))
				}
				if err := win.SetSize(r.Width, r.Height); err != nil {
					return wmerr.Custom("PositionClient.SetSize", wmerr.CodeOf(err))
				}
				win.Bounds = r
				return nil
			})
		})
	})
}

// ShowClient / HideClient drive visibility via the AXMinimized attribute,
// which round-trips losslessly: the OS itself restores the exact prior
// bounds. This is the primary show/hide mechanism (see DESIGN.md for the
// off-screen-warp alternative).
func (l *Layer) ShowClient(id wmtypes.WinId) error {
	return l.run("ShowClient", id, func() error { return l.setMinimized(id, false) })
}

func (l *Layer) HideClient(id wmtypes.WinId) error {
	return l.run("HideClient", id, func() error { return l.setMinimized(id, true) })
}

func (l *Layer) setMinimized(id wmtypes.WinId, minimized bool) error {
	return l.state.WithLock(func(lk *conn.Locked) error {
		return lk.WithSuppressedAnimations(id, func(win *handle.WindowHandle) error {
			if err := win.SetMinimized(minimized); err != nil {
				return wmerr.Custom("setMinimized", wmerr.CodeOf(err))
			}
			return nil
		})
	})
}

// HideClientOffscreen moves the window to a point hidePointMargin pixels
// (one by default) inside the bottom-right corner of the last display,
// caching its prior position so
// ShowClientOffscreen can restore it. Kept as an alternate to
// HideClient/ShowClient for callers that prefer avoiding the dock
// minimize animation.
func (l *Layer) HideClientOffscreen(id wmtypes.WinId) error {
	return l.run("HideClientOffscreen", id, func() error {
		screens, err := l.ScreenDetails()
		if err != nil {
			return err
		}
		hidePoint := HidePointWithMargin(screens, l.hidePointMargin)

		return l.state.WithLock(func(lk *conn.Locked) error {
			return lk.WithSuppressedAnimations(id, func(win *handle.WindowHandle) error {
				l.hidden[id] = wmtypes.Point{X: win.Bounds.X, Y: win.Bounds.Y}
				if err := win.SetPosition(hidePoint); err != nil {
					return wmerr.Custom("HideClientOffscreen", wmerr.CodeOf(err))
				}
				win.Bounds.X, win.Bounds.Y = hidePoint.X, hidePoint.Y
				return nil
			})
		})
	})
}

// ShowClientOffscreen restores the position cached by
// HideClientOffscreen. It is a no-op if the window was not hidden that
// way.
func (l *Layer) ShowClientOffscreen(id wmtypes.WinId) error {
	return l.run("ShowClientOffscreen", id, func() error {
		prior, ok := l.hidden[id]
		if !ok {
			return nil
		}
		delete(l.hidden, id)
		return l.state.WithLock(func(lk *conn.Locked) error {
			return lk.WithSuppressedAnimations(id, func(win *handle.WindowHandle) error {
				if err := win.SetPosition(prior); err != nil {
					return wmerr.Custom("ShowClientOffscreen", wmerr.CodeOf(err))
				}
				win.Bounds.X, win.Bounds.Y = prior.X, prior.Y
				return nil
			})
		})
	})
}

// HidePoint computes the off-screen hide target: one pixel inside the
// bottom-right corner of the last (rightmost, already-sorted) display.
func HidePoint(sortedScreens []wmtypes.Rect) wmtypes.Point {
	return HidePointWithMargin(sortedScreens, 1)
}

// HidePointWithMargin is HidePoint generalized to config.HidePointMargin:
// the point margin pixels inside the bottom-right corner of the last
// (rightmost, already-sorted) display.
func HidePointWithMargin(sortedScreens []wmtypes.Rect, margin int32) wmtypes.Point {
	last := sortedScreens[len(sortedScreens)-1]
	return wmtypes.Point{X: last.X + last.Width - margin, Y: last.Y + last.Height - margin}
}

// KillClient presses the window's close button.
func (l *Layer) KillClient(id wmtypes.WinId) error {
	return l.run("KillClient", id, func() error {
		return l.state.WithLock(func(lk *conn.Locked) error {
			win, err := lk.Window(id)
			if err != nil {
				return err
			}
			if err := win.CloseWindow(); err != nil {
				return wmerr.Custom("KillClient", wmerr.CodeOf(err))
			}
			return nil
		})
	})
}

// FocusClient raises the window's accessibility element, then activates
// the owning application. Raising first makes the app agree that this is
// its main window before activation switches keyboard focus.
func (l *Layer) FocusClient(id wmtypes.WinId) error {
	return l.run("FocusClient", id, func() error {
		return l.state.WithLock(func(lk *conn.Locked) error {
			win, err := lk.Window(id)
			if err != nil {
				return err
			}
			app, err := lk.App(win.OwnerPid)
			if err != nil {
				return err
			}
			if err := win.Raise(); err != nil {
				return wmerr.Custom("FocusClient.Raise", wmerr.CodeOf(err))
			}
			if err := app.Activate(); err != nil {
				return wmerr.Custom("FocusClient.Activate", wmerr.CodeOf(err))
			}
			return nil
		})
	})
}

// ClientGeometry returns the window's cached bounds, refreshing once on
// a lookup miss.
func (l *Layer) ClientGeometry(id wmtypes.WinId) (wmtypes.Rect, error) {
	var r wmtypes.Rect
	err := l.state.WithLock(func(lk *conn.Locked) error {
		var err error
		r, err = conn.WindowProperty(lk, id, func(w *handle.WindowHandle) wmtypes.Rect { return w.Bounds })
		return err
	})
	return r, err
}

// ClientTitle returns the window's title, falling back to the owning
// app's name when the OS reported no window name.
func (l *Layer) ClientTitle(id wmtypes.WinId) (string, error) {
	var title string
	err := l.state.WithLock(func(lk *conn.Locked) error {
		var err error
		title, err = conn.WindowProperty(lk, id, func(w *handle.WindowHandle) string {
			if w.HasName {
				return w.WindowName
			}
			return w.Owner
		})
		return err
	})
	return title, err
}

// ClientPid returns the owning pid of id, if tracked.
func (l *Layer) ClientPid(id wmtypes.WinId) (wmtypes.Pid, bool) {
	var pid wmtypes.Pid
	var found bool
	_ = l.state.WithLock(func(lk *conn.Locked) error {
		p, err := conn.WindowProperty(lk, id, func(w *handle.WindowHandle) wmtypes.Pid { return w.OwnerPid })
		if err == nil {
			pid, found = p, true
		}
		return nil
	})
	return pid, found
}

// ClientShouldBeManaged is true iff id is a known, layer-0 window: the
// construction of a window record already filters out anything else, so
// a successful lookup is sufficient.
func (l *Layer) ClientShouldBeManaged(id wmtypes.WinId) bool {
	var managed bool
	_ = l.state.WithLock(func(lk *conn.Locked) error {
		_, err := conn.WindowProperty(lk, id, func(w *handle.WindowHandle) bool { return true })
		managed = err == nil
		return nil
	})
	return managed
}

// ClientShouldFloat is true iff the window's owner name exactly matches
// one of floatingClasses.
func (l *Layer) ClientShouldFloat(id wmtypes.WinId, floatingClasses []string) bool {
	var float bool
	_ = l.state.WithLock(func(lk *conn.Locked) error {
		owner, err := conn.WindowProperty(lk, id, func(w *handle.WindowHandle) string { return w.Owner })
		if err != nil {
			return nil
		}
		for _, c := range floatingClasses {
			if c == owner {
				float = true
				return nil
			}
		}
		return nil
	})
	return float
}

// ClientIsFullscreen reads AXFullScreen.
func (l *Layer) ClientIsFullscreen(id wmtypes.WinId) bool {
	var fullscreen bool
	_ = l.state.WithLock(func(lk *conn.Locked) error {
		fs, err := conn.WindowProperty(lk, id, func(w *handle.WindowHandle) bool { return w.IsFullscreen() })
		if err == nil {
			fullscreen = fs
		}
		return nil
	})
	return fullscreen
}

// ClientTransientParent is always absent; the accessibility API exposes
// no transient-window relationship on this platform.
func (l *Layer) ClientTransientParent(id wmtypes.WinId) (wmtypes.WinId, bool) { return 0, false }

// Restack is a no-op: the platform provides no stacking-order control
// beyond raise/activate.
func (l *Layer) Restack(ids []wmtypes.WinId) error { return nil }

// SetClientBorderColor and SetClientBorderWidth are no-ops: the
// accessibility API exposes no window-decoration controls.
func (l *Layer) SetClientBorderColor(id wmtypes.WinId, rgba uint32) error { return nil }
func (l *Layer) SetClientBorderWidth(id wmtypes.WinId, width uint32) error { return nil }

// HandleEvent dispatches a single event to the right reconciliation
// policy. Engine decisions (manage/unmanage/focus) are delegated to
// engine; OS-facing bookkeeping (clearing connection-state records)
// happens here.
func (l *Layer) HandleEvent(evt eventsrc.Event, engine WMEngine) error {
	switch evt.Kind {
	case eventsrc.WindowCreated:
		return l.reconcileWindowCreated(evt.Pid, engine)
	case eventsrc.AppActivated, eventsrc.AppLaunched, eventsrc.FocusedWindowChanged:
		return l.reconcileFocusFollowsApp(evt.Pid, engine)
	case eventsrc.AppTerminated:
		return l.clearTerminatedAppState(evt.Pid, engine)
	case eventsrc.UIElementDestroyed:
		return l.clearClosedWindowState(evt.WinId, engine)
	case eventsrc.AppDeactivated, eventsrc.AppHidden, eventsrc.AppUnhidden,
		eventsrc.WindowMoved, eventsrc.WindowResized,
		eventsrc.WindowMiniaturized, eventsrc.WindowDeminiaturized,
		eventsrc.Hotkey:
		return nil
	default:
		return nil
	}
}

// reconcileWindowCreated diffs the app's window set across a refresh,
// manages every newly-discovered window in ascending WinId order, and
// focuses the last of them (the highest WinId). If
// nothing new appeared (the creation notification raced the refresh, or
// named a window already known), it falls back to reconcileFocusFollowsApp.
func (l *Layer) reconcileWindowCreated(pid wmtypes.Pid, engine WMEngine) error {
	var newIDs []wmtypes.WinId
	err := l.state.WithLock(func(lk *conn.Locked) error {
		before := lk.WindowsOwnedBy(pid)
		beforeSet := make(map[wmtypes.WinId]bool, len(before))
		for _, id := range before {
			beforeSet[id] = true
		}
		if err := lk.UpdateKnownAppsAndWindows(); err != nil {
			return err
		}
		for _, id := range lk.WindowsOwnedBy(pid) {
			if !beforeSet[id] {
				newIDs = append(newIDs, id)
			}
		}
		sort.Slice(newIDs, func(i, j int) bool { return newIDs[i] < newIDs[j] })
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range newIDs {
		if err := engine.Manage(id); err != nil {
			log.Printf("command: engine refused to manage new window %d: %v", id, err)
		}
	}
	if len(newIDs) > 0 {
		return engine.FocusClient(newIDs[len(newIDs)-1])
	}
	return l.reconcileFocusFollowsApp(pid, engine)
}

// reconcileFocusFollowsApp focuses whatever window pid's app reports as
// focused. It reads the app's focused window from already-known state
// (no refresh) and returns without refreshing or focusing anything if
// that already matches the engine's current client
// (AppActivated/AppLaunched/FocusedWindowChanged fire far more
// often than the focused client actually changes, and each one is on the
// hot path of an app switch); only a miss triggers a state refresh and a
// second look.
func (l *Layer) reconcileFocusFollowsApp(pid wmtypes.Pid, engine WMEngine) error {
	winID, found, err := l.focusedWindowOf(pid)
	if err != nil {
		return err
	}
	if found {
		if current, ok := engine.CurrentClient(); ok && current == winID {
			return nil
		}
	}

	if err := l.state.WithLock(func(lk *conn.Locked) error {
		return lk.UpdateKnownAppsAndWindows()
	}); err != nil {
		return err
	}
	winID, found, err = l.focusedWindowOf(pid)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if current, ok := engine.CurrentClient(); ok && current == winID {
		return nil
	}
	return engine.FocusClient(winID)
}

// focusedWindowOf reports the window pid's app currently considers
// focused, without forcing a state refresh unless pid itself is unknown
// (conn.Locked.App's own lookup-with-retry).
func (l *Layer) focusedWindowOf(pid wmtypes.Pid) (wmtypes.WinId, bool, error) {
	var winID wmtypes.WinId
	var found bool
	err := l.state.WithLock(func(lk *conn.Locked) error {
		app, err := lk.App(pid)
		if err != nil {
			return err
		}
		winID, found = app.FocusedWindow()
		return nil
	})
	return winID, found, err
}

// clearTerminatedAppState unmanages and drops every window owned by pid,
// drops the app record itself, then refreshes the connection state.
func (l *Layer) clearTerminatedAppState(pid wmtypes.Pid, engine WMEngine) error {
	return l.state.WithLock(func(lk *conn.Locked) error {
		for _, id := range lk.WindowsOwnedBy(pid) {
			if err := engine.Unmanage(id); err != nil {
				log.Printf("command: engine failed to unmanage window %d of terminated pid %d: %v", id, pid, err)
			}
			lk.RemoveWindow(id)
		}
		lk.RemoveApp(pid)
		return lk.UpdateKnownAppsAndWindows()
	})
}

// clearClosedWindowState unmanages and drops a single destroyed window.
func (l *Layer) clearClosedWindowState(id wmtypes.WinId, engine WMEngine) error {
	return l.state.WithLock(func(lk *conn.Locked) error {
		if err := engine.Unmanage(id); err != nil {
			log.Printf("command: engine failed to unmanage destroyed window %d: %v", id, err)
		}
		lk.RemoveWindow(id)
		return nil
	})
}

// ManageExistingClients refreshes state, then asks the engine to manage
// every tracked window. For each one it first asks the engine which
// screen contains the window's midpoint; that answer is only used to log
// windows no screen contains. The screen index is not passed on to
// Manage, and windows the engine already manages are not skipped.
func (l *Layer) ManageExistingClients(engine WMEngine) error {
	var ids []wmtypes.WinId
	var bounds map[wmtypes.WinId]wmtypes.Rect
	err := l.state.WithLock(func(lk *conn.Locked) error {
		if err := lk.UpdateKnownAppsAndWindows(); err != nil {
			return err
		}
		var err error
		ids, err = lk.ExistingClients()
		if err != nil {
			return err
		}
		bounds = make(map[wmtypes.WinId]wmtypes.Rect, len(ids))
		for _, id := range ids {
			b, err := conn.WindowProperty(lk, id, func(w *handle.WindowHandle) wmtypes.Rect { return w.Bounds })
			if err != nil {
				continue
			}
			bounds[id] = b
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range ids {
		r, ok := bounds[id]
		if !ok {
			continue
		}
		if _, placed := engine.ScreenContaining(r.Midpoint()); !placed {
			log.Printf("command: no screen contains window %d's midpoint, managing anyway", id)
		}
		if err := engine.Manage(id); err != nil {
			log.Printf("command: engine refused to manage window %d: %v", id, err)
		}
	}
	return nil
}

// run wraps an OS-affecting operation with the metrics latency timer and
// the audit trail, in that order, so audit duration reflects the same
// window the histogram observes.
func (l *Layer) run(op string, id wmtypes.WinId, f func() error) error {
	start := time.Now()
	var stop func()
	if l.metrics != nil {
		stop = l.metrics.StartTimer(op)
	}
	err := f()
	if stop != nil {
		stop()
	}
	status := "ok"
	if err != nil {
		status = "error: " + err.Error()
	}
	l.audit.LogCommand(op, id, status, time.Since(start))
	return err
}

