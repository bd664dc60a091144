// Package eventsrc implements component C, the Event Source: it turns the
// platform's two notification streams (the NSWorkspace app-lifecycle
// stream and the per-element AXObserver stream) into a single ordered
// channel of Event values.
package eventsrc

import (
	"fmt"
	"sync"

	"github.com/tilepilot/axcore/internal/platform"
	"github.com/tilepilot/axcore/internal/wmtypes"
)

// Kind identifies an Event's variant.
type Kind int

const (
	AppActivated Kind = iota
	AppDeactivated
	AppLaunched
	AppTerminated
	AppHidden
	AppUnhidden
	WindowCreated
	FocusedWindowChanged
	UIElementDestroyed
	WindowMiniaturized
	WindowDeminiaturized
	WindowMoved
	WindowResized
	// Hotkey carries an opaque, engine-defined code ingested through
	// SendHotkey. It does not originate from the OS.
	Hotkey
)

func (k Kind) String() string {
	switch k {
	case AppActivated:
		return "AppActivated"
	case AppDeactivated:
		return "AppDeactivated"
	case AppLaunched:
		return "AppLaunched"
	case AppTerminated:
		return "AppTerminated"
	case AppHidden:
		return "AppHidden"
	case AppUnhidden:
		return "AppUnhidden"
	case WindowCreated:
		return "WindowCreated"
	case FocusedWindowChanged:
		return "FocusedWindowChanged"
	case UIElementDestroyed:
		return "UiElementDestroyed"
	case WindowMiniaturized:
		return "WindowMiniaturized"
	case WindowDeminiaturized:
		return "WindowDeminiaturized"
	case WindowMoved:
		return "WindowMoved"
	case WindowResized:
		return "WindowResized"
	case Hotkey:
		return "Hotkey"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is one occurrence from either notification stream, or a
// synthetic hotkey ingestion. Exactly one of Pid/WinId/Code is meaningful
// per Kind; see the field comments below.
type Event struct {
	Kind  Kind
	Pid   wmtypes.Pid  // set for every app-level Kind
	WinId wmtypes.WinId // set for every window-level Kind
	Code  int           // set only for Hotkey
}

func (e Event) String() string {
	switch e.Kind {
	case AppActivated, AppDeactivated, AppLaunched, AppTerminated, AppHidden, AppUnhidden, WindowCreated, FocusedWindowChanged:
		return fmt.Sprintf("%s{pid: %d}", e.Kind, e.Pid)
	case Hotkey:
		return fmt.Sprintf("%s{code: %d}", e.Kind, e.Code)
	default:
		return fmt.Sprintf("%s{id: %d}", e.Kind, e.WinId)
	}
}

var accessibilityKindByNotification = map[string]Kind{
	platform.NotifyWindowCreated:        WindowCreated,
	platform.NotifyFocusedWindowChanged: FocusedWindowChanged,
	platform.NotifyUIElementDestroyed:   UIElementDestroyed,
	platform.NotifyWindowDeminiaturized: WindowDeminiaturized,
	platform.NotifyWindowMiniaturized:   WindowMiniaturized,
	platform.NotifyMoved:                WindowMoved,
	platform.NotifyResized:              WindowResized,
}

// windowLevel reports whether k's refcon is a WinId (true) or a Pid
// (false), matching which notification set it was registered under.
func windowLevel(k Kind) bool {
	switch k {
	case UIElementDestroyed, WindowMiniaturized, WindowDeminiaturized, WindowMoved, WindowResized:
		return true
	default:
		return false
	}
}

var workspaceKindByNotification = map[string]Kind{
	platform.NotifyDidLaunch:     AppLaunched,
	platform.NotifyDidActivate:   AppActivated,
	platform.NotifyDidDeactivate: AppDeactivated,
	platform.NotifyDidHide:       AppHidden,
	platform.NotifyDidUnhide:     AppUnhidden,
	platform.NotifyDidTerminate:  AppTerminated,
}

// Source owns the unbounded event queue and the registrations feeding
// it. There is exactly one Source per process; its internal sender is
// installed exactly once via sync.Once, mirroring the write-once
// global sender slot in the implementation this package is based on.
//
// The queue itself is an unbounded slice guarded by mu, drained by a
// single pump goroutine onto out. A main-thread AX/workspace callback
// therefore never blocks: send only ever takes mu for an append plus a
// non-blocking notify, matching the original's mpsc::channel(), where
// tx.send never waits on the receiver.
type Source struct {
	out    chan Event
	notify chan struct{}

	mu       sync.Mutex
	queue    []Event
	wsTokens []platform.ObserverToken
	bindings platform.Bindings
}

var (
	sourceOnce sync.Once
	sourceInst *Source
)

// Get returns the process-wide Source, creating and registering its
// workspace observers on first call. b must already have a regular
// activation policy configured (platform.Bindings.
// ConfigureAsRegularActivationPolicy) before this is called, or the OS
// will not deliver workspace notifications.
func Get(b platform.Bindings) (*Source, error) {
	var err error
	sourceOnce.Do(func() {
		sourceInst, err = newSource(b)
	})
	if err != nil {
		return nil, err
	}
	return sourceInst, nil
}

// newSource builds a Source without touching the process-wide singleton;
// production code reaches it only through Get, while tests in this
// package call it directly so each test gets an isolated instance wired
// to its own fake Bindings.
func newSource(b platform.Bindings) (*Source, error) {
	s := &Source{
		out:      make(chan Event),
		notify:   make(chan struct{}, 1),
		bindings: b,
	}
	go s.pump()
	if err := s.registerWorkspaceObservers(); err != nil {
		return nil, err
	}
	return s, nil
}

// send enqueues evt and returns immediately; it never blocks on a
// consumer. queue growth is unbounded, matching spec.md §4.C/D: a
// producer (an OS callback on the main thread) must never wait on the
// engine thread, which may be mid-command holding the conn lock.
func (s *Source) send(evt Event) {
	s.mu.Lock()
	s.queue = append(s.queue, evt)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pump is the sole reader of queue and the sole writer to out, so
// delivery order matches enqueue order. It blocks on out <- evt when no
// consumer is reading, but that never blocks a producer: send only
// takes mu, never out.
func (s *Source) pump() {
	for range s.notify {
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			evt := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			s.out <- evt
		}
	}
}

func (s *Source) registerWorkspaceObservers() error {
	for _, notification := range platform.WorkspaceNotifications {
		kind := workspaceKindByNotification[notification]
		tok, err := s.bindings.RegisterWorkspaceObserver(notification, func(notification string, pid wmtypes.Pid) {
			s.send(Event{Kind: kind, Pid: pid})
		})
		if err != nil {
			return fmt.Errorf("eventsrc: registering workspace notification %q: %w", notification, err)
		}
		s.wsTokens = append(s.wsTokens, tok)
	}
	return nil
}

// Events returns the unbounded, ordered channel of events. It is never
// closed; the process exits instead of tearing it down.
func (s *Source) Events() <-chan Event { return s.out }

// QueueDepth reports how many events are buffered ahead of the one the
// pump goroutine is currently trying to deliver. Intended for a metrics
// gauge sampled by the consumer after each dispatch, not for control
// flow: it is stale the instant mu is released.
func (s *Source) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// NotificationHandler returns the platform.NotificationHandler to pass to
// handle.NewAppHandle / handle.NewWindowHandle. The notification's Kind
// (via windowLevel) selects whether refcon is interpreted as a WinId
// (window-level registrations) or a Pid (app-level registrations).
func (s *Source) NotificationHandler() platform.NotificationHandler {
	return func(notification string, refcon uintptr) {
		kind, ok := accessibilityKindByNotification[notification]
		if !ok {
			return
		}
		evt := Event{Kind: kind}
		if windowLevel(kind) {
			evt.WinId = wmtypes.WinId(refcon)
		} else {
			evt.Pid = wmtypes.Pid(refcon)
		}
		s.send(evt)
	}
}

// SendHotkey injects a synthetic Hotkey event carrying an engine-defined
// opaque code. The key-binding string grammar that maps a physical
// shortcut to code is out of scope for this package.
func (s *Source) SendHotkey(code int) {
	s.send(Event{Kind: Hotkey, Code: code})
}

// Close tears down the workspace observer registrations. It does not
// close the event channel.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.wsTokens {
		_ = s.bindings.RemoveWorkspaceObserver(tok)
	}
	s.wsTokens = nil
}
