package eventsrc

import (
	"testing"
	"time"

	"github.com/tilepilot/axcore/internal/platform"
	"github.com/tilepilot/axcore/internal/wmtypes"
)

// fakeBindings implements just enough of platform.Bindings for eventsrc's
// tests: workspace-observer registration/removal recording, with every
// other method left unimplemented since eventsrc never calls it.
type fakeBindings struct {
	platform.Bindings
	registered map[string]platform.WorkspaceHandler
	removed    []string
}

func newFakeBindings() *fakeBindings {
	return &fakeBindings{registered: map[string]platform.WorkspaceHandler{}}
}

type fakeWorkspaceToken struct{ notification string }

func (f *fakeBindings) RegisterWorkspaceObserver(notification string, handler platform.WorkspaceHandler) (platform.ObserverToken, error) {
	f.registered[notification] = handler
	return &fakeWorkspaceToken{notification: notification}, nil
}

func (f *fakeBindings) RemoveWorkspaceObserver(token platform.ObserverToken) error {
	t := token.(*fakeWorkspaceToken)
	f.removed = append(f.removed, t.notification)
	return nil
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestNewSourceRegistersAllWorkspaceNotifications(t *testing.T) {
	fb := newFakeBindings()
	s, err := newSource(fb)
	if err != nil {
		t.Fatalf("newSource: %v", err)
	}
	if len(fb.registered) != len(platform.WorkspaceNotifications) {
		t.Fatalf("got %d registrations, want %d", len(fb.registered), len(platform.WorkspaceNotifications))
	}
	s.Close()
	if len(fb.removed) != len(platform.WorkspaceNotifications) {
		t.Fatalf("got %d removals after Close, want %d", len(fb.removed), len(platform.WorkspaceNotifications))
	}
}

func TestWorkspaceCallbackProducesEvent(t *testing.T) {
	fb := newFakeBindings()
	s, err := newSource(fb)
	if err != nil {
		t.Fatalf("newSource: %v", err)
	}
	defer s.Close()

	handler := fb.registered[platform.NotifyDidLaunch]
	go handler(platform.NotifyDidLaunch, wmtypes.Pid(42))

	evt := recv(t, s.Events())
	if evt.Kind != AppLaunched || evt.Pid != 42 {
		t.Fatalf("got %+v, want AppLaunched{pid:42}", evt)
	}
}

func TestAccessibilityHandlerDispatchesByNotification(t *testing.T) {
	fb := newFakeBindings()
	s, err := newSource(fb)
	if err != nil {
		t.Fatalf("newSource: %v", err)
	}
	defer s.Close()

	handler := s.NotificationHandler()

	go handler(platform.NotifyWindowCreated, uintptr(7))
	evt := recv(t, s.Events())
	if evt.Kind != WindowCreated || evt.Pid != 7 {
		t.Fatalf("got %+v, want WindowCreated{pid:7}", evt)
	}

	go handler(platform.NotifyMoved, uintptr(99))
	evt = recv(t, s.Events())
	if evt.Kind != WindowMoved || evt.WinId != 99 {
		t.Fatalf("got %+v, want WindowMoved{id:99}", evt)
	}
}

func TestAccessibilityHandlerIgnoresUnknownNotification(t *testing.T) {
	fb := newFakeBindings()
	s, err := newSource(fb)
	if err != nil {
		t.Fatalf("newSource: %v", err)
	}
	defer s.Close()

	handler := s.NotificationHandler()
	done := make(chan struct{})
	go func() {
		handler("AXSomethingUnknown", 1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler blocked on unknown notification")
	}

	select {
	case evt := <-s.Events():
		t.Fatalf("unexpected event for unknown notification: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendNeverBlocksProducer(t *testing.T) {
	fb := newFakeBindings()
	s, err := newSource(fb)
	if err != nil {
		t.Fatalf("newSource: %v", err)
	}
	defer s.Close()

	// No one is reading s.Events(); every send below must still return
	// immediately, matching the no-consumer-blocks-producer requirement.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			s.send(Event{Kind: Hotkey, Code: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send blocked with no consumer draining Events()")
	}

	for i := 0; i < 1000; i++ {
		evt := recv(t, s.Events())
		if evt.Code != i {
			t.Fatalf("event %d: got code %d, want %d (ordering broken)", i, evt.Code, i)
		}
	}
}

func TestSendHotkey(t *testing.T) {
	fb := newFakeBindings()
	s, err := newSource(fb)
	if err != nil {
		t.Fatalf("newSource: %v", err)
	}
	defer s.Close()

	go s.SendHotkey(3)
	evt := recv(t, s.Events())
	if evt.Kind != Hotkey || evt.Code != 3 {
		t.Fatalf("got %+v, want Hotkey{code:3}", evt)
	}
}
