// Copyright 2026 The axcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !darwin

package platform

import (
	"errors"

	"github.com/tilepilot/axcore/internal/wmtypes"
)

// ErrUnsupported is returned by every error-returning stubBindings method
// except RemoveObserver and RemoveWorkspaceObserver, which return nil. The
// accessibility, workspace, and display primitives this package wraps
// only exist on darwin.
var ErrUnsupported = errors.New("platform: the accessibility connection core is only supported on darwin")

type stubElement struct{}

func (stubElement) IsValid() bool { return false }

type stubBindings struct{}

// New returns the non-darwin stub Bindings implementation. It keeps the
// rest of the module cross-compilable. Its error-returning methods fail
// with ErrUnsupported, the two observer-removal methods return nil, the
// boolean queries report false, and RunMainLoop returns immediately.
func New() Bindings { return stubBindings{} }

func (stubBindings) ProcessIsAccessibilityTrusted(prompt bool) bool { return false }

func (stubBindings) SetGlobalMessagingTimeout(seconds float64) error { return ErrUnsupported }

func (stubBindings) ConfigureAsRegularActivationPolicy() error { return ErrUnsupported }

func (stubBindings) ActivateSelf() error { return ErrUnsupported }

func (stubBindings) ActiveDisplays() ([]wmtypes.Rect, error) { return nil, ErrUnsupported }

func (stubBindings) OnScreenWindows() ([]WindowInfo, error) { return nil, ErrUnsupported }

func (stubBindings) RunningApplications() ([]RunningApp, error) { return nil, ErrUnsupported }

func (stubBindings) CursorPosition() (wmtypes.Point, error) { return wmtypes.Point{}, ErrUnsupported }

func (stubBindings) WarpCursor(p wmtypes.Point) error { return ErrUnsupported }

func (stubBindings) ApplicationElement(pid wmtypes.Pid) (Element, error) {
	return nil, ErrUnsupported
}

func (stubBindings) SystemWideElement() Element { return stubElement{} }

func (stubBindings) ResolveWindowElement(app Element, id wmtypes.WinId) (Element, error) {
	return nil, ErrUnsupported
}

func (stubBindings) WindowIDForElement(win Element) (wmtypes.WinId, bool) { return 0, false }

func (stubBindings) FocusedWindow(app Element) (Element, error) { return nil, ErrUnsupported }

func (stubBindings) Activate(app Element, pid wmtypes.Pid) error { return ErrUnsupported }

func (stubBindings) EnhancedUserInterfaceEnabled(app Element) bool { return false }

func (stubBindings) SetEnhancedUserInterface(app Element, enabled bool) error {
	return ErrUnsupported
}

func (stubBindings) SetPosition(win Element, p wmtypes.Point) error { return ErrUnsupported }

func (stubBindings) SetSize(win Element, w, h int32) error { return ErrUnsupported }

func (stubBindings) SetMinimized(win Element, minimized bool) error { return ErrUnsupported }

func (stubBindings) Raise(win Element) error { return ErrUnsupported }

func (stubBindings) Close(win Element) error { return ErrUnsupported }

func (stubBindings) IsFullscreen(win Element) bool { return false }

func (stubBindings) ReleaseElement(e Element) {}

func (stubBindings) RegisterObserver(pid wmtypes.Pid, element Element, notification string, refcon uintptr, handler NotificationHandler) (ObserverToken, error) {
	return nil, ErrUnsupported
}

func (stubBindings) RemoveObserver(token ObserverToken) error { return nil }

func (stubBindings) RegisterWorkspaceObserver(notification string, handler WorkspaceHandler) (ObserverToken, error) {
	return nil, ErrUnsupported
}

func (stubBindings) RemoveWorkspaceObserver(token ObserverToken) error { return nil }

func (stubBindings) RunMainLoop() {}
