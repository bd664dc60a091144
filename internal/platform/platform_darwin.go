// Copyright 2026 The axcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin

package platform

/*
#cgo CFLAGS: -x objective-c -Wno-deprecated-declarations
#cgo LDFLAGS: -framework ApplicationServices -framework AppKit -framework CoreGraphics
#include <stdlib.h>
#include "platform_darwin.h"
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/tilepilot/axcore/internal/wmerr"
	"github.com/tilepilot/axcore/internal/wmtypes"
)

// element is the concrete Element implementation: a retained reference to
// an AXUIElementRef (or, for the system-wide element, a borrowed one that
// this package never releases).
type element struct {
	ref unsafe.Pointer
}

func (e *element) IsValid() bool { return e != nil && e.ref != nil }

func wrapElement(ref unsafe.Pointer) Element {
	if ref == nil {
		return nil
	}
	return &element{ref: ref}
}

func elementPtr(e Element) unsafe.Pointer {
	ax, ok := e.(*element)
	if !ok || ax == nil {
		return nil
	}
	return ax.ref
}

// darwinBindings is the cgo-backed Bindings implementation.
type darwinBindings struct {
	systemWide Element
}

// New returns the darwin Bindings implementation. Call once at process
// startup before any other package touches the accessibility API.
func New() Bindings {
	return &darwinBindings{systemWide: wrapElement(unsafe.Pointer(C.axcore_system_wide_element()))}
}

func (b *darwinBindings) ProcessIsAccessibilityTrusted(prompt bool) bool {
	return bool(C.axcore_is_trusted(C.bool(prompt)))
}

func (b *darwinBindings) SetGlobalMessagingTimeout(seconds float64) error {
	err := C.axcore_set_messaging_timeout(elementPtr(b.systemWide), C.float(seconds))
	return axError("SetGlobalMessagingTimeout", err)
}

func (b *darwinBindings) ConfigureAsRegularActivationPolicy() error {
	if C.axcore_configure_regular_activation_policy() != 0 {
		return fmt.Errorf("ConfigureAsRegularActivationPolicy: failed to set activation policy")
	}
	return nil
}

func (b *darwinBindings) ActivateSelf() error {
	C.axcore_activate_self()
	return nil
}

func (b *darwinBindings) RunMainLoop() {
	C.axcore_run_main_loop()
}

func (b *darwinBindings) SystemWideElement() Element { return b.systemWide }

const maxDisplays = 64

func (b *darwinBindings) ActiveDisplays() ([]wmtypes.Rect, error) {
	var buf [maxDisplays]C.axcore_rect
	n := C.axcore_active_displays(&buf[0], C.int(maxDisplays))
	if n < 0 {
		return nil, fmt.Errorf("ActiveDisplays: CGGetActiveDisplayList failed")
	}
	out := make([]wmtypes.Rect, n)
	for i := 0; i < int(n); i++ {
		out[i] = rectFromC(buf[i])
	}
	return out, nil
}

const maxWindows = 1024

func (b *darwinBindings) OnScreenWindows() ([]WindowInfo, error) {
	buf := make([]C.axcore_window_info, maxWindows)
	n := C.axcore_on_screen_windows(&buf[0], C.int(maxWindows))
	if n < 0 {
		return nil, fmt.Errorf("OnScreenWindows: CGWindowListCopyWindowInfo failed")
	}
	out := make([]WindowInfo, n)
	for i := 0; i < int(n); i++ {
		w := buf[i]
		out[i] = WindowInfo{
			Number:    wmtypes.WinId(w.number),
			OwnerPid:  wmtypes.Pid(w.owner_pid),
			Layer:     wmtypes.Layer(w.layer),
			Bounds:    rectFromC(w.bounds),
			OwnerName: C.GoString(&w.owner_name[0]),
			Name:      C.GoString(&w.name[0]),
			HasName:   bool(w.has_name),
		}
	}
	return out, nil
}

const maxApps = 512

func (b *darwinBindings) RunningApplications() ([]RunningApp, error) {
	buf := make([]C.axcore_running_app, maxApps)
	n := C.axcore_running_applications(&buf[0], C.int(maxApps))
	if n < 0 {
		return nil, fmt.Errorf("RunningApplications: enumeration failed")
	}
	out := make([]RunningApp, n)
	for i := 0; i < int(n); i++ {
		out[i] = RunningApp{Pid: wmtypes.Pid(buf[i].pid), Name: C.GoString(&buf[i].name[0])}
	}
	return out, nil
}

func (b *darwinBindings) CursorPosition() (wmtypes.Point, error) {
	var x, y C.double
	if C.axcore_cursor_position(&x, &y) != 0 {
		return wmtypes.Point{}, fmt.Errorf("CursorPosition: CGEventCreate failed")
	}
	return wmtypes.Point{X: int32(x), Y: int32(y)}, nil
}

func (b *darwinBindings) WarpCursor(p wmtypes.Point) error {
	err := C.axcore_warp_cursor(C.double(p.X), C.double(p.Y))
	if err != 0 {
		return fmt.Errorf("WarpCursor: CGWarpMouseCursorPosition failed with status %d", int(err))
	}
	return nil
}

func (b *darwinBindings) ApplicationElement(pid wmtypes.Pid) (Element, error) {
	ref := C.axcore_application_element(C.int32_t(pid))
	if ref == nil {
		return nil, fmt.Errorf("ApplicationElement: could not create element for pid %d", pid)
	}
	return wrapElement(unsafe.Pointer(ref)), nil
}

func (b *darwinBindings) ResolveWindowElement(app Element, id wmtypes.WinId) (Element, error) {
	ref := C.axcore_resolve_window_element(elementPtr(app), C.uint32_t(id))
	if ref == nil {
		return nil, wmerr.ErrWindowNotFound
	}
	return wrapElement(unsafe.Pointer(ref)), nil
}

func (b *darwinBindings) WindowIDForElement(win Element) (wmtypes.WinId, bool) {
	var id C.uint32_t
	ok := bool(C.axcore_window_id_for_element(elementPtr(win), &id))
	return wmtypes.WinId(id), ok
}

func (b *darwinBindings) FocusedWindow(app Element) (Element, error) {
	ref := C.axcore_focused_window(elementPtr(app))
	if ref == nil {
		return nil, fmt.Errorf("FocusedWindow: no focused window attribute")
	}
	return wrapElement(unsafe.Pointer(ref)), nil
}

func (b *darwinBindings) Activate(app Element, pid wmtypes.Pid) error {
	err := C.axcore_activate_app(elementPtr(app), C.int32_t(pid))
	if err != 0 {
		return fmt.Errorf("Activate: could not activate pid %d", pid)
	}
	return nil
}

func (b *darwinBindings) EnhancedUserInterfaceEnabled(app Element) bool {
	return bool(C.axcore_enhanced_ui_enabled(elementPtr(app)))
}

func (b *darwinBindings) SetEnhancedUserInterface(app Element, enabled bool) error {
	err := C.axcore_set_enhanced_ui(elementPtr(app), C.bool(enabled))
	return axError("SetEnhancedUserInterface", err)
}

func (b *darwinBindings) SetPosition(win Element, p wmtypes.Point) error {
	err := C.axcore_set_position(elementPtr(win), C.double(p.X), C.double(p.Y))
	return axError("SetPosition", err)
}

func (b *darwinBindings) SetSize(win Element, w, h int32) error {
	err := C.axcore_set_size(elementPtr(win), C.double(w), C.double(h))
	return axError("SetSize", err)
}

func (b *darwinBindings) SetMinimized(win Element, minimized bool) error {
	err := C.axcore_set_minimized(elementPtr(win), C.bool(minimized))
	return axError("SetMinimized", err)
}

func (b *darwinBindings) Raise(win Element) error {
	err := C.axcore_raise(elementPtr(win))
	return axError("Raise", err)
}

func (b *darwinBindings) Close(win Element) error {
	err := C.axcore_close_window(elementPtr(win))
	return axError("Close", err)
}

func (b *darwinBindings) IsFullscreen(win Element) bool {
	return bool(C.axcore_is_fullscreen(elementPtr(win)))
}

func (b *darwinBindings) ReleaseElement(e Element) {
	if e == b.systemWide {
		return
	}
	C.axcore_release_element(elementPtr(e))
}

func rectFromC(r C.axcore_rect) wmtypes.Rect {
	return wmtypes.Rect{X: int32(r.x), Y: int32(r.y), Width: int32(r.w), Height: int32(r.h)}
}

func axError(op string, code C.int32_t) error {
	if code == 0 {
		return nil
	}
	return wmerr.Custom(op, int(code))
}

// --- observer bridging ---

type observerKey struct {
	notification string
	refcon       uintptr
}

var (
	observerMu   sync.Mutex
	observerRegs = map[observerKey]NotificationHandler{}

	workspaceMu   sync.Mutex
	workspaceRegs = map[string]WorkspaceHandler{}
)

type observerToken struct {
	cToken unsafe.Pointer
	key    observerKey
}

func (b *darwinBindings) RegisterObserver(pid wmtypes.Pid, elem Element, notification string, refcon uintptr, handler NotificationHandler) (ObserverToken, error) {
	cNotification := C.CString(notification)
	defer C.free(unsafe.Pointer(cNotification))

	key := observerKey{notification: notification, refcon: refcon}
	observerMu.Lock()
	observerRegs[key] = handler
	observerMu.Unlock()

	cToken := C.axcore_register_observer(C.int32_t(pid), elementPtr(elem), cNotification, C.uintptr_t(refcon))
	if cToken == nil {
		observerMu.Lock()
		delete(observerRegs, key)
		observerMu.Unlock()
		return nil, fmt.Errorf("RegisterObserver: AXObserverCreate/AddNotification failed for %q", notification)
	}
	return &observerToken{cToken: unsafe.Pointer(cToken), key: key}, nil
}

func (b *darwinBindings) RemoveObserver(token ObserverToken) error {
	t, ok := token.(*observerToken)
	if !ok || t == nil {
		return nil
	}
	C.axcore_remove_observer(t.cToken)
	observerMu.Lock()
	delete(observerRegs, t.key)
	observerMu.Unlock()
	return nil
}

type workspaceToken struct {
	cToken       unsafe.Pointer
	notification string
}

func (b *darwinBindings) RegisterWorkspaceObserver(notification string, handler WorkspaceHandler) (ObserverToken, error) {
	cNotification := C.CString(notification)
	defer C.free(unsafe.Pointer(cNotification))

	workspaceMu.Lock()
	workspaceRegs[notification] = handler
	workspaceMu.Unlock()

	cToken := C.axcore_register_workspace_observer(cNotification)
	return &workspaceToken{cToken: unsafe.Pointer(cToken), notification: notification}, nil
}

func (b *darwinBindings) RemoveWorkspaceObserver(token ObserverToken) error {
	t, ok := token.(*workspaceToken)
	if !ok || t == nil {
		return nil
	}
	C.axcore_remove_workspace_observer(t.cToken)
	workspaceMu.Lock()
	delete(workspaceRegs, t.notification)
	workspaceMu.Unlock()
	return nil
}

//export axcoreObserverCallback
func axcoreObserverCallback(notification *C.char, refcon C.uintptr_t) {
	key := observerKey{notification: C.GoString(notification), refcon: uintptr(refcon)}
	observerMu.Lock()
	handler := observerRegs[key]
	observerMu.Unlock()
	if handler != nil {
		handler(key.notification, key.refcon)
	}
}

//export axcoreWorkspaceCallback
func axcoreWorkspaceCallback(notification *C.char, pid C.int32_t) {
	name := C.GoString(notification)
	workspaceMu.Lock()
	handler := workspaceRegs[name]
	workspaceMu.Unlock()
	if handler != nil {
		handler(name, wmtypes.Pid(pid))
	}
}
