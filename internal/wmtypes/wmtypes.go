// Package wmtypes defines the identifier and geometry types shared by every
// layer of the connection core: process and window identifiers, and the
// integer rectangle/point types used for display and window bounds.
package wmtypes

import "fmt"

// Pid is the process identifier of a managed application. It is stable for
// the lifetime of the process.
type Pid int32

// WinId is the OS-assigned window number. It is stable for the lifetime of
// the window and is not reused while the window lives.
type WinId uint32

// Point is an integer coordinate pair in global display space, with the
// origin at the top-left of the primary display.
type Point struct {
	X, Y int32
}

// Rect is an integer rectangle in global display coordinates.
type Rect struct {
	X, Y          int32
	Width, Height int32
}

// Contains reports whether p lies within r, using a half-open interval on
// both axes ([x, x+w), [y, y+h)).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.Width &&
		p.Y >= r.Y && p.Y < r.Y+r.Height
}

// Midpoint returns the integer midpoint of r.
func (r Rect) Midpoint() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// String renders r as "(x, y) WxH" for logging.
func (r Rect) String() string {
	return fmt.Sprintf("(%d, %d) %dx%d", r.X, r.Y, r.Width, r.Height)
}

// Layer is the OS-assigned stacking-order class for a window. Only layer 0
// is considered a normal, manageable window.
type Layer int32

// ManagedLayer is the only layer value the core will manage.
const ManagedLayer Layer = 0
