package window

import (
	"fmt"
	"slices"
	"strings"
)

// Attribute names one observable window attribute.
type Attribute string

const (
	AttrAlive     Attribute = "alive"
	AttrActive    Attribute = "active"
	AttrVisible   Attribute = "visible"
	AttrMinimized Attribute = "minimized"
	AttrMaximized Attribute = "maximized"
	AttrSize      Attribute = "size"
	AttrPosition  Attribute = "position"
	AttrTitle     Attribute = "title"
	AttrDisplays  Attribute = "displays"
)

// Attributes lists every observable attribute in notification order.
var Attributes = []Attribute{
	AttrAlive, AttrActive, AttrVisible, AttrMinimized, AttrMaximized,
	AttrSize, AttrPosition, AttrTitle, AttrDisplays,
}

// ParseAttribute resolves an attribute name case-insensitively.
func ParseAttribute(name string) (Attribute, error) {
	attr := Attribute(strings.ToLower(strings.TrimSpace(name)))
	if !slices.Contains(Attributes, attr) {
		return "", fmt.Errorf("unknown window attribute %q", name)
	}
	return attr, nil
}

// ParseAttributes resolves a list of attribute names. An empty list yields
// every attribute.
func ParseAttributes(names []string) ([]Attribute, error) {
	if len(names) == 0 {
		return slices.Clone(Attributes), nil
	}
	attrs := make([]Attribute, 0, len(names))
	for _, name := range names {
		attr, err := ParseAttribute(name)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(attrs, attr) {
			attrs = append(attrs, attr)
		}
	}
	return attrs, nil
}

// Point is a screen position.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Size is a window extent.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Rect is a window frame in screen coordinates.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Contains reports whether (x, y) lies inside r. The right and bottom edges
// are exclusive.
func (r Rect) Contains(x, y int) bool {
	return x >= r.Left && x < r.Right && y >= r.Top && y < r.Bottom
}

// Snapshot is the set of observable attributes of one window at one moment.
// Snapshots are values: a refresh replaces the whole snapshot.
type Snapshot struct {
	Title       string   `json:"title"`
	Position    Point    `json:"position"`
	Size        Size     `json:"size"`
	IsMinimized bool     `json:"is_minimized"`
	IsMaximized bool     `json:"is_maximized"`
	IsActive    bool     `json:"is_active"`
	IsVisible   bool     `json:"is_visible"`
	IsAlive     bool     `json:"is_alive"`
	Displays    []string `json:"displays"`
}

// Rect returns the window frame.
func (s Snapshot) Rect() Rect {
	return Rect{
		Left:   s.Position.X,
		Top:    s.Position.Y,
		Right:  s.Position.X + s.Size.Width,
		Bottom: s.Position.Y + s.Size.Height,
	}
}

// Center returns the midpoint of the window frame.
func (s Snapshot) Center() Point {
	return Point{
		X: s.Position.X + s.Size.Width/2,
		Y: s.Position.Y + s.Size.Height/2,
	}
}

// Clone returns a copy that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	s.Displays = slices.Clone(s.Displays)
	return s
}

// Value returns the typed value of one attribute: bool for state flags,
// string for the title, Point or Size for geometry and []string for displays.
func (s Snapshot) Value(attr Attribute) any {
	switch attr {
	case AttrAlive:
		return s.IsAlive
	case AttrActive:
		return s.IsActive
	case AttrVisible:
		return s.IsVisible
	case AttrMinimized:
		return s.IsMinimized
	case AttrMaximized:
		return s.IsMaximized
	case AttrSize:
		return s.Size
	case AttrPosition:
		return s.Position
	case AttrTitle:
		return s.Title
	case AttrDisplays:
		return slices.Clone(s.Displays)
	}
	return nil
}

// Changed lists the attributes whose values differ between prev and s, in
// Attributes order.
func (s Snapshot) Changed(prev Snapshot) []Attribute {
	var changed []Attribute
	for _, attr := range Attributes {
		if !s.sameAs(prev, attr) {
			changed = append(changed, attr)
		}
	}
	return changed
}

func (s Snapshot) sameAs(prev Snapshot, attr Attribute) bool {
	switch attr {
	case AttrAlive:
		return s.IsAlive == prev.IsAlive
	case AttrActive:
		return s.IsActive == prev.IsActive
	case AttrVisible:
		return s.IsVisible == prev.IsVisible
	case AttrMinimized:
		return s.IsMinimized == prev.IsMinimized
	case AttrMaximized:
		return s.IsMaximized == prev.IsMaximized
	case AttrSize:
		return s.Size == prev.Size
	case AttrPosition:
		return s.Position == prev.Position
	case AttrTitle:
		return s.Title == prev.Title
	case AttrDisplays:
		return slices.Equal(s.Displays, prev.Displays)
	}
	return true
}
