// Package page models the document a replacement pass runs over: a tree of
// elements with attributes and inline style, and the size reader that turns
// an element into a target rectangle.
package page

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Element is one node of the document tree
type Element struct {
	ID       string            `json:"id,omitempty"`
	Tag      string            `json:"tag"`
	Class    string            `json:"class,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Style    map[string]string `json:"style,omitempty"`
	Children []*Element        `json:"children,omitempty"`

	parent *Element
}

// Parent returns the enclosing element, nil for the root
func (e *Element) Parent() *Element {
	return e.parent
}

// HasClass reports whether name is one of the element's classes
func (e *Element) HasClass(name string) bool {
	for _, c := range strings.Fields(e.Class) {
		if c == name {
			return true
		}
	}
	return false
}

// Page is a loaded document
type Page struct {
	URL  string   `json:"url,omitempty"`
	Root *Element `json:"root"`
}

// Load decodes a page from JSON and links parents
func Load(r io.Reader) (*Page, error) {
	var p Page
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode page: %w", err)
	}
	if p.Root == nil {
		return nil, fmt.Errorf("page has no root element")
	}
	p.Link()
	return &p, nil
}

// Link sets parent pointers for the whole tree. Call it after building a
// page by hand.
func (p *Page) Link() {
	var link func(parent, e *Element)
	link = func(parent, e *Element) {
		e.parent = parent
		for _, c := range e.Children {
			link(e, c)
		}
	}
	if p.Root != nil {
		link(nil, p.Root)
	}
}

// Walk visits elements depth-first in document order. Returning false from
// fn stops the walk.
func (p *Page) Walk(fn func(*Element) bool) {
	var walk func(e *Element) bool
	walk = func(e *Element) bool {
		if !fn(e) {
			return false
		}
		for _, c := range e.Children {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	if p.Root != nil {
		walk(p.Root)
	}
}

// Size is the target rectangle read from an element
type Size struct {
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	HasX     bool    `json:"-"`
	HasY     bool    `json:"-"`
	Position string  `json:"position"`
}

// Complete reports whether both dimensions are known
func (s Size) Complete() bool {
	return s.HasX && s.HasY
}

// ReadSize reads the element's width and height from its attributes, then
// its inline style, and finally from the closest ancestor that declares the
// missing dimension.
func ReadSize(e *Element) Size {
	s := Size{Position: e.Style["position"]}
	if s.Position == "" {
		s.Position = "static"
	}

	for cur := e; cur != nil && !s.Complete(); cur = cur.parent {
		if !s.HasX {
			s.X, s.HasX = dimension(cur, "width")
		}
		if !s.HasY {
			s.Y, s.HasY = dimension(cur, "height")
		}
	}
	return s
}

func dimension(e *Element, name string) (float64, bool) {
	if v, ok := parsePixels(e.Attrs[name]); ok {
		return v, true
	}
	return parsePixels(e.Style[name])
}

// parsePixels accepts "300", "300px" and "300.5px"; percentages, "auto" and
// other units are not explicit sizes.
func parsePixels(v string) (float64, bool) {
	v = strings.TrimSpace(strings.ToLower(v))
	v = strings.TrimSuffix(v, "px")
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}
