// Package mapping maintains the header-to-concept assignment a user builds
// while reconciling a spreadsheet's columns. The assignment is injective
// over concepts: a concept can be the target of at most one header. Headers
// may instead be explicitly bound to no concept at all, and any number of
// headers can share that sentinel.
package mapping

import (
	"github.com/cierreops/cierre-cli/internal/model"
)

// Engine tracks one job's header mapping. Each header is in one of three
// states: pending (no decision), explicitly unassigned, or mapped to a
// concept. Not safe for concurrent use; each reconciliation view owns its
// own instance.
type Engine struct {
	order    []string
	decided  map[string]*model.Concept // present = decided; nil value = unassigned sentinel
	selected string
	readOnly bool
}

// New creates an engine for the given headers, all pending, in order.
func New(headers []string) *Engine {
	order := make([]string, len(headers))
	copy(order, headers)
	return &Engine{
		order:   order,
		decided: make(map[string]*model.Concept),
	}
}

// LoadExisting seeds decisions from a persisted mapping. A nil concept in
// the input is the explicit "no concept" decision, not a pending header.
// Entries for unknown headers are ignored.
func (e *Engine) LoadExisting(existing map[string]*model.Concept) {
	for _, h := range e.order {
		c, ok := existing[h]
		if !ok {
			continue
		}
		if c == nil {
			e.decided[h] = nil
			continue
		}
		cp := *c
		e.decided[h] = &cp
	}
}

// SetReadOnly switches the engine to display-only mode; every mutating
// operation becomes a no-op. Used once the job is terminal.
func (e *Engine) SetReadOnly(ro bool) {
	e.readOnly = ro
	if ro {
		e.selected = ""
	}
}

// ReadOnly reports display-only mode.
func (e *Engine) ReadOnly() bool {
	return e.readOnly
}

// Select marks a pending header as the target for the next assignment.
// Returns false for decided or unknown headers.
func (e *Engine) Select(header string) bool {
	if e.readOnly || !e.isPending(header) {
		return false
	}
	e.selected = header
	return true
}

// Selected returns the active header, or "".
func (e *Engine) Selected() string {
	return e.selected
}

// Assign binds the selected header to the concept. It is a no-op when no
// header is selected or when the concept already belongs to another header.
// On success the selection advances to the first remaining pending header.
func (e *Engine) Assign(concept model.Concept) bool {
	if e.readOnly || e.selected == "" {
		return false
	}
	if e.conceptTaken(concept.ID) {
		return false
	}
	c := concept
	e.decided[e.selected] = &c
	e.advance()
	return true
}

// AssignUnassigned binds the selected header to the explicit "no concept"
// sentinel. The header counts as mapped, and the sentinel is shared: the
// injectivity rule applies only to real concepts.
func (e *Engine) AssignUnassigned() bool {
	if e.readOnly || e.selected == "" {
		return false
	}
	e.decided[e.selected] = nil
	e.advance()
	return true
}

// Unassign removes a header's decision, returning it to pending.
func (e *Engine) Unassign(header string) bool {
	if e.readOnly {
		return false
	}
	if _, ok := e.decided[header]; !ok {
		return false
	}
	delete(e.decided, header)
	return true
}

// Pending returns the undecided headers in load order.
func (e *Engine) Pending() []string {
	var out []string
	for _, h := range e.order {
		if e.isPending(h) {
			out = append(out, h)
		}
	}
	return out
}

// Complete reports whether every header has a decision.
func (e *Engine) Complete() bool {
	return len(e.decided) == len(e.order)
}

// Mapped returns a header's concept. The second result distinguishes a
// decided header (possibly with a nil concept) from a pending one.
func (e *Engine) Mapped(header string) (*model.Concept, bool) {
	c, ok := e.decided[header]
	return c, ok
}

// Payload serializes every decision, in header load order, for one-shot
// submission. Pending headers are omitted.
func (e *Engine) Payload() []model.HeaderAssignment {
	var out []model.HeaderAssignment
	for _, h := range e.order {
		c, ok := e.decided[h]
		if !ok {
			continue
		}
		a := model.HeaderAssignment{Header: h}
		if c != nil {
			id := c.ID
			a.ConceptID = &id
		}
		out = append(out, a)
	}
	return out
}

func (e *Engine) isPending(header string) bool {
	for _, h := range e.order {
		if h == header {
			_, decided := e.decided[header]
			return !decided
		}
	}
	return false
}

func (e *Engine) conceptTaken(conceptID string) bool {
	for h, c := range e.decided {
		if c != nil && c.ID == conceptID && h != e.selected {
			return true
		}
	}
	return false
}

// advance clears the selection and moves it to the first pending header,
// if any remain.
func (e *Engine) advance() {
	e.selected = ""
	for _, h := range e.order {
		if e.isPending(h) {
			e.selected = h
			return
		}
	}
}
