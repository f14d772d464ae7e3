// Package statemachine describes closed status enums and the transitions
// allowed between them. A Table holds no current state: records keep their
// status in storage and consult the table before a conditional update.
//
//	var Transitions = statemachine.New(
//		statemachine.Allow(StatusSent, StatusOpened, StatusCompleted),
//		statemachine.Allow(StatusOpened, StatusCompleted),
//	)
//
//	if err := Transitions.Check(current, StatusCompleted); err != nil { ... }
//	from := Transitions.Sources(StatusCompleted) // for UPDATE ... WHERE status IN (...)
package statemachine

import "slices"

// Table is an immutable set of allowed transitions over S.
type Table[S ~string] struct {
	edges map[S][]S
	order []S
}

// Option adds transitions to a Table under construction.
type Option[S ~string] func(*Table[S])

// Allow permits from → each of to.
func Allow[S ~string](from S, to ...S) Option[S] {
	return func(t *Table[S]) {
		t.add(from)
		for _, s := range to {
			t.add(s)
			if !slices.Contains(t.edges[from], s) {
				t.edges[from] = append(t.edges[from], s)
			}
		}
	}
}

// AllowFromAny permits to from every listed source; convenient for
// cancellation-style states reachable from all non-terminal states.
func AllowFromAny[S ~string](sources []S, to ...S) Option[S] {
	return func(t *Table[S]) {
		for _, from := range sources {
			Allow(from, to...)(t)
		}
	}
}

// New builds a Table.
func New[S ~string](opts ...Option[S]) *Table[S] {
	t := &Table[S]{edges: make(map[S][]S)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Table[S]) add(s S) {
	if !slices.Contains(t.order, s) {
		t.order = append(t.order, s)
	}
}

// Allowed reports whether from → to is permitted.
func (t *Table[S]) Allowed(from, to S) bool {
	return slices.Contains(t.edges[from], to)
}

// Check is Allowed returning *ErrNoTransitionAvailable on failure.
func (t *Table[S]) Check(from, to S) error {
	if t.Allowed(from, to) {
		return nil
	}
	return &ErrNoTransitionAvailable{From: string(from), To: string(to)}
}

// Sources lists every state that may transition to to, in declaration order.
func (t *Table[S]) Sources(to S) []S {
	var out []S
	for _, s := range t.order {
		if slices.Contains(t.edges[s], to) {
			out = append(out, s)
		}
	}
	return out
}

// Targets lists the states reachable from from in one step.
func (t *Table[S]) Targets(from S) []S {
	return slices.Clone(t.edges[from])
}

// IsTerminal reports whether s has no outgoing transitions.
func (t *Table[S]) IsTerminal(s S) bool {
	return len(t.edges[s]) == 0
}

// States lists every state mentioned by the table.
func (t *Table[S]) States() []S {
	return slices.Clone(t.order)
}
