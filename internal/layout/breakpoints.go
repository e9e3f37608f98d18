package layout

import (
	"sync"

	"bento/internal/domain"
)

// Tier is one row of the breakpoint table.
type Tier struct {
	MinWidth int
	Name     domain.Breakpoint
	Columns  int
}

// Tiers is ordered by MinWidth ascending; column counts never decrease as the
// width grows.
var Tiers = []Tier{
	{MinWidth: 0, Name: domain.BreakpointXXS, Columns: 2},
	{MinWidth: 480, Name: domain.BreakpointXS, Columns: 2},
	{MinWidth: 768, Name: domain.BreakpointSM, Columns: 4},
}

// Resolve returns the largest tier whose minimum width is <= width, falling
// back to the smallest tier for negative widths.
func Resolve(width int) domain.BreakpointState {
	t := Tiers[0]
	for _, candidate := range Tiers[1:] {
		if width >= candidate.MinWidth {
			t = candidate
		}
	}
	return domain.BreakpointState{Name: t.Name, Columns: t.Columns}
}

// ColumnsFor returns the column count of a named breakpoint, or 0 when the
// name is not in the table.
func ColumnsFor(bp domain.Breakpoint) int {
	for _, t := range Tiers {
		if t.Name == bp {
			return t.Columns
		}
	}
	return 0
}

// MaxColumns returns the column count of the widest tier.
func MaxColumns() int {
	return Tiers[len(Tiers)-1].Columns
}

// ChangeFunc is called when the active breakpoint changes.
type ChangeFunc func(prev, next domain.BreakpointState)

// Resolver tracks the live container width and notifies listeners when the
// active tier changes. Width updates inside the same tier are silent.
type Resolver struct {
	mu        sync.Mutex
	width     int
	state     domain.BreakpointState
	listeners []ChangeFunc
}

// NewResolver creates a Resolver for an initial container width.
func NewResolver(width int) *Resolver {
	return &Resolver{width: width, state: Resolve(width)}
}

// Current returns the active breakpoint.
func (r *Resolver) Current() domain.BreakpointState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Width returns the last container width seen.
func (r *Resolver) Width() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width
}

// OnChange registers a listener.
func (r *Resolver) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// SetWidth records a new container width and reports whether the tier changed.
// Listeners run synchronously after the state is updated.
func (r *Resolver) SetWidth(width int) (domain.BreakpointState, bool) {
	r.mu.Lock()
	r.width = width
	next := Resolve(width)
	prev := r.state
	if next == prev {
		r.mu.Unlock()
		return next, false
	}
	r.state = next
	listeners := append([]ChangeFunc(nil), r.listeners...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, next)
	}
	return next, true
}
