package board

import "bento/internal/domain"

// Layout is the Layout Array: the ordered geometry of every cell and the
// single source of truth for grid placement.
type Layout struct {
	s *Store
}

// AddItem appends item and returns it as stored (id filled in, clamped to the
// grid). Adding an id that already exists updates its geometry instead, so a
// retried add is harmless.
func (l *Layout) AddItem(item domain.LayoutItem) domain.LayoutItem {
	var out domain.LayoutItem
	_ = l.s.Batch(func(tx *Tx) error {
		out = tx.AddItem(item)
		return nil
	})
	return out
}

// UpdateGeometry applies a partial x/y/w/h update.
func (l *Layout) UpdateGeometry(id string, patch domain.GeometryPatch) error {
	return l.s.Batch(func(tx *Tx) error {
		return tx.UpdateGeometry(id, patch)
	})
}

// RemoveItem deletes id together with its content.
func (l *Layout) RemoveItem(id string) {
	_ = l.s.Batch(func(tx *Tx) error {
		tx.RemoveItem(id)
		return nil
	})
}

// ReorderOnLayoutChange applies the layout the grid primitive emits once a
// drag or resize settles and returns how many entries were rejected.
func (l *Layout) ReorderOnLayoutChange(items []domain.LayoutItem) int {
	var rejected int
	_ = l.s.Batch(func(tx *Tx) error {
		rejected = tx.ReplaceLayout(items)
		return nil
	})
	return rejected
}

// Reflow fits every cell into a new column count.
func (l *Layout) Reflow(columns int) {
	_ = l.s.Batch(func(tx *Tx) error {
		tx.Reflow(columns)
		return nil
	})
}

// Items returns the ordered geometry.
func (l *Layout) Items() []domain.LayoutItem {
	return l.s.Items()
}

// Get returns the geometry of id.
func (l *Layout) Get(id string) (domain.LayoutItem, bool) {
	return l.s.Item(id)
}

// Len returns the number of cells with geometry.
func (l *Layout) Len() int {
	return len(l.s.Items())
}
