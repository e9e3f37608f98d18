package board

import "bento/internal/domain"

// Registry is the Content Registry: content keyed by cell id, decoupled from
// geometry. Every call is its own batch; use Store.Batch to group several.
type Registry struct {
	s *Store
}

// Set inserts or replaces the content of id.
func (r *Registry) Set(id string, c domain.Content) {
	_ = r.s.Batch(func(tx *Tx) error {
		tx.SetContent(id, c)
		return nil
	})
}

// Get returns the content of id.
func (r *Registry) Get(id string) (domain.Content, bool) {
	return r.s.Content(id)
}

// Has reports whether id has content.
func (r *Registry) Has(id string) bool {
	_, ok := r.s.Content(id)
	return ok
}

// Remove drops the content of id. Removing a missing id is a no-op.
func (r *Registry) Remove(id string) {
	_ = r.s.Batch(func(tx *Tx) error {
		tx.RemoveContent(id)
		return nil
	})
}

// Clear drops every entry. Only a full board reset uses it.
func (r *Registry) Clear() {
	_ = r.s.Batch(func(tx *Tx) error {
		tx.ClearContent()
		return nil
	})
}

// Entries returns every (id, content) pair.
func (r *Registry) Entries() []domain.Entry {
	return r.s.Entries()
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.s.Entries())
}
