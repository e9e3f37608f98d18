// Package board holds the in-memory state of a bento grid: one record per
// cell id carrying optional geometry and optional content. The Layout Array
// and the Content Registry are projections of that single store.
package board

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bento/internal/domain"
	"bento/internal/layout"
)

// ErrNotFound is returned when an operation targets an id with no geometry.
var ErrNotFound = errors.New("cell not found")

type record struct {
	seq     uint64
	item    *domain.LayoutItem
	content domain.Content
	// orphanSince is when the record last had geometry but no content.
	orphanSince time.Time
}

func (r *record) clone() *record {
	c := *r
	if r.item != nil {
		it := *r.item
		c.item = &it
	}
	return &c
}

// Snapshot is an immutable copy of the board handed to listeners. Layout is
// the stored geometry, in the widest tier's columns; View projects it onto
// the active column count.
type Snapshot struct {
	Version uint64
	Columns int
	Layout  []domain.LayoutItem
	Entries []domain.Entry
}

// View returns Layout clamped to Columns, as the grid shows it.
func (s Snapshot) View() []domain.LayoutItem {
	out := make([]domain.LayoutItem, len(s.Layout))
	for i, it := range s.Layout {
		out[i] = layout.Clamp(it, s.Columns)
	}
	return out
}

// Listener receives one snapshot per committed batch, in commit order.
// Listeners must not mutate the store.
type Listener func(Snapshot)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for integrity warnings.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l.Named("board") }
}

// WithClock overrides time.Now, used by the orphan bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the UUID generator for ids left empty on add.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Store is the single owner of geometry and content for one board.
//
// Geometry is kept in base columns, the widest tier. Narrower tiers read a
// clamped view, so switching tiers back and forth never moves a cell.
type Store struct {
	mu      sync.Mutex
	records map[string]*record
	order   []string // ids with geometry, in layout order
	columns int      // active
	base    int      // stored geometry
	seq     uint64
	version uint64

	// deliver serializes listener calls so they observe batches in order.
	deliver   sync.Mutex
	listeners map[int]Listener
	nextLis   int

	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// New creates an empty store for a grid of the given column count.
func New(columns int, opts ...Option) *Store {
	s := &Store{
		records:   make(map[string]*record),
		columns:   columns,
		base:      max(columns, layout.MaxColumns()),
		listeners: make(map[int]Listener),
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextLis
	s.nextLis++
	s.listeners[id] = l
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Batch runs fn as one logical change. Listeners are notified at most once,
// after fn returns, and only if something changed. If fn returns an error
// every mutation it made is rolled back and nobody is notified.
func (s *Store) Batch(fn func(tx *Tx) error) error {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	tx := &Tx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		s.mu.Unlock()
		return err
	}
	if !tx.dirty {
		s.mu.Unlock()
		return nil
	}
	s.version++
	snap := s.snapshotLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return nil
}

// Snapshot returns a copy of the current board.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version: s.version,
		Columns: s.columns,
		Layout:  s.storedLocked(),
		Entries: s.entriesLocked(),
	}
}

// storedLocked returns geometry in base columns.
func (s *Store) storedLocked() []domain.LayoutItem {
	items := make([]domain.LayoutItem, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, *s.records[id].item)
	}
	return items
}

// itemsLocked returns geometry as seen at the active column count.
func (s *Store) itemsLocked() []domain.LayoutItem {
	items := make([]domain.LayoutItem, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, s.view(*s.records[id].item))
	}
	return items
}

func (s *Store) view(it domain.LayoutItem) domain.LayoutItem {
	return layout.Clamp(it, s.columns)
}

func (s *Store) entriesLocked() []domain.Entry {
	recs := make([]*record, 0, len(s.records))
	ids := make(map[*record]string, len(s.records))
	for id, r := range s.records {
		if r.content != nil {
			recs = append(recs, r)
			ids[r] = id
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	entries := make([]domain.Entry, len(recs))
	for i, r := range recs {
		entries[i] = domain.Entry{ID: ids[r], Content: r.content}
	}
	return entries
}

// Version counts committed batches that changed something.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Columns returns the active column count reads are clamped to.
func (s *Store) Columns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.columns
}

// Item returns the geometry of id at the active column count.
func (s *Store) Item(id string) (domain.LayoutItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.item == nil {
		return domain.LayoutItem{}, false
	}
	return s.view(*r.item), true
}

// Content returns the content of id.
func (s *Store) Content(id string) (domain.Content, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.content == nil {
		return nil, false
	}
	return r.content, true
}

// Items returns the ordered geometry projection.
func (s *Store) Items() []domain.LayoutItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsLocked()
}

// Entries returns the content projection.
func (s *Store) Entries() []domain.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entriesLocked()
}

// Integrity lists ids present in only one projection.
type Integrity struct {
	ItemsWithoutContent []string
	ContentWithoutItem  []string
}

// OK reports whether both projections cover the same ids.
func (i Integrity) OK() bool {
	return len(i.ItemsWithoutContent) == 0 && len(i.ContentWithoutItem) == 0
}

// Check compares the two projections.
func (s *Store) Check() Integrity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out Integrity
	for _, id := range s.order {
		if s.records[id].content == nil {
			out.ItemsWithoutContent = append(out.ItemsWithoutContent, id)
		}
	}
	for id, r := range s.records {
		if r.item == nil && r.content != nil {
			out.ContentWithoutItem = append(out.ContentWithoutItem, id)
		}
	}
	sort.Strings(out.ContentWithoutItem)
	return out
}

// Orphans returns ids that have had geometry without content for at least grace.
func (s *Store) Orphans(grace time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orphansLocked(grace)
}

func (s *Store) orphansLocked(grace time.Duration) []string {
	cutoff := s.now().Add(-grace)
	var ids []string
	for _, id := range s.order {
		r := s.records[id]
		if r.content == nil && !r.orphanSince.After(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Registry returns the Content Registry view of the store.
func (s *Store) Registry() *Registry { return &Registry{s: s} }

// Layout returns the Layout Array view of the store.
func (s *Store) Layout() *Layout { return &Layout{s: s} }

// Tx is the mutation handle passed to Batch. It is only valid inside the
// callback.
type Tx struct {
	s     *Store
	dirty bool

	saved        bool
	savedRecords map[string]*record
	savedOrder   []string
	savedColumns int
	savedBase    int
	savedSeq     uint64
}

// touch records the pre-batch state the first time the batch mutates.
func (tx *Tx) touch() {
	tx.dirty = true
	if tx.saved {
		return
	}
	tx.saved = true
	tx.savedRecords = make(map[string]*record, len(tx.s.records))
	for id, r := range tx.s.records {
		tx.savedRecords[id] = r.clone()
	}
	tx.savedOrder = append([]string(nil), tx.s.order...)
	tx.savedColumns = tx.s.columns
	tx.savedBase = tx.s.base
	tx.savedSeq = tx.s.seq
}

func (tx *Tx) rollback() {
	if !tx.saved {
		return
	}
	tx.s.records = tx.savedRecords
	tx.s.order = tx.savedOrder
	tx.s.columns = tx.savedColumns
	tx.s.base = tx.savedBase
	tx.s.seq = tx.savedSeq
}

func (tx *Tx) newRecord(id string) *record {
	tx.s.seq++
	r := &record{seq: tx.s.seq}
	tx.s.records[id] = r
	return r
}

func (tx *Tx) dropFromOrder(id string) {
	for i, oid := range tx.s.order {
		if oid == id {
			tx.s.order = append(tx.s.order[:i], tx.s.order[i+1:]...)
			return
		}
	}
}

// Columns returns the column count inside the batch.
func (tx *Tx) Columns() int { return tx.s.columns }

// Item returns the geometry of id inside the batch, at the active column
// count.
func (tx *Tx) Item(id string) (domain.LayoutItem, bool) {
	r, ok := tx.s.records[id]
	if !ok || r.item == nil {
		return domain.LayoutItem{}, false
	}
	return tx.s.view(*r.item), true
}

// Content returns the content of id inside the batch.
func (tx *Tx) Content(id string) (domain.Content, bool) {
	r, ok := tx.s.records[id]
	if !ok || r.content == nil {
		return nil, false
	}
	return r.content, true
}

// Items returns the ordered geometry inside the batch.
func (tx *Tx) Items() []domain.LayoutItem { return tx.s.itemsLocked() }

// Orphans returns ids that have had geometry without content for at least grace.
func (tx *Tx) Orphans(grace time.Duration) []string { return tx.s.orphansLocked(grace) }

// SetContent inserts or replaces the content of id, normalized. It does not
// require the id to have geometry.
func (tx *Tx) SetContent(id string, c domain.Content) {
	if c == nil {
		tx.RemoveContent(id)
		return
	}
	c = domain.Normalize(c)
	r, ok := tx.s.records[id]
	if ok && r.content == c {
		return
	}
	tx.touch()
	if !ok {
		r = tx.newRecord(id)
	}
	r.content = c
	r.orphanSince = time.Time{}
}

// RemoveContent drops the content of id. Missing ids are a no-op.
func (tx *Tx) RemoveContent(id string) {
	r, ok := tx.s.records[id]
	if !ok || r.content == nil {
		return
	}
	tx.touch()
	r.content = nil
	if r.item == nil {
		delete(tx.s.records, id)
		return
	}
	r.orphanSince = tx.s.now()
}

// ClearContent drops every content entry.
func (tx *Tx) ClearContent() {
	ids := make([]string, 0, len(tx.s.records))
	for id, r := range tx.s.records {
		if r.content != nil {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		tx.RemoveContent(id)
	}
}

// AddItem appends geometry for item, generating an id when it is empty. A new
// item is clamped to the active columns. An id that already has geometry gets
// its x, y, w and h overwritten instead.
func (tx *Tx) AddItem(item domain.LayoutItem) domain.LayoutItem {
	if item.ID == "" {
		item.ID = tx.s.newID()
	}
	if r, ok := tx.s.records[item.ID]; ok && r.item != nil {
		patch := domain.GeometryPatch{X: &item.X, Y: &item.Y, W: &item.W, H: &item.H}
		_ = tx.UpdateGeometry(item.ID, patch)
		return tx.s.view(*tx.s.records[item.ID].item)
	}
	return tx.place(tx.s.view(item))
}

// place appends item as stored geometry.
func (tx *Tx) place(item domain.LayoutItem) domain.LayoutItem {
	item = layout.Clamp(item, tx.s.base)
	tx.touch()
	r, ok := tx.s.records[item.ID]
	if !ok {
		r = tx.newRecord(item.ID)
	}
	it := item
	r.item = &it
	if r.content == nil {
		r.orphanSince = tx.s.now()
	}
	tx.s.order = append(tx.s.order, item.ID)
	return tx.s.view(item)
}

// UpdateGeometry applies a partial geometry update to id. The patch is read
// in active columns.
func (tx *Tx) UpdateGeometry(id string, patch domain.GeometryPatch) error {
	r, ok := tx.s.records[id]
	if !ok || r.item == nil {
		return ErrNotFound
	}
	seen := tx.s.view(*r.item)
	next := tx.settle(*r.item, seen, tx.s.view(patch.Apply(seen)))
	if next == *r.item {
		return nil
	}
	tx.touch()
	*tx.s.records[id].item = next
	return nil
}

// RemoveItem drops both geometry and content of id. Missing ids are a no-op.
func (tx *Tx) RemoveItem(id string) {
	if _, ok := tx.s.records[id]; !ok {
		return
	}
	tx.touch()
	delete(tx.s.records, id)
	tx.dropFromOrder(id)
}

// settle folds an edit made at the active column count back into stored
// geometry. Fields the edit left alone keep their stored value so a cell
// squeezed by a narrow tier springs back when the grid widens. When that
// would not reproduce what the user sees, the visible geometry wins.
func (tx *Tx) settle(stored, before, after domain.LayoutItem) domain.LayoutItem {
	next := stored
	if after.X != before.X {
		next.X = after.X
	}
	if after.Y != before.Y {
		next.Y = after.Y
	}
	if after.W != before.W {
		next.W = after.W
	}
	if after.H != before.H {
		next.H = after.H
	}
	next = layout.Clamp(next, tx.s.base)
	if tx.s.view(next) != after {
		next = layout.Clamp(after, tx.s.base)
	}
	return next
}

// ReplaceLayout applies a layout recomputed by the grid primitive, in active
// columns. Entries whose id has no content are rejected and counted; the
// first occurrence of a duplicated id wins; cells missing from items keep
// their geometry and are appended in their previous order.
func (tx *Tx) ReplaceLayout(items []domain.LayoutItem) int {
	rejected := 0
	seen := make(map[string]bool, len(items))
	next := make([]domain.LayoutItem, 0, len(tx.s.order))

	for _, in := range items {
		if seen[in.ID] {
			tx.s.logger.Warn("data integrity: duplicate id in settled layout", zap.String("id", in.ID))
			continue
		}
		r, ok := tx.s.records[in.ID]
		if !ok || r.content == nil {
			rejected++
			tx.s.logger.Warn("data integrity: settled layout entry has no content, ignored", zap.String("id", in.ID))
			continue
		}
		seen[in.ID] = true
		it := tx.s.view(in)
		if r.item != nil {
			// Flags belong to the engine, not the grid primitive.
			it.IsDraggable = r.item.IsDraggable
			it.IsResizable = r.item.IsResizable
			it.Static = r.item.Static
			it = tx.settle(*r.item, tx.s.view(*r.item), it)
		}
		next = append(next, it)
	}
	for _, id := range tx.s.order {
		if !seen[id] {
			seen[id] = true
			next = append(next, *tx.s.records[id].item)
		}
	}

	if sameLayout(tx.s.storedLocked(), next) {
		return rejected
	}
	tx.touch()
	order := make([]string, 0, len(next))
	for _, it := range next {
		r := tx.s.records[it.ID]
		wasPlaced := r.item != nil
		item := it
		r.item = &item
		if !wasPlaced && r.content == nil {
			r.orphanSince = tx.s.now()
		}
		order = append(order, it.ID)
	}
	tx.s.order = order
	return rejected
}

// Reflow switches the active column count. Stored geometry is untouched;
// reads clamp to the new count. Overlap in the narrow view is left for the
// grid primitive to resolve.
func (tx *Tx) Reflow(columns int) {
	if columns == tx.s.columns {
		return
	}
	tx.touch()
	tx.s.columns = columns
	if columns > tx.s.base {
		tx.s.base = columns
	}
}

// Reset removes every record.
func (tx *Tx) Reset() {
	if len(tx.s.records) == 0 {
		return
	}
	tx.touch()
	tx.s.records = make(map[string]*record)
	tx.s.order = nil
}

// Load replaces the whole board with layout and entries, as read from
// durable storage. Geometry is taken as stored, whatever the active columns.
func (tx *Tx) Load(items []domain.LayoutItem, entries []domain.Entry) {
	tx.Reset()
	for _, e := range entries {
		tx.SetContent(e.ID, e.Content)
	}
	for _, it := range items {
		if _, dup := tx.Item(it.ID); dup {
			tx.s.logger.Warn("data integrity: duplicate id in stored layout", zap.String("id", it.ID))
			continue
		}
		if it.ID == "" {
			it.ID = tx.s.newID()
		}
		tx.place(it)
	}
}

// DropDetachedContent removes content entries that have no geometry and
// returns their ids.
func (tx *Tx) DropDetachedContent() []string {
	var ids []string
	for id, r := range tx.s.records {
		if r.item == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		tx.s.logger.Warn("data integrity: content without layout item reclaimed", zap.String("id", id))
		tx.RemoveContent(id)
	}
	return ids
}

func sameLayout(a, b []domain.LayoutItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
