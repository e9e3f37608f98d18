package render

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"bento/internal/domain"
)

// ErrInvalidTransition is returned when an interaction is not allowed from
// the cell's current state.
var ErrInvalidTransition = errors.New("invalid cell transition")

// State is the interaction state of one cell.
type State string

const (
	StateIdle     State = "idle"
	StateHovered  State = "hovered"
	StateDragging State = "dragging"
	StateResizing State = "resizing"
	StateMenuOpen State = "menu-open"
)

// Board is the read side the surface renders from.
type Board interface {
	Items() []domain.LayoutItem
	Content(id string) (domain.Content, bool)
	Breakpoint() domain.BreakpointState
}

// Editor is the board plus the mutations a pointer can trigger.
type Editor interface {
	Board
	ApplyLayoutChange(ctx context.Context, items []domain.LayoutItem) int
	ApplyPreset(ctx context.Context, id string, category domain.PresetCategory) (domain.LayoutItem, error)
	DeleteCell(ctx context.Context, id string) error
}

// GridView is the whole grid as drawn.
type GridView struct {
	Breakpoint domain.Breakpoint `json:"breakpoint"`
	Columns    int               `json:"columns"`
	Cells      []CellView        `json:"cells"`
}

// Surface holds per-cell interaction state. All pointer events go through
// it, and it is the only path from the grid to the board.
type Surface struct {
	editor Editor
	logger *zap.Logger

	mu     sync.Mutex
	states map[string]State
}

// NewSurface creates a surface over editor.
func NewSurface(editor Editor, logger *zap.Logger) *Surface {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Surface{
		editor: editor,
		logger: logger.Named("surface"),
		states: make(map[string]State),
	}
}

// State returns the state of id; unknown cells are idle.
func (s *Surface) State(id string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(id)
}

func (s *Surface) stateLocked(id string) State {
	if st, ok := s.states[id]; ok {
		return st
	}
	return StateIdle
}

func (s *Surface) setLocked(id string, st State) {
	if st == StateIdle {
		delete(s.states, id)
		return
	}
	s.states[id] = st
}

func (s *Surface) item(id string) (domain.LayoutItem, error) {
	for _, it := range s.editor.Items() {
		if it.ID == id {
			return it, nil
		}
	}
	return domain.LayoutItem{}, fmt.Errorf("cell %s: not on the grid", id)
}

// move changes id from one of from to next.
func (s *Surface) move(id string, next State, from ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.stateLocked(id)
	for _, f := range from {
		if cur == f {
			s.setLocked(id, next)
			return nil
		}
	}
	return fmt.Errorf("%s %s -> %s: %w", id, cur, next, ErrInvalidTransition)
}

// HoverEnter marks id as hovered. Re-entering a cell that is already past
// idle keeps its state.
func (s *Surface) HoverEnter(id string) error {
	if _, err := s.item(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateLocked(id) == StateIdle {
		s.setLocked(id, StateHovered)
	}
	return nil
}

// HoverLeave returns a hovered cell to idle. An open menu or a gesture in
// progress outlives the pointer leaving.
func (s *Surface) HoverLeave(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateLocked(id) == StateHovered {
		s.setLocked(id, StateIdle)
	}
}

// BeginDrag starts a drag on a hovered, draggable cell.
func (s *Surface) BeginDrag(id string) error {
	it, err := s.item(id)
	if err != nil {
		return err
	}
	if !it.IsDraggable || it.Static {
		return fmt.Errorf("drag %s: not draggable: %w", id, ErrInvalidTransition)
	}
	return s.move(id, StateDragging, StateHovered)
}

// BeginResize starts a resize on a hovered, resizable cell.
func (s *Surface) BeginResize(id string) error {
	it, err := s.item(id)
	if err != nil {
		return err
	}
	if !it.IsResizable || it.Static {
		return fmt.Errorf("resize %s: not resizable: %w", id, ErrInvalidTransition)
	}
	return s.move(id, StateResizing, StateHovered)
}

// OpenMenu opens the size menu of a hovered cell.
func (s *Surface) OpenMenu(id string) error {
	it, err := s.item(id)
	if err != nil {
		return err
	}
	if it.Static {
		return fmt.Errorf("menu %s: static cell: %w", id, ErrInvalidTransition)
	}
	return s.move(id, StateMenuOpen, StateHovered)
}

// CloseMenu closes the size menu.
func (s *Surface) CloseMenu(id string) error {
	return s.move(id, StateIdle, StateMenuOpen)
}

// Settle applies the layout the grid primitive emitted after a drag or
// resize and returns every dragging or resizing cell to idle. It returns the
// number of entries the board ignored.
func (s *Surface) Settle(ctx context.Context, items []domain.LayoutItem) int {
	rejected := s.editor.ApplyLayoutChange(ctx, items)

	s.mu.Lock()
	for id, st := range s.states {
		if st == StateDragging || st == StateResizing {
			delete(s.states, id)
		}
	}
	s.mu.Unlock()
	return rejected
}

// SelectPreset resizes id to category on the current breakpoint. Picking
// from the menu closes it.
func (s *Surface) SelectPreset(ctx context.Context, id string, category domain.PresetCategory) (domain.LayoutItem, error) {
	if err := s.checkControls(id); err != nil {
		return domain.LayoutItem{}, fmt.Errorf("select preset: %w", err)
	}
	item, err := s.editor.ApplyPreset(ctx, id, category)
	if err != nil {
		return domain.LayoutItem{}, err
	}
	s.mu.Lock()
	if s.stateLocked(id) == StateMenuOpen {
		s.setLocked(id, StateIdle)
	}
	s.mu.Unlock()
	return item, nil
}

// Delete removes id through its delete control.
func (s *Surface) Delete(ctx context.Context, id string) error {
	if err := s.checkControls(id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if err := s.editor.DeleteCell(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.states, id)
	s.mu.Unlock()
	s.logger.Debug("cell deleted from grid", zap.String("id", id))
	return nil
}

// checkControls reports whether the hover controls of id are showing.
func (s *Surface) checkControls(id string) error {
	it, err := s.item(id)
	if err != nil {
		return err
	}
	st := s.State(id)
	if !showControls(it, st) {
		return fmt.Errorf("%s has no controls in state %s: %w", id, st, ErrInvalidTransition)
	}
	return nil
}

// View renders the grid. States of cells that left the board are dropped.
func (s *Surface) View() GridView {
	items := s.editor.Items()
	bp := s.editor.Breakpoint()

	s.mu.Lock()
	present := make(map[string]bool, len(items))
	for _, it := range items {
		present[it.ID] = true
	}
	states := make(map[string]State, len(s.states))
	for id, st := range s.states {
		if !present[id] {
			delete(s.states, id)
			continue
		}
		states[id] = st
	}
	s.mu.Unlock()

	return GridView{
		Breakpoint: bp.Name,
		Columns:    bp.Columns,
		Cells:      Cells(items, s.editor.Content, states, bp),
	}
}
