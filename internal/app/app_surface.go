package app

import (
	"bento/internal/domain"
	"bento/internal/layout"
	"bento/internal/render"
)

// ============================================================
// Grid surface (pointer interactions)
// ============================================================

// GetGrid returns the rendered grid with per-cell state and controls.
func (a *App) GetGrid() render.GridView {
	return a.surface.View()
}

func (a *App) HoverEnter(cellID string) error {
	return a.surface.HoverEnter(cellID)
}

func (a *App) HoverLeave(cellID string) {
	a.surface.HoverLeave(cellID)
}

func (a *App) BeginDrag(cellID string) error {
	return a.surface.BeginDrag(cellID)
}

func (a *App) BeginResize(cellID string) error {
	return a.surface.BeginResize(cellID)
}

func (a *App) OpenMenu(cellID string) error {
	return a.surface.OpenMenu(cellID)
}

func (a *App) CloseMenu(cellID string) error {
	return a.surface.CloseMenu(cellID)
}

// SettleLayout commits the layout the grid settled on after a drag or
// resize. Returns how many entries were ignored because the board has no
// such cell.
func (a *App) SettleLayout(items []domain.LayoutItem) int {
	return a.surface.Settle(a.ctx, items)
}

// SelectPreset resizes a cell from its size menu.
func (a *App) SelectPreset(cellID, preset string) (domain.LayoutItem, error) {
	cat, err := layout.ParseCategory(preset)
	if err != nil {
		return domain.LayoutItem{}, err
	}
	return a.surface.SelectPreset(a.ctx, cellID, cat)
}

// DeleteCell removes a cell through its hover controls.
func (a *App) DeleteCell(cellID string) error {
	return a.surface.Delete(a.ctx, cellID)
}

// SetContainerWidth reports the grid container width. Crossing a breakpoint
// reflows the board.
func (a *App) SetContainerWidth(width int) domain.BreakpointState {
	return a.core.svc.SetContainerWidth(a.ctx, width)
}
