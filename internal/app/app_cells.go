package app

import (
	"fmt"
	"os"
	"path/filepath"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"bento/internal/domain"
	"bento/internal/service"
)

// ============================================================
// Board
// ============================================================

// GetBoard returns the full board: layout, content and breakpoint.
func (a *App) GetBoard() service.GridState {
	return a.core.svc.GridState()
}

// AddTextCell adds a text cell at the first free slot.
func (a *App) AddTextCell(text string) (domain.LayoutItem, error) {
	return a.core.svc.AddTextCell(a.ctx, text)
}

// AddLinkCell adds a link card and starts fetching its preview.
func (a *App) AddLinkCell(url string) (domain.LayoutItem, error) {
	return a.core.svc.AddLinkCell(a.ctx, url)
}

// AddImageCell adds an image cell pointing at url.
func (a *App) AddImageCell(url string) (domain.LayoutItem, error) {
	return a.core.svc.AddImageCell(a.ctx, url)
}

// AddImageDataURL stores a pasted or dropped image and adds a cell for it.
func (a *App) AddImageDataURL(dataURL string) (domain.LayoutItem, error) {
	return a.core.svc.AddImageDataURL(a.ctx, dataURL)
}

// PickImageFile opens a native file picker and adds the chosen image.
// Cancelling the dialog returns an empty item and no error.
func (a *App) PickImageFile() (domain.LayoutItem, error) {
	path, err := wailsRuntime.OpenFileDialog(a.ctx, wailsRuntime.OpenDialogOptions{
		Title: "Select Image",
		Filters: []wailsRuntime.FileFilter{
			{DisplayName: "Images", Pattern: "*.png;*.jpg;*.jpeg;*.gif;*.webp;*.svg"},
		},
	})
	if err != nil || path == "" {
		return domain.LayoutItem{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return domain.LayoutItem{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return a.core.svc.UploadImageCell(a.ctx, filepath.Base(path), f)
}

// UpdateText replaces the body of a text cell.
func (a *App) UpdateText(cellID, text string) error {
	return a.core.svc.UpdateText(a.ctx, cellID, text)
}

// UpdateLinkURL points a link cell at a new URL and refetches its preview.
func (a *App) UpdateLinkURL(cellID, url string) error {
	return a.core.svc.UpdateLinkURL(a.ctx, cellID, url)
}

// ResetBoard replaces the board with the default cells.
func (a *App) ResetBoard() {
	a.core.svc.Reset(a.ctx)
}
