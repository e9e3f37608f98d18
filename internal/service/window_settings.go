package service

import (
	"context"
	"encoding/json"
	"fmt"

	"bento/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Window Size Persistence
// ─────────────────────────────────────────────────────────────
//
// Saves and restores the main Wails window size between sessions.
// Stored next to the board in the key-value backend under "window".

// StorageKeyWindow holds the saved WindowSize as JSON.
const StorageKeyWindow = "window"

// WindowSize holds the saved window dimensions.
type WindowSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// WindowSettingsService persists window size between sessions.
type WindowSettingsService struct {
	kv domain.KeyValueStore
}

// NewWindowSettingsService creates a WindowSettingsService.
func NewWindowSettingsService(kv domain.KeyValueStore) *WindowSettingsService {
	return &WindowSettingsService{kv: kv}
}

const (
	defaultWindowWidth  = 1280
	defaultWindowHeight = 860
	minWindowWidth      = 360
	minWindowHeight     = 480
)

// LoadWindowSize returns the saved window dimensions, or sensible defaults.
func (s *WindowSettingsService) LoadWindowSize(ctx context.Context) WindowSize {
	size := WindowSize{Width: defaultWindowWidth, Height: defaultWindowHeight}
	if s.kv == nil {
		return size
	}
	raw, ok, err := s.kv.Get(ctx, StorageKeyWindow)
	if err != nil || !ok {
		return size
	}
	var saved WindowSize
	if json.Unmarshal(raw, &saved) != nil {
		return size
	}
	if saved.Width >= minWindowWidth {
		size.Width = saved.Width
	}
	if saved.Height >= minWindowHeight {
		size.Height = saved.Height
	}
	return size
}

// SaveWindowSize persists the current window dimensions.
func (s *WindowSettingsService) SaveWindowSize(ctx context.Context, width, height int) error {
	if s.kv == nil {
		return fmt.Errorf("window settings: no storage")
	}
	raw, err := json.Marshal(WindowSize{Width: width, Height: height})
	if err != nil {
		return fmt.Errorf("encode window size: %w", err)
	}
	if err := s.kv.Put(ctx, StorageKeyWindow, raw); err != nil {
		return fmt.Errorf("save window size: %w", err)
	}
	return nil
}
