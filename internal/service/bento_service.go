package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"bento/internal/board"
	"bento/internal/domain"
	"bento/internal/layout"
	"bento/internal/metadata"
	"bento/internal/persist"
	"bento/internal/upload"
)

// ─────────────────────────────────────────────────────────────
// Bento Service: orchestrates the board for every adapter
// ─────────────────────────────────────────────────────────────

// ErrWrongContent is returned when an edit targets a cell of another kind.
var ErrWrongContent = errors.New("cell holds different content")

// ErrInvalidURL is returned for link URLs that cannot be shown as a card.
var ErrInvalidURL = errors.New("invalid link url")

// GridState is the full board as the frontend sees it.
type GridState struct {
	Version    uint64                 `json:"version"`
	Breakpoint domain.BreakpointState `json:"breakpoint"`
	Layout     []domain.LayoutItem    `json:"layout"`
	Entries    []domain.Entry         `json:"entries"`
}

// BentoService adds, edits and removes cells, applies presets and settled
// layouts, follows the breakpoint and drives link metadata fetches.
type BentoService struct {
	store    *board.Store
	resolver *layout.Resolver
	fetcher  metadata.Fetcher
	uploader upload.Uploader
	emitter  EventEmitter
	logger   *zap.Logger

	fetches fetchGuard
	// baseCtx outlives individual requests so a fetch started by a short MCP
	// call still completes.
	baseCtx   context.Context
	cancelAll context.CancelFunc
	unsub     func()
}

// NewBentoService wires a service around store. The store is reflowed to the
// resolver's current column count.
func NewBentoService(
	store *board.Store,
	resolver *layout.Resolver,
	fetcher metadata.Fetcher,
	uploader upload.Uploader,
	emitter EventEmitter,
	logger *zap.Logger,
) *BentoService {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &BentoService{
		store:     store,
		resolver:  resolver,
		fetcher:   fetcher,
		uploader:  uploader,
		emitter:   emitter,
		logger:    logger.Named("bento"),
		baseCtx:   ctx,
		cancelAll: cancel,
	}

	store.Layout().Reflow(resolver.Current().Columns)
	resolver.OnChange(s.onBreakpointChange)
	s.unsub = store.Subscribe(func(snap board.Snapshot) {
		s.emitter.Emit(s.baseCtx, EventBoard, s.stateOf(snap))
	})
	return s
}

// Close cancels running link fetches and waits for them to return.
func (s *BentoService) Close(ctx context.Context) {
	s.unsub()
	s.fetches.CancelAll()
	s.cancelAll()
	s.fetches.WaitAll(ctx)
}

// Store returns the board the service edits.
func (s *BentoService) Store() *board.Store {
	return s.store
}

// ── Reads ──────────────────────────────────────────────────

// Items returns the ordered geometry.
func (s *BentoService) Items() []domain.LayoutItem {
	return s.store.Items()
}

// Content returns the content of id.
func (s *BentoService) Content(id string) (domain.Content, bool) {
	return s.store.Content(id)
}

// Breakpoint returns the active breakpoint.
func (s *BentoService) Breakpoint() domain.BreakpointState {
	return s.resolver.Current()
}

// GridState returns the whole board.
func (s *BentoService) GridState() GridState {
	return s.stateOf(s.store.Snapshot())
}

func (s *BentoService) stateOf(snap board.Snapshot) GridState {
	return GridState{
		Version:    snap.Version,
		Breakpoint: s.resolver.Current(),
		Layout:     snap.View(),
		Entries:    snap.Entries,
	}
}

// ── Adding cells ───────────────────────────────────────────

// addCell places a new cell in the first free slot and sets its content in
// the same batch, geometry first.
func (s *BentoService) addCell(c domain.Content) (domain.LayoutItem, error) {
	var item domain.LayoutItem
	err := s.store.Batch(func(tx *board.Tx) error {
		size := layout.DefaultCellSize
		x, y := layout.NextSlot(tx.Items(), size.W, size.H, tx.Columns())
		item = tx.AddItem(domain.LayoutItem{
			X: x, Y: y, W: size.W, H: size.H,
			IsDraggable: true,
			IsResizable: true,
		})
		tx.SetContent(item.ID, c)
		return nil
	})
	if err != nil {
		return domain.LayoutItem{}, fmt.Errorf("add %s cell: %w", c.Type(), err)
	}
	s.logger.Debug("cell added", zap.String("id", item.ID), zap.String("type", string(c.Type())))
	return item, nil
}

// AddTextCell adds a text cell.
func (s *BentoService) AddTextCell(ctx context.Context, text string) (domain.LayoutItem, error) {
	return s.addCell(domain.TextContent{Text: text})
}

// AddImageCell adds an image cell showing imageURL.
func (s *BentoService) AddImageCell(ctx context.Context, imageURL string) (domain.LayoutItem, error) {
	if strings.TrimSpace(imageURL) == "" {
		return domain.LayoutItem{}, fmt.Errorf("add image cell: empty url")
	}
	return s.addCell(domain.ImageContent{URL: imageURL})
}

// UploadImageCell stores r through the uploader and adds an image cell for it.
func (s *BentoService) UploadImageCell(ctx context.Context, name string, r io.Reader) (domain.LayoutItem, error) {
	if s.uploader == nil {
		return domain.LayoutItem{}, fmt.Errorf("upload image: no uploader configured")
	}
	u, err := s.uploader.Upload(ctx, name, r)
	if err != nil {
		s.notify(ctx, NoticeError, "", fmt.Sprintf("Image upload failed: %v", err))
		return domain.LayoutItem{}, fmt.Errorf("upload image: %w", err)
	}
	return s.addCell(domain.ImageContent{URL: u})
}

// AddImageDataURL decodes a data: URL dropped on the dock and uploads it.
func (s *BentoService) AddImageDataURL(ctx context.Context, dataURL string) (domain.LayoutItem, error) {
	r, ext, err := upload.DecodeDataURL(dataURL)
	if err != nil {
		return domain.LayoutItem{}, fmt.Errorf("add image cell: %w", err)
	}
	return s.UploadImageCell(ctx, "image"+ext, r)
}

// AddLinkCell adds a link cell in the pending state and fetches its metadata
// in the background.
func (s *BentoService) AddLinkCell(ctx context.Context, rawURL string) (domain.LayoutItem, error) {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return domain.LayoutItem{}, fmt.Errorf("add link cell: %w", err)
	}
	item, err := s.addCell(domain.LinkContent{URL: u, Meta: domain.MetaPending})
	if err != nil {
		return domain.LayoutItem{}, err
	}
	s.fetchLink(item.ID, u)
	return item, nil
}

// NormalizeURL trims rawURL, defaults the scheme to https and rejects
// anything that is not an http(s) URL with a host.
func NormalizeURL(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", ErrInvalidURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	return u.String(), nil
}

// ── Link metadata ──────────────────────────────────────────

func (s *BentoService) fetchLink(cellID, linkURL string) {
	if s.fetcher == nil {
		s.finishLink(cellID, linkURL, metadata.Metadata{}, errors.New("no metadata fetcher"))
		return
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	tok := s.fetches.Begin(cellID, cancel)
	go func() {
		defer s.fetches.End(cellID, tok)
		md, err := s.fetcher.Fetch(ctx, linkURL)
		if ctx.Err() != nil {
			s.logger.Debug("link fetch discarded", zap.String("id", cellID))
			return
		}
		s.finishLink(cellID, linkURL, md, err)
	}()
}

// finishLink writes the fetch outcome, unless the cell was deleted or its
// URL changed while the fetch ran.
func (s *BentoService) finishLink(cellID, linkURL string, md metadata.Metadata, fetchErr error) {
	applied := false
	_ = s.store.Batch(func(tx *board.Tx) error {
		c, ok := tx.Content(cellID)
		if !ok {
			return nil
		}
		link, isLink := c.(domain.LinkContent)
		if !isLink || link.URL != linkURL {
			return nil
		}
		if fetchErr != nil {
			link.Meta = domain.MetaFailed
		} else {
			link.Title = md.Title
			link.Description = md.Description
			link.Image = md.Image
			link.Meta = domain.MetaReady
		}
		tx.SetContent(cellID, link)
		applied = true
		return nil
	})
	if !applied {
		s.logger.Debug("link fetch result dropped, cell gone or changed", zap.String("id", cellID))
		return
	}

	if fetchErr != nil {
		s.logger.Warn("link metadata unavailable", zap.String("id", cellID), zap.String("url", linkURL), zap.Error(fetchErr))
		s.notify(s.baseCtx, NoticeWarn, cellID, fmt.Sprintf("Could not load a preview for %s", linkURL))
	}
	s.emitter.Emit(s.baseCtx, EventLinkResolved, LinkResolved{CellID: cellID, URL: linkURL, OK: fetchErr == nil})
}

// ResumePendingLinks restarts fetches for link cells left pending, e.g. by a
// restart mid-fetch. It returns how many were started.
func (s *BentoService) ResumePendingLinks(ctx context.Context) int {
	n := 0
	for _, e := range s.store.Entries() {
		link, ok := e.Content.(domain.LinkContent)
		if !ok || link.Meta != domain.MetaPending || s.fetches.Running(e.ID) {
			continue
		}
		s.fetchLink(e.ID, link.URL)
		n++
	}
	if n > 0 {
		s.logger.Info("resumed pending link fetches", zap.Int("count", n))
	}
	return n
}

// WaitFetches blocks until every running link fetch has returned.
func (s *BentoService) WaitFetches(ctx context.Context) {
	s.fetches.WaitAll(ctx)
}

// ── Editing cells ──────────────────────────────────────────

// DeleteCell removes id and cancels its link fetch. Deleting a missing cell
// is a no-op.
func (s *BentoService) DeleteCell(ctx context.Context, id string) error {
	s.fetches.Cancel(id)
	s.store.Layout().RemoveItem(id)
	s.logger.Debug("cell deleted", zap.String("id", id))
	return nil
}

// ApplyPreset resizes id to category on the active breakpoint.
func (s *BentoService) ApplyPreset(ctx context.Context, id string, category domain.PresetCategory) (domain.LayoutItem, error) {
	bp := s.resolver.Current()
	size, err := layout.ResolvePreset(bp.Name, category)
	if err != nil {
		return domain.LayoutItem{}, err
	}
	if err := s.store.Layout().UpdateGeometry(id, domain.SizePatch(size.W, size.H)); err != nil {
		return domain.LayoutItem{}, fmt.Errorf("apply preset %s to %s: %w", category, id, err)
	}
	item, _ := s.store.Item(id)
	return item, nil
}

// MoveCell sets the position of id.
func (s *BentoService) MoveCell(ctx context.Context, id string, x, y int) (domain.LayoutItem, error) {
	if err := s.store.Layout().UpdateGeometry(id, domain.MovePatch(x, y)); err != nil {
		return domain.LayoutItem{}, fmt.Errorf("move %s: %w", id, err)
	}
	item, _ := s.store.Item(id)
	return item, nil
}

// ApplyLayoutChange stores the layout the grid emitted after a drag or
// resize settled and returns how many entries were ignored.
func (s *BentoService) ApplyLayoutChange(ctx context.Context, items []domain.LayoutItem) int {
	rejected := s.store.Layout().ReorderOnLayoutChange(items)
	if rejected > 0 {
		s.logger.Warn("settled layout had entries without content", zap.Int("rejected", rejected))
	}
	return rejected
}

// UpdateText replaces the text of a text cell.
func (s *BentoService) UpdateText(ctx context.Context, id, text string) error {
	return s.store.Batch(func(tx *board.Tx) error {
		c, ok := tx.Content(id)
		if !ok {
			return fmt.Errorf("update text %s: %w", id, board.ErrNotFound)
		}
		if _, isText := c.(domain.TextContent); !isText {
			return fmt.Errorf("update text %s: %w", id, ErrWrongContent)
		}
		tx.SetContent(id, domain.TextContent{Text: text})
		return nil
	})
}

// UpdateLinkURL points a link cell at a new URL and refetches its metadata.
func (s *BentoService) UpdateLinkURL(ctx context.Context, id, rawURL string) error {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return fmt.Errorf("update link %s: %w", id, err)
	}
	err = s.store.Batch(func(tx *board.Tx) error {
		c, ok := tx.Content(id)
		if !ok {
			return fmt.Errorf("update link %s: %w", id, board.ErrNotFound)
		}
		if _, isLink := c.(domain.LinkContent); !isLink {
			return fmt.Errorf("update link %s: %w", id, ErrWrongContent)
		}
		tx.SetContent(id, domain.LinkContent{URL: u, Meta: domain.MetaPending})
		return nil
	})
	if err != nil {
		return err
	}
	s.fetchLink(id, u)
	return nil
}

// Reset replaces the board with the default seed in one batch.
func (s *BentoService) Reset(ctx context.Context) {
	s.fetches.CancelAll()
	items, entries := persist.DefaultSeed()
	_ = s.store.Batch(func(tx *board.Tx) error {
		tx.Load(items, entries)
		return nil
	})
	s.logger.Info("board reset")
	s.ResumePendingLinks(ctx)
}

// ── Breakpoints ────────────────────────────────────────────

// SetContainerWidth records the grid container width. A tier change switches
// the board to the tier's column count; stored geometry keeps the widest
// tier's coordinates, so narrowing and widening again restores every cell.
func (s *BentoService) SetContainerWidth(ctx context.Context, width int) domain.BreakpointState {
	bp, _ := s.resolver.SetWidth(width)
	return bp
}

func (s *BentoService) onBreakpointChange(prev, next domain.BreakpointState) {
	s.logger.Info("breakpoint changed",
		zap.String("from", string(prev.Name)),
		zap.String("to", string(next.Name)),
		zap.Int("columns", next.Columns))
	s.store.Layout().Reflow(next.Columns)
	s.emitter.Emit(s.baseCtx, EventBreakpoint, next)
}

func (s *BentoService) notify(ctx context.Context, level, cellID, msg string) {
	s.emitter.Emit(ctx, EventNotice, Notice{Level: level, Message: msg, CellID: cellID, Dismissible: true})
}

// NotifyStorageError surfaces a failed background write.
func (s *BentoService) NotifyStorageError(err error) {
	s.logger.Error("storage error", zap.Error(err))
	s.notify(s.baseCtx, NoticeError, "", fmt.Sprintf("Changes could not be saved: %v", err))
}
