package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bento/internal/board"
	"bento/internal/domain"
	"bento/internal/layout"
	"bento/internal/metadata"
	"bento/internal/persist"
	"bento/internal/service"
	"bento/internal/storage"
	"bento/internal/upload"
)

// ─────────────────────────────────────────────────────────────
// fixtures
// ─────────────────────────────────────────────────────────────

// gatedFetcher blocks every fetch until its URL is released.
type gatedFetcher struct {
	mu      sync.Mutex
	results map[string]metadata.Metadata
	errs    map[string]error
	gates   map[string]chan struct{}
	started chan string
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{
		results: map[string]metadata.Metadata{},
		errs:    map[string]error{},
		gates:   map[string]chan struct{}{},
		started: make(chan string, 16),
	}
}

func (f *gatedFetcher) gate(url string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gates[url]
	if !ok {
		g = make(chan struct{})
		f.gates[url] = g
	}
	return g
}

func (f *gatedFetcher) release(url string) { close(f.gate(url)) }

func (f *gatedFetcher) Fetch(ctx context.Context, url string) (metadata.Metadata, error) {
	g := f.gate(url)
	f.started <- url
	select {
	case <-g:
	case <-ctx.Done():
		return metadata.Metadata{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[url], f.errs[url]
}

func newService(t *testing.T, width int, fetcher metadata.Fetcher, opts ...board.Option) (*service.BentoService, *service.MockEmitter) {
	t.Helper()
	em := &service.MockEmitter{}
	s := board.New(layout.Resolve(width).Columns, opts...)
	svc := service.NewBentoService(s, layout.NewResolver(width), fetcher, upload.NewLocal(t.TempDir()), em, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		svc.Close(ctx)
	})
	return svc, em
}

func linkOf(t *testing.T, svc *service.BentoService, id string) domain.LinkContent {
	t.Helper()
	c, ok := svc.Content(id)
	require.True(t, ok, "cell %s has content", id)
	link, ok := c.(domain.LinkContent)
	require.True(t, ok, "cell %s is a link", id)
	return link
}

// ─────────────────────────────────────────────────────────────
// Adding and deleting
// ─────────────────────────────────────────────────────────────

func TestAddTextCell(t *testing.T) {
	svc, em := newService(t, 1024, nil)
	ctx := context.Background()

	item, err := svc.AddTextCell(ctx, "Hello")
	require.NoError(t, err)

	assert.Equal(t, 1, item.W)
	assert.Equal(t, 2, item.H)
	assert.True(t, item.IsDraggable)
	c, ok := svc.Content(item.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TextContent{Text: "Hello"}, c)
	assert.Len(t, em.Named(service.EventBoard), 1, "one board event per add")
}

func TestAddCell_FillsFreeSlots(t *testing.T) {
	svc, _ := newService(t, 1024, nil)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := svc.AddTextCell(ctx, "x")
		require.NoError(t, err)
	}
	items := svc.Items()
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			a, b := items[i], items[j]
			overlap := a.X < b.X+b.W && b.X < a.X+a.W && a.Y < b.Y+b.H && b.Y < a.Y+a.H
			assert.False(t, overlap, "%s overlaps %s", a.ID, b.ID)
		}
	}
	assert.Equal(t, 0, items[4].X, "fifth cell wraps to the next row")
	assert.Equal(t, 2, items[4].Y)
}

func TestAddThenDeleteImage(t *testing.T) {
	svc, _ := newService(t, 1024, nil)
	ctx := context.Background()

	item, err := svc.AddImageCell(ctx, "https://x/y.png")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteCell(ctx, item.ID))
	require.NoError(t, svc.DeleteCell(ctx, item.ID))

	state := svc.GridState()
	assert.Empty(t, state.Layout)
	assert.Empty(t, state.Entries)
}

func TestAddImageDataURL(t *testing.T) {
	svc, _ := newService(t, 1024, nil)

	item, err := svc.AddImageDataURL(context.Background(), "data:image/png;base64,iVBORw0KGgo=")
	require.NoError(t, err)

	c, _ := svc.Content(item.ID)
	img, ok := c.(domain.ImageContent)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(img.URL, "file://"))
	assert.True(t, strings.HasSuffix(img.URL, ".png"))

	_, err = svc.AddImageDataURL(context.Background(), "data:text/plain;base64,aGk=")
	assert.ErrorIs(t, err, upload.ErrNotImage)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"https://example.com", "https://example.com", true},
		{"  example.com/me ", "https://example.com/me", true},
		{"http://example.com", "http://example.com", true},
		{"", "", false},
		{"ftp://example.com", "", false},
		{"https://", "", false},
	}
	for _, tt := range tests {
		got, err := service.NormalizeURL(tt.in)
		if !tt.ok {
			assert.ErrorIs(t, err, service.ErrInvalidURL, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

// ─────────────────────────────────────────────────────────────
// Link metadata lifecycle
// ─────────────────────────────────────────────────────────────

func TestAddLinkCell_ResolvesInPlace(t *testing.T) {
	f := newGatedFetcher()
	f.results["https://example.com"] = metadata.Metadata{Title: "Example"}
	svc, em := newService(t, 1024, f)
	ctx := context.Background()

	item, err := svc.AddLinkCell(ctx, "https://example.com")
	require.NoError(t, err)
	<-f.started
	assert.Equal(t, domain.MetaPending, linkOf(t, svc, item.ID).Meta)

	f.release("https://example.com")
	svc.WaitFetches(ctx)

	link := linkOf(t, svc, item.ID)
	assert.Equal(t, domain.MetaReady, link.Meta)
	assert.Equal(t, "Example", link.Title)
	assert.Len(t, svc.Items(), 1, "no re-add")
	resolved := em.Named(service.EventLinkResolved)
	require.Len(t, resolved, 1)
	assert.Equal(t, service.LinkResolved{CellID: item.ID, URL: "https://example.com", OK: true}, resolved[0])
}

func TestAddLinkCell_FetchFailureDegrades(t *testing.T) {
	f := newGatedFetcher()
	f.errs["https://down.example"] = errors.New("connection refused")
	svc, em := newService(t, 1024, f)
	ctx := context.Background()

	item, err := svc.AddLinkCell(ctx, "https://down.example")
	require.NoError(t, err)
	<-f.started
	f.release("https://down.example")
	svc.WaitFetches(ctx)

	assert.Equal(t, domain.MetaFailed, linkOf(t, svc, item.ID).Meta)
	notices := em.Named(service.EventNotice)
	require.Len(t, notices, 1)
	assert.Equal(t, service.NoticeWarn, notices[0].(service.Notice).Level)
}

func TestDeleteDuringFetch_DiscardsResult(t *testing.T) {
	f := newGatedFetcher()
	f.results["https://slow.example"] = metadata.Metadata{Title: "Slow"}
	svc, em := newService(t, 1024, f)
	ctx := context.Background()

	item, err := svc.AddLinkCell(ctx, "https://slow.example")
	require.NoError(t, err)
	<-f.started

	require.NoError(t, svc.DeleteCell(ctx, item.ID))
	svc.WaitFetches(ctx)

	_, ok := svc.Content(item.ID)
	assert.False(t, ok, "deleted cell is not resurrected")
	assert.True(t, svc.Store().Check().OK())
	assert.Empty(t, em.Named(service.EventLinkResolved))
}

func TestUpdateLinkURL_Refetches(t *testing.T) {
	f := newGatedFetcher()
	f.results["https://b.example"] = metadata.Metadata{Title: "B"}
	svc, _ := newService(t, 1024, f)
	ctx := context.Background()

	item, err := svc.AddLinkCell(ctx, "https://a.example")
	require.NoError(t, err)
	<-f.started

	require.NoError(t, svc.UpdateLinkURL(ctx, item.ID, "b.example"))
	<-f.started
	f.release("https://b.example")
	svc.WaitFetches(ctx)

	link := linkOf(t, svc, item.ID)
	assert.Equal(t, "https://b.example", link.URL)
	assert.Equal(t, "B", link.Title)
	assert.Equal(t, domain.MetaReady, link.Meta)
}

func TestResumePendingLinks(t *testing.T) {
	f := newGatedFetcher()
	f.results["https://later.example"] = metadata.Metadata{Title: "Later"}
	svc, _ := newService(t, 1024, f)
	ctx := context.Background()

	require.NoError(t, svc.Store().Batch(func(tx *board.Tx) error {
		tx.AddItem(domain.LayoutItem{ID: "p", W: 1, H: 2})
		tx.SetContent("p", domain.LinkContent{URL: "https://later.example", Meta: domain.MetaPending})
		tx.AddItem(domain.LayoutItem{ID: "r", X: 1, W: 1, H: 2})
		tx.SetContent("r", domain.LinkContent{URL: "https://done.example", Meta: domain.MetaReady})
		return nil
	}))

	assert.Equal(t, 1, svc.ResumePendingLinks(ctx))
	<-f.started
	f.release("https://later.example")
	svc.WaitFetches(ctx)

	assert.Equal(t, "Later", linkOf(t, svc, "p").Title)
}

// ─────────────────────────────────────────────────────────────
// Presets, moves and breakpoints
// ─────────────────────────────────────────────────────────────

func TestApplyPreset_LargeSquareOnSM(t *testing.T) {
	svc, _ := newService(t, 1024, nil)
	ctx := context.Background()
	a, _ := svc.AddTextCell(ctx, "a")
	b, _ := svc.AddTextCell(ctx, "b")

	got, err := svc.ApplyPreset(ctx, a.ID, domain.PresetLargeSquare)
	require.NoError(t, err)

	want, _ := layout.ResolvePreset(domain.BreakpointSM, domain.PresetLargeSquare)
	assert.Equal(t, want.W, got.W)
	assert.Equal(t, want.H, got.H)
	other, _ := svc.Store().Item(b.ID)
	assert.Equal(t, b, other, "other cells unaffected")
}

func TestApplyPreset_UsesActiveBreakpoint(t *testing.T) {
	svc, _ := newService(t, 320, nil)
	ctx := context.Background()
	a, _ := svc.AddTextCell(ctx, "a")

	got, err := svc.ApplyPreset(ctx, a.ID, domain.PresetLargeSquare)
	require.NoError(t, err)
	want, _ := layout.ResolvePreset(domain.BreakpointXXS, domain.PresetLargeSquare)
	assert.Equal(t, want.W, got.W)
	assert.Equal(t, want.H, got.H)
}

func TestApplyPreset_Errors(t *testing.T) {
	svc, _ := newService(t, 1024, nil)
	ctx := context.Background()

	_, err := svc.ApplyPreset(ctx, "missing", domain.PresetSmallSquare)
	assert.ErrorIs(t, err, board.ErrNotFound)

	a, _ := svc.AddTextCell(ctx, "a")
	_, err = svc.ApplyPreset(ctx, a.ID, domain.PresetCategory("huge"))
	assert.ErrorIs(t, err, layout.ErrUnknownPreset)
}

func TestMoveCell_Clamps(t *testing.T) {
	svc, _ := newService(t, 1024, nil)
	ctx := context.Background()
	a, _ := svc.AddTextCell(ctx, "a")

	got, err := svc.MoveCell(ctx, a.ID, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, got.X)
	assert.Equal(t, 5, got.Y)
}

func TestSetContainerWidth_ReflowsAndKeepsIDs(t *testing.T) {
	svc, em := newService(t, 1024, nil)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 4; i++ {
		it, _ := svc.AddTextCell(ctx, "x")
		ids = append(ids, it.ID)
	}

	bp := svc.SetContainerWidth(ctx, 400)
	assert.Equal(t, domain.BreakpointXXS, bp.Name)
	assert.Equal(t, 2, svc.Store().Columns())

	var got []string
	for _, it := range svc.Items() {
		got = append(got, it.ID)
		assert.LessOrEqual(t, it.X+it.W, 2)
	}
	assert.ElementsMatch(t, ids, got)
	assert.Len(t, em.Named(service.EventBreakpoint), 1)

	svc.SetContainerWidth(ctx, 410)
	assert.Len(t, em.Named(service.EventBreakpoint), 1, "same tier, no event")
}

func TestSetContainerWidth_NarrowAndBackKeepsGeometry(t *testing.T) {
	svc, em := newService(t, 1024, nil)
	ctx := context.Background()
	kv := storage.NewMemory()
	bridge := persist.New(svc.Store(), kv, persist.WithSeed(func() ([]domain.LayoutItem, []domain.Entry) { return nil, nil }))
	require.NoError(t, bridge.Hydrate(ctx))
	require.NoError(t, bridge.Start(ctx))
	t.Cleanup(func() { _ = bridge.Close() })

	for i := 0; i < 4; i++ {
		_, err := svc.AddTextCell(ctx, "x")
		require.NoError(t, err)
	}
	before := svc.Items()
	require.NoError(t, bridge.Flush(ctx))
	persisted, _, err := kv.Get(ctx, domain.StorageKeyLayout)
	require.NoError(t, err)

	svc.SetContainerWidth(ctx, 400)
	require.NoError(t, bridge.Flush(ctx))
	narrow, _, err := kv.Get(ctx, domain.StorageKeyLayout)
	require.NoError(t, err)
	assert.JSONEq(t, string(persisted), string(narrow), "a tier change does not rewrite stored geometry")

	boards := em.Named(service.EventBoard)
	state, ok := boards[len(boards)-1].(service.GridState)
	require.True(t, ok)
	assert.Equal(t, domain.BreakpointXXS, state.Breakpoint.Name)
	for _, it := range state.Layout {
		assert.LessOrEqual(t, it.X+it.W, 2, "frontend gets the narrow view")
	}

	svc.SetContainerWidth(ctx, 1024)
	assert.Equal(t, before, svc.Items())
}

func TestApplyLayoutChange_IgnoresUnknown(t *testing.T) {
	svc, _ := newService(t, 1024, nil)
	ctx := context.Background()
	a, _ := svc.AddTextCell(ctx, "a")

	moved := a
	moved.X, moved.Y = 2, 4
	rejected := svc.ApplyLayoutChange(ctx, []domain.LayoutItem{moved, {ID: "ghost", W: 1, H: 1}})

	assert.Equal(t, 1, rejected)
	got, _ := svc.Store().Item(a.ID)
	assert.Equal(t, 2, got.X)
	assert.Equal(t, 4, got.Y)
	assert.Len(t, svc.Items(), 1)
}

// ─────────────────────────────────────────────────────────────
// Edits and reset
// ─────────────────────────────────────────────────────────────

func TestUpdateText(t *testing.T) {
	svc, _ := newService(t, 1024, nil)
	ctx := context.Background()
	txt, _ := svc.AddTextCell(ctx, "old")
	img, _ := svc.AddImageCell(ctx, "https://x/y.png")

	require.NoError(t, svc.UpdateText(ctx, txt.ID, "new"))
	c, _ := svc.Content(txt.ID)
	assert.Equal(t, domain.TextContent{Text: "new"}, c)

	assert.ErrorIs(t, svc.UpdateText(ctx, img.ID, "nope"), service.ErrWrongContent)
	assert.ErrorIs(t, svc.UpdateText(ctx, "missing", "nope"), board.ErrNotFound)
}

func TestReset(t *testing.T) {
	svc, _ := newService(t, 1024, nil)
	ctx := context.Background()
	_, _ = svc.AddTextCell(ctx, "gone")

	svc.Reset(ctx)

	var ids []string
	for _, it := range svc.Items() {
		ids = append(ids, it.ID)
	}
	var want []string
	for _, c := range layout.DefaultBoard() {
		want = append(want, c.Item.ID)
	}
	assert.Equal(t, want, ids)
	assert.True(t, svc.Store().Check().OK())
}

func TestNotifyStorageError(t *testing.T) {
	svc, em := newService(t, 1024, nil)
	svc.NotifyStorageError(errors.New("disk full"))

	notices := em.Named(service.EventNotice)
	require.Len(t, notices, 1)
	n := notices[0].(service.Notice)
	assert.Equal(t, service.NoticeError, n.Level)
	assert.True(t, n.Dismissible)
	assert.Contains(t, n.Message, "disk full")
}

// ─────────────────────────────────────────────────────────────
// Orphan sweeper
// ─────────────────────────────────────────────────────────────

func TestOrphanSweeper(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := board.New(4, board.WithClock(func() time.Time { return now }))
	s.Layout().AddItem(domain.LayoutItem{ID: "bare", W: 1, H: 1})
	require.NoError(t, s.Batch(func(tx *board.Tx) error {
		tx.AddItem(domain.LayoutItem{ID: "full", X: 1, W: 1, H: 1})
		tx.SetContent("full", domain.TextContent{Text: "x"})
		return nil
	}))

	sw := service.NewOrphanSweeper(s, 30*time.Second, nil)
	assert.Empty(t, sw.Sweep(), "still within grace")

	now = now.Add(time.Minute)
	assert.Equal(t, []string{"bare"}, sw.Sweep())
	assert.Equal(t, 1, s.Layout().Len())
	assert.True(t, s.Check().OK())
}

func TestOrphanSweeper_Schedule(t *testing.T) {
	sw := service.NewOrphanSweeper(board.New(4), time.Second, nil)
	assert.Error(t, sw.Start("not a schedule"))

	require.NoError(t, sw.Start("@every 1h"))
	assert.Error(t, sw.Start("@every 1h"), "already started")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sw.Stop(ctx)
	sw.Stop(ctx)
}

// ─────────────────────────────────────────────────────────────
// fetchGuard
// ─────────────────────────────────────────────────────────────

func TestFetchGuard_BeginCancelsPrevious(t *testing.T) {
	var g service.ExportedFetchGuard

	ctx1, cancel1 := context.WithCancel(context.Background())
	tok1 := g.Begin("cell", cancel1)
	_, cancel2 := context.WithCancel(context.Background())
	tok2 := g.Begin("cell", cancel2)

	assert.ErrorIs(t, ctx1.Err(), context.Canceled, "second fetch cancels the first")
	assert.True(t, g.Running("cell"))

	g.End("cell", tok1)
	assert.True(t, g.Running("cell"), "stale token does not clear the newer fetch")
	g.End("cell", tok2)
	assert.False(t, g.Running("cell"))
}

func TestFetchGuard_WaitAll(t *testing.T) {
	var g service.ExportedFetchGuard
	_, cancel := context.WithCancel(context.Background())
	tok := g.Begin("a", cancel)

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.End("a", tok)
	}()

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}
