package service

import (
	"context"
	"sync"
)

// ExportedFetchGuard is an exported alias so _test packages can test the guard.
type ExportedFetchGuard = fetchGuard

// ─────────────────────────────────────────────────────────────
// fetchGuard: one in-flight link fetch per cell
// ─────────────────────────────────────────────────────────────

// fetchGuard tracks the cancel function of the metadata fetch running for
// each cell. Starting a fetch for a cell cancels the one already running,
// and deleting a cell cancels its fetch.
type fetchGuard struct {
	mu      sync.Mutex
	running map[string]*fetchToken
	wg      sync.WaitGroup
}

type fetchToken struct {
	cancel context.CancelFunc
}

// Begin registers a fetch for cellID, cancelling any previous one. The
// returned token must be passed to End.
func (g *fetchGuard) Begin(cellID string, cancel context.CancelFunc) *fetchToken {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]*fetchToken)
	}
	if prev, ok := g.running[cellID]; ok {
		prev.cancel()
	}
	tok := &fetchToken{cancel: cancel}
	g.running[cellID] = tok
	g.wg.Add(1)
	return tok
}

// End marks the fetch behind tok as finished.
func (g *fetchGuard) End(cellID string, tok *fetchToken) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running[cellID] == tok {
		delete(g.running, cellID)
	}
	tok.cancel()
	g.wg.Done()
}

// Cancel stops the fetch running for cellID, if any.
func (g *fetchGuard) Cancel(cellID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if tok, ok := g.running[cellID]; ok {
		tok.cancel()
		delete(g.running, cellID)
	}
}

// CancelAll stops every running fetch.
func (g *fetchGuard) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, tok := range g.running {
		tok.cancel()
		delete(g.running, id)
	}
}

// Running reports whether a fetch is in flight for cellID.
func (g *fetchGuard) Running(cellID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[cellID]
	return ok
}

// WaitAll blocks until all fetches finish or ctx is cancelled.
func (g *fetchGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
