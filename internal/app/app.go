package app

import (
	"context"
	"time"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"bento/internal/config"
	"bento/internal/render"
	"bento/internal/storage"
)

// App is the main Wails application struct.
// All exported methods are available as Wails bindings.
type App struct {
	ctx    context.Context
	cfg    *config.Config
	logger *zap.Logger

	core     *core
	surface  *render.Surface
	approval *approvalWatcher
}

// New creates a new App.
func New(cfg *config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger.Named("app")}
}

// wailsEmitter forwards service events to the frontend. Wails needs the
// context it handed to Startup, so the emitter keeps that one and ignores
// the caller's.
type wailsEmitter struct {
	ctx context.Context
}

func (e wailsEmitter) Emit(_ context.Context, event string, data any) {
	wailsRuntime.EventsEmit(e.ctx, event, data)
}

// Startup is called when the app starts.
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx
	emitter := wailsEmitter{ctx: ctx}

	c, err := openCore(ctx, a.cfg, a.logger, emitter)
	if err != nil {
		wailsRuntime.LogFatalf(ctx, "Failed to start board: %v", err)
		return
	}
	a.core = c
	a.surface = render.NewSurface(c.svc, a.logger)

	size := c.window.LoadWindowSize(ctx)
	wailsRuntime.WindowSetSize(ctx, size.Width, size.Height)

	// Approvals raised by a standalone MCP process travel through the
	// shared database.
	if c.approvals != nil {
		a.approval = newApprovalWatcher(ctx, c.approvals, emitter, storage.DefaultPollInterval, a.logger)
		a.approval.Start()
	}
}

// BeforeClose saves the window size while the window still exists.
func (a *App) BeforeClose(ctx context.Context) bool {
	if a.core != nil {
		w, h := wailsRuntime.WindowGetSize(ctx)
		if err := a.core.window.SaveWindowSize(ctx, w, h); err != nil {
			a.logger.Warn("save window size", zap.Error(err))
		}
	}
	return false
}

// Shutdown is called when the app is closing.
func (a *App) Shutdown(ctx context.Context) {
	if a.approval != nil {
		a.approval.Stop()
	}
	if a.core != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		a.core.Close(ctx)
	}
}
