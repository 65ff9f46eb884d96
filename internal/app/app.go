package app

import (
	"context"
	"fmt"
	"sync"

	"webpilot/internal/config"
	"webpilot/internal/service"
	"webpilot/internal/service/store"
	"webpilot/internal/service/tools/browser"
)

type App struct {
	ctx           context.Context
	ctxMu         sync.RWMutex
	threadService *service.ThreadService
	kv            *store.Store

	threadOrder   []string
	threadOrderMu sync.RWMutex

	pumpsMu sync.Mutex
	pumps   map[string]bool
}

func NewApp() *App {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	browser.SetFetchTimeout(cfg.PageFetchTimeout())

	dbPath, err := store.DefaultPath()
	if err != nil {
		panic(fmt.Sprintf("Failed to resolve database path: %v", err))
	}

	kv, err := store.Open(dbPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}

	threadService, err := service.NewThreadService(context.Background(), cfg, kv)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize thread service: %v", err))
	}

	return &App{
		threadService: threadService,
		kv:            kv,
		threadOrder:   []string{},
		pumps:         make(map[string]bool),
	}
}

func (a *App) Startup(ctx context.Context) {
	a.ctxMu.Lock()
	a.ctx = ctx
	a.ctxMu.Unlock()

	for _, info := range a.threadService.ListThreads() {
		a.startEventPump(info.ID)
	}
}

func (a *App) Shutdown(ctx context.Context) {
	if a.kv != nil {
		_ = a.kv.Close()
	}
}

func (a *App) appContext() context.Context {
	a.ctxMu.RLock()
	defer a.ctxMu.RUnlock()

	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}
