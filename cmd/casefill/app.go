package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yangwenmai/casefill/internal/browser"
	"github.com/yangwenmai/casefill/internal/config"
	"github.com/yangwenmai/casefill/internal/extract"
	"github.com/yangwenmai/casefill/internal/progress"
	"github.com/yangwenmai/casefill/internal/store"
	"github.com/yangwenmai/casefill/internal/workflow"
)

// app is the wired set of dependencies shared by the commands.
type app struct {
	store   *store.Store
	machine *workflow.Machine
}

func (a *app) Close() error {
	return a.store.Close()
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (*store.Store, error) {
	var backend store.Backend
	switch cfg.StoreBackend {
	case "redis":
		client, err := store.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		backend = store.NewRedisBackend(client, cfg.RedisPrefix)
	default:
		db, err := store.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		b, err := store.NewSQLiteBackend(db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init store: %w", err)
		}
		backend = b
	}
	return store.New(backend, store.WithLogger(log)), nil
}

func newApp(ctx context.Context, cfg config.Config, log *zap.Logger, rep progress.Reporter) (*app, error) {
	s, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	portalCfg, err := browser.LoadPortalConfig(cfg.PortalConfig)
	if err != nil {
		s.Close()
		return nil, err
	}

	var (
		launcher     browser.Launcher
		docs, images extract.Service
	)
	switch {
	case cfg.Demo:
		log.Info("demo mode: in-memory portal with stub extraction")
		launcher = workflow.DemoLauncher(portalCfg, nil)
		docs, images = &extract.StubService{}, &extract.StubService{}
	default:
		launcher = browser.NewRodLauncher(browser.RodConfig{
			ControlURL:        cfg.BrowserControlURL,
			Bin:               cfg.BrowserBin,
			Headless:          cfg.Headless,
			NavigationTimeout: cfg.NavigationTimeout,
			ElementTimeout:    cfg.ElementTimeout,
			DownloadDir:       cfg.DownloadDir,
			Username:          cfg.PortalUsername,
			Password:          cfg.PortalPassword,
			Portal:            portalCfg,
		}, log)
		docs, images, err = newServices(ctx, cfg, log)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	m := workflow.New(s, launcher, browser.NewScriptedPortal(portalCfg), docs, images,
		workflow.WithConfig(workflow.Config{
			RequireHumanCheckpoint: cfg.RequireHumanCheckpoint,
			Extract:                cfg.ExtractOptions(),
		}),
		workflow.WithLogger(log),
		workflow.WithReporter(rep),
	)
	return &app{store: s, machine: m}, nil
}

// newServices returns the document and image extraction services. Only
// Gemini reads PDFs, so documents go to Gemini whenever a Gemini key is set
// and the configured provider serves images.
func newServices(ctx context.Context, cfg config.Config, log *zap.Logger) (docs, images extract.Service, err error) {
	if cfg.UseStubs() {
		log.Warn("no API key for extraction provider, using stub extraction", zap.String("provider", cfg.ExtractProvider))
		return &extract.StubService{}, &extract.StubService{}, nil
	}

	var gemini *extract.GeminiService
	if cfg.GeminiKey != "" {
		gemini, err = extract.NewGeminiService(ctx, cfg.GeminiKey, extract.WithGeminiModel(cfg.GeminiModel))
		if err != nil {
			return nil, nil, err
		}
	}

	switch cfg.ExtractProvider {
	case "openai":
		log.Info("using OpenAI image extraction", zap.String("model", cfg.OpenAIModel))
		images = extract.NewOpenAIVisionService(cfg.OpenAIKey,
			extract.WithModel(cfg.OpenAIModel),
			extract.WithHTTPTimeout(cfg.HTTPTimeout),
		)
	default:
		images = gemini
	}

	if gemini == nil {
		log.Warn("no Gemini API key, using stub document extraction")
		return &extract.StubService{}, images, nil
	}
	log.Info("using Gemini document extraction", zap.String("model", cfg.GeminiModel))
	return gemini, images, nil
}
