package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipforge/render-agent/internal/api"
	"github.com/clipforge/render-agent/internal/config"
	"github.com/clipforge/render-agent/internal/db"
	"github.com/clipforge/render-agent/internal/engine"
	"github.com/clipforge/render-agent/internal/logging"
	"github.com/clipforge/render-agent/internal/render"
	"github.com/clipforge/render-agent/internal/source"
	"github.com/clipforge/render-agent/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.WorkDir(), 0755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	if err := os.MkdirAll(cfg.OutputDir(), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting clipforge render agent",
		"version", config.Version,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := store.NewRepository(database.Conn())

	engineAvailable := true
	eng, err := engine.New(cfg.FFmpegPath(), cfg.FFprobePath(), logger)
	if err != nil {
		logger.Warn("ffmpeg unavailable, render submissions disabled", "error", err)
		engineAvailable = false
	}

	normalizer := source.NewNormalizer(eng, source.Config{
		FrameRate:           cfg.FrameRate(),
		EncodePreset:        cfg.EncodePreset(),
		ImageDuration:       cfg.ImageClipDuration(),
		EncodeCRF:           cfg.EncodeCRF(),
		NearLosslessCRF:     cfg.NearLosslessCRF(),
		RestrictionsEnabled: cfg.RestrictionsEnabled(),
		MaxDuration:         cfg.MaxSourceDuration(),
		MaxWidth:            cfg.MaxSourceWidth(),
		MaxHeight:           cfg.MaxSourceHeight(),
		DownloadTimeout:     cfg.DownloadTimeout(),
		TranscodeTimeout:    cfg.SegmentTimeout(),
	}, logger)

	pipeline := render.NewPipeline(eng, normalizer, render.Config{
		OutputDir:      cfg.OutputDir(),
		WorkDir:        cfg.WorkDir(),
		MinCutDuration: cfg.MinCutDuration(),
		MinCopySegment: cfg.MinCopySegment(),
		EncodePreset:   cfg.EncodePreset(),
		EncodeCRF:      cfg.EncodeCRF(),
		FrameRate:      cfg.FrameRate(),
		VerifyRetries:  cfg.VerifyRetries(),
		VerifyInterval: cfg.VerifyInterval(),
		SegmentTimeout: cfg.SegmentTimeout(),
		ConcatTimeout:  cfg.ConcatTimeout(),
	}, logger)

	renderSvc := render.NewService(pipeline, repo, logger)

	fmt.Println()
	fmt.Printf("  clipforge render agent v%s\n", config.Version)
	fmt.Printf("  API URL:    http://127.0.0.1:%d\n", cfg.Port())
	fmt.Printf("  Output dir: %s\n", cfg.OutputDir())
	fmt.Println()

	apiServer := api.NewServer(api.ServerConfig{
		Port:            cfg.Port(),
		RenderService:   renderSvc,
		Logger:          logger,
		StartTime:       startTime,
		Version:         config.Version,
		EngineAvailable: engineAvailable,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	logger.Info("render agent ready", "addr", apiServer.Addr(), "engine_available", engineAvailable)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	if !renderSvc.Wait(30 * time.Second) {
		logger.Warn("shutdown timeout reached, cancelling in-flight renders")
		renderSvc.Stop()
		renderSvc.Wait(5 * time.Second)
	}

	logger.Info("shutdown complete")
	return nil
}
