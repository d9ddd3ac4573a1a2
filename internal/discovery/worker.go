package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pandallel/quilt/internal/materials"
	"github.com/pandallel/quilt/pkg/fn"
	"github.com/pandallel/quilt/pkg/metrics"
)

// Config controls a single discovery run.
type Config struct {
	Directory       string
	IgnoreHidden    bool
	ExcludePatterns []string
}

// Result summarizes a completed discovery run.
type Result struct {
	Found      int
	Failed     int
	Registered int
	Skipped    int
	Total      int
}

// DiscoveryWorker validates a directory, scans it, and registers newly
// found files as Materials. Unlike CuttingWorker/SwatchingWorker it is
// not an event-bus consumer — it is invoked once per run by the
// Orchestrator to kick off the pipeline, matching original_source's
// DiscoveryActor::StartDiscovery handler.
type DiscoveryWorker struct {
	name       string
	registry   *materials.MaterialRegistry
	logger     *slog.Logger
	registered *metrics.Counter
	skipped    *metrics.Counter
}

// NewDiscoveryWorker constructs a DiscoveryWorker. reg may be nil, in
// which case a private registry is created.
func NewDiscoveryWorker(name string, registry *materials.MaterialRegistry, logger *slog.Logger, reg *metrics.Registry) *DiscoveryWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &DiscoveryWorker{
		name:       name,
		registry:   registry,
		logger:     logger,
		registered: reg.Counter("quilt_discovery_registered_total", "files newly registered as materials"),
		skipped:    reg.Counter("quilt_discovery_skipped_total", "scanned files skipped as already registered"),
	}
}

// Ping reports liveness, mirroring the original actor's Ping handler.
func (w *DiscoveryWorker) Ping() bool { return true }

// Discover validates cfg.Directory, scans it, and registers every found
// file not already present (by path) in the registry. Per-material
// registration failures other than "already exists" abort the run.
func (w *DiscoveryWorker) Discover(ctx context.Context, cfg Config) (Result, error) {
	w.logger.Info("discovery starting", "worker", w.name, "directory", cfg.Directory)

	if err := w.validateDirectory(cfg.Directory); err != nil {
		return Result{}, err
	}

	scanner, err := NewDirectoryScanner(cfg.Directory)
	if err != nil {
		return Result{}, err
	}
	scanner.IgnoreHidden(cfg.IgnoreHidden).Exclude(cfg.ExcludePatterns...)

	scanResults, err := scanner.Scan()
	if err != nil {
		return Result{}, fmt.Errorf("discovery: scan failed: %w", err)
	}

	w.logger.Info("scan complete", "found", len(scanResults.Found), "failed", len(scanResults.Failed))

	// fn.Unique drops any path the scan results list more than once
	// before a Material gets registered for it.
	absPaths := fn.Unique(fn.Map(scanResults.Found, func(f ScannedFile) string {
		return filepath.Join(cfg.Directory, f.RelativePath)
	}))

	var registered, skipped int
	for _, absPath := range absPaths {
		if _, err := w.registry.FindByPath(ctx, absPath); err == nil {
			skipped++
			continue
		} else if !errors.Is(err, materials.ErrNotFound) {
			return Result{}, fmt.Errorf("discovery: lookup by path: %w", err)
		}

		m := materials.NewMaterial(uuid.NewString, absPath, time.Now())
		if err := w.registry.Register(ctx, m); err != nil {
			if errors.Is(err, materials.ErrAlreadyExists) {
				skipped++
				continue
			}
			return Result{}, fmt.Errorf("discovery: register %s: %w", absPath, err)
		}
		registered++
	}

	all, err := w.registry.ListAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("discovery: list all: %w", err)
	}

	result := Result{
		Found:      len(scanResults.Found),
		Failed:     len(scanResults.Failed),
		Registered: registered,
		Skipped:    skipped,
		Total:      len(all),
	}
	w.logger.Info("registration complete",
		"found", result.Found, "failed", result.Failed,
		"registered", result.Registered, "skipped", result.Skipped, "total", result.Total)

	w.registered.Add(int64(registered))
	w.skipped.Add(int64(skipped))

	return result, nil
}

func (w *DiscoveryWorker) validateDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return NewDirectoryNotFoundError(path)
	}
	if !info.IsDir() {
		return fmt.Errorf("discovery: path exists but is not a directory: %s", path)
	}
	return nil
}
