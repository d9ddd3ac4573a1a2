// Command quilt runs the Quilt document-ingestion pipeline once over a
// directory: it discovers candidate files, cuts them into chunks, embeds
// each chunk, and reports the resulting material counts.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pandallel/quilt/internal/cutting"
	"github.com/pandallel/quilt/internal/materials"
	"github.com/pandallel/quilt/internal/orchestrator"
	"github.com/pandallel/quilt/internal/swatching"
	"github.com/pandallel/quilt/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	DBPath              string
	EmbeddingBackend    string
	OllamaURL           string
	OllamaModel         string
	OrchestratorTimeout time.Duration
	IgnoreHidden        bool
	BreakerThreshold    int
	BreakerTimeout      time.Duration
	EmbedRateLimit      float64
	EmbedRateBurst      int
	CutTargetSize       int
	CutMinSize          int
	CutMaxSize          int
}

func loadConfig() Config {
	return Config{
		DBPath:              envOr("QUILT_DB_PATH", ":memory:"),
		EmbeddingBackend:    envOr("QUILT_EMBEDDING_BACKEND", "stub"),
		OllamaURL:           envOr("QUILT_OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:         envOr("QUILT_OLLAMA_MODEL", "nomic-embed-text"),
		OrchestratorTimeout: envOrDuration("QUILT_ORCHESTRATOR_TIMEOUT", 30*time.Second),
		IgnoreHidden:        envOrBool("QUILT_IGNORE_HIDDEN", true),
		BreakerThreshold:    envOrInt("QUILT_BREAKER_FAIL_THRESHOLD", resilience.DefaultBreakerOpts.FailThreshold),
		BreakerTimeout:      envOrDuration("QUILT_BREAKER_TIMEOUT", resilience.DefaultBreakerOpts.Timeout),
		EmbedRateLimit:      envOrFloat("QUILT_EMBED_RATE_LIMIT", 10),
		EmbedRateBurst:      envOrInt("QUILT_EMBED_RATE_BURST", 10),
		CutTargetSize:       envOrInt("QUILT_CUT_TARGET_SIZE", cutting.DefaultCutterConfig().TargetSize),
		CutMinSize:          envOrInt("QUILT_CUT_MIN_SIZE", cutting.DefaultCutterConfig().MinSize),
		CutMaxSize:          envOrInt("QUILT_CUT_MAX_SIZE", cutting.DefaultCutterConfig().MaxSize),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}

func envOrFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var f float64
	if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
		return fallback
	}
	return f
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func printUsage(program string) {
	fmt.Fprintf(os.Stderr, "Usage: %s <directory> [--exclude path1,path2,...]\n", program)
	fmt.Fprintln(os.Stderr, "\nOptions:")
	fmt.Fprintln(os.Stderr, "  --exclude    Comma-separated list of substrings to exclude")
}

// parseArgs parses argv in the same shape as original_source's main.rs:
// a required positional directory argument and an optional --exclude
// flag taking a comma-separated list.
func parseArgs(args []string) (directory string, excludePatterns []string, err error) {
	i := 0
	for i < len(args) {
		switch args[i] {
		case "--exclude":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--exclude requires a comma-separated list of paths")
			}
			excludePatterns = strings.Split(args[i+1], ",")
			i += 2
		default:
			if directory != "" {
				return "", nil, fmt.Errorf("unexpected argument %q", args[i])
			}
			directory = args[i]
			i++
		}
	}
	if directory == "" {
		return "", nil, fmt.Errorf("directory path is required")
	}
	return directory, excludePatterns, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	directory, excludePatterns, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		printUsage(os.Args[0])
		os.Exit(1)
	}

	cfg := loadConfig()
	if err := run(directory, excludePatterns, cfg, logger); err != nil {
		logger.Error("quilt run failed", "error", err)
		os.Exit(1)
	}
}

func run(directory string, excludePatterns []string, cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// A pooled connection to an in-memory SQLite database is destroyed
	// once the connection that created it closes; idle-reaping by
	// database/sql would silently wipe the database. Pinning the pool to
	// a single connection keeps it alive for the process lifetime.
	if cfg.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	materialRepo, err := materials.NewSQLMaterialRepository(ctx, db)
	if err != nil {
		return fmt.Errorf("materials repository: %w", err)
	}
	cutsRepo, err := cutting.NewSQLCutsRepository(ctx, db)
	if err != nil {
		return fmt.Errorf("cuts repository: %w", err)
	}
	swatchRepo, err := swatching.NewSQLSwatchRepository(ctx, db)
	if err != nil {
		return fmt.Errorf("swatches repository: %w", err)
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}

	breaker := resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: cfg.BreakerThreshold,
		Timeout:       cfg.BreakerTimeout,
	})
	limiter := resilience.NewLimiter(resilience.LimiterOpts{
		Rate:  cfg.EmbedRateLimit,
		Burst: cfg.EmbedRateBurst,
	})

	orch := orchestrator.New(orchestrator.Deps{
		MaterialRepo: materialRepo,
		CutsRepo:     cutsRepo,
		SwatchRepo:   swatchRepo,
		Embedder:     embedder,
		Breaker:      breaker,
		Limiter:      limiter,
		Logger:       logger,
		CutterConfig: cutting.CutterConfig{
			TargetSize: cfg.CutTargetSize,
			MinSize:    cfg.CutMinSize,
			MaxSize:    cfg.CutMaxSize,
		},
	})

	result, err := orch.Run(ctx, orchestrator.Config{
		DiscoveryDir:    directory,
		IgnoreHidden:    cfg.IgnoreHidden,
		ExcludePatterns: excludePatterns,
		Timeout:         cfg.OrchestratorTimeout,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Scan Results:")
	fmt.Println("-------------")
	fmt.Printf("Found: %d  Failed: %d  Registered: %d  Skipped: %d  Total in registry: %d\n",
		result.Found, result.Failed, result.Registered, result.Skipped, result.Total)

	if envOrBool("QUILT_PRINT_METRICS", false) {
		fmt.Println()
		fmt.Println(orch.Metrics().Render())
	}

	return nil
}

func buildEmbedder(cfg Config) (swatching.EmbeddingService, error) {
	switch cfg.EmbeddingBackend {
	case "ollama":
		return swatching.NewOllamaEmbeddingService(cfg.OllamaURL, cfg.OllamaModel), nil
	case "stub", "":
		return swatching.NewStubEmbeddingService(8), nil
	default:
		return nil, fmt.Errorf("unknown QUILT_EMBEDDING_BACKEND %q", cfg.EmbeddingBackend)
	}
}
