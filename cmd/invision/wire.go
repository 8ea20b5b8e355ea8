package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/invision-ai/invision/internal/analysis"
	"github.com/invision-ai/invision/internal/annotate"
	"github.com/invision-ai/invision/internal/bus"
	"github.com/invision-ai/invision/internal/config"
	"github.com/invision-ai/invision/internal/db"
	"github.com/invision-ai/invision/internal/logging"
	"github.com/invision-ai/invision/internal/metadata"
	"github.com/invision-ai/invision/internal/models"
	"github.com/invision-ai/invision/internal/video"
)

// app holds the components shared by the subcommands. Everything is built
// lazily so that, for example, `rules` never needs API keys.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	database *db.DB
	closers  []func()
}

func newApp(logLevel string) (*app, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.LogLevel()
	if logLevel != "" {
		level = logLevel
	}

	return &app{cfg: cfg, logger: logging.NewLogger(level)}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// DB opens the local SQLite database, creating the data directory on first
// use.
func (a *app) DB() (*db.DB, error) {
	if a.database != nil {
		return a.database, nil
	}

	if err := os.MkdirAll(a.cfg.DataDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	database, err := db.New(a.cfg.DBPath(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.database = database
	a.closers = append(a.closers, func() { database.Close() })
	return database, nil
}

func (a *app) missingPolicy(fallback metadata.MissingPolicy) (metadata.MissingPolicy, error) {
	p, err := metadata.ParseMissingPolicy(a.cfg.OnMissing(), fallback)
	if err != nil {
		return metadata.MissingPolicy{}, fmt.Errorf("invalid %s: %w", config.EnvOnMissing, err)
	}
	return p, nil
}

// Store opens the configured metadata backend.
func (a *app) Store(ctx context.Context) (metadata.Store, error) {
	switch a.cfg.MetadataBackend() {
	case config.BackendSQLite:
		policy, err := a.missingPolicy(metadata.Fail())
		if err != nil {
			return nil, err
		}
		database, err := a.DB()
		if err != nil {
			return nil, err
		}
		return metadata.NewSQLStore(database.Conn(), policy), nil

	case config.BackendPostgres:
		policy, err := a.missingPolicy(metadata.Fail())
		if err != nil {
			return nil, err
		}
		store, err := metadata.OpenPostgres(ctx, a.cfg.PostgresDSN(), policy)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil

	default:
		policy, err := a.missingPolicy(metadata.DefaultTo(metadata.DefaultStubRoom))
		if err != nil {
			return nil, err
		}
		cat := metadata.DefaultCatalog()
		if path := a.cfg.CatalogPath(); path != "" {
			cat, err = metadata.LoadCatalog(path)
			if err != nil {
				return nil, err
			}
		}
		return metadata.NewStaticStore(cat, policy), nil
	}
}

// Importer opens the configured database backend for seeding.
func (a *app) Importer(ctx context.Context) (metadata.Importer, error) {
	switch a.cfg.MetadataBackend() {
	case config.BackendSQLite, config.BackendPostgres:
		store, err := a.Store(ctx)
		if err != nil {
			return nil, err
		}
		if pg, ok := store.(*metadata.PostgresStore); ok {
			if err := pg.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		return store.(metadata.Importer), nil
	default:
		return nil, fmt.Errorf("the static backend reads its catalog directly; set %s to sqlite or postgres", config.EnvMetadataBackend)
	}
}

// VideoLoader reads local paths and, when storage credentials are available,
// gs:// objects.
func (a *app) VideoLoader(ctx context.Context) video.Loader {
	router := video.Router{Local: video.FileLoader{}}

	gcs, err := video.NewGCSLoader(ctx)
	if err != nil {
		a.logger.Debug("cloud storage unavailable, gs:// paths disabled", "error", err)
		return router
	}
	a.closers = append(a.closers, func() { gcs.Close() })
	router.Remote = gcs
	return router
}

func (a *app) Annotator(ctx context.Context, store metadata.Store) (*annotate.Annotator, error) {
	gemini, err := models.NewGemini(ctx, models.GeminiOptions{
		APIKey:     a.cfg.GoogleAPIKey(),
		APIVersion: a.cfg.GeminiAPIVersion(),
		Model:      a.cfg.GeminiModel(),
		Logger:     a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set %s)", err, config.EnvGoogleAPIKey)
	}
	return annotate.NewAnnotator(store, a.VideoLoader(ctx), gemini, a.logger), nil
}

func (a *app) Analyzer(store metadata.Store) (*analysis.Analyzer, error) {
	chat, err := models.NewOpenAI(models.OpenAIOptions{
		APIKey:  a.cfg.OpenAIAPIKey(),
		BaseURL: a.cfg.OpenAIBaseURL(),
		Logger:  a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set %s)", err, config.EnvOpenAIAPIKey)
	}
	return analysis.NewAnalyzer(store, chat, analysis.Options{
		ReasoningModel:  a.cfg.ReasoningModel(),
		ExtractionModel: a.cfg.ExtractionModel(),
		Logger:          a.logger,
	}), nil
}

// Publisher connects to NATS when a URL is configured.
func (a *app) Publisher() (bus.Publisher, error) {
	if a.cfg.NATSURL() == "" {
		return bus.NopPublisher{}, nil
	}
	pub, err := bus.NewNATSPublisher(a.cfg.NATSURL(), a.cfg.NATSSubject())
	if err != nil {
		return nil, err
	}
	a.logger.Info("publishing breaches to nats", "url", a.cfg.NATSURL(), "subject", pub.Subject())
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}

type configStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

func ensureAuthToken(ctx context.Context, repo configStore, key string) (string, error) {
	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, key, token); err != nil {
		return "", err
	}

	return token, nil
}
