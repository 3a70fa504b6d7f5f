package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/mailgoal/mailgoal/internal/config"
	"github.com/mailgoal/mailgoal/internal/content"
	"github.com/mailgoal/mailgoal/internal/db"
	"github.com/mailgoal/mailgoal/internal/events"
	"github.com/mailgoal/mailgoal/internal/queue"
	"github.com/mailgoal/mailgoal/internal/repository"
	"github.com/mailgoal/mailgoal/internal/schedule"
	"github.com/mailgoal/mailgoal/internal/service"
	"github.com/mailgoal/mailgoal/internal/storage"
)

type App struct {
	Cfg            *config.Config
	DB             *sqlx.DB
	GoalRepository repository.GoalRepository
	EmailService   *service.EmailService
	TokenService   *service.TokenService
	GoalService    *service.GoalService
	Generator      *content.Generator
	GenerationGate *queue.Gate
	Policy         *schedule.Policy
	Dispatcher     *service.Dispatcher
	Archive        storage.ReportArchive
	Publisher      events.Publisher
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Repositories
	goalRepository := repository.NewGoalRepository(database)

	// Report archive
	var archive storage.ReportArchive = storage.NopArchive{}
	if cfg.ArchiveEnabled() {
		s3Archive, err := storage.NewS3Archive(ctx, storage.S3Config{
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Endpoint:      cfg.S3Endpoint,
			Prefix:        cfg.S3ReportPrefix,
			PresignExpiry: cfg.S3PresignExpiry,
		})
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to initialize report archive: %w", err)
		}
		archive = s3Archive
	}

	// Services
	emailService := service.NewEmailService(cfg.ResendAPIKey, cfg.EmailFrom, cfg.IsDevelopment())
	tokenService := service.NewTokenService(cfg.TokenSecret, cfg.CompletionLinkExpiry)
	goalService := service.NewGoalService(goalRepository, tokenService, cfg.Location)
	generator := content.NewGenerator(NewContentBackend(ctx, cfg), content.WithTimeout(cfg.GenerationTimeout))
	gate := queue.NewGate(cfg.GenerationMinInterval)
	policy := schedule.NewPolicy(cfg.Location, cfg.FrequencyIntervals, cfg.StopAfterDeadline)
	publisher := events.Connect(cfg.AMQPURL, cfg.AMQPExchange, slog.Default())

	dispatcher := service.NewDispatcher(
		goalRepository,
		policy,
		generator,
		emailService,
		cfg.CronSecret,
		service.WithPacing(cfg.DispatchPacing),
		service.WithGenerationInterval(cfg.GenerationMinInterval),
		service.WithGenerationGate(gate),
		service.WithStoreWriteAttempts(cfg.StoreWriteAttempts, 0),
		service.WithCompletionLinks(tokenService, cfg.AppURL),
		service.WithReportArchive(archive),
		service.WithEventPublisher(publisher, cfg.AppName),
	)

	return &App{
		Cfg:            cfg,
		DB:             database,
		GoalRepository: goalRepository,
		EmailService:   emailService,
		TokenService:   tokenService,
		GoalService:    goalService,
		Generator:      generator,
		GenerationGate: gate,
		Policy:         policy,
		Dispatcher:     dispatcher,
		Archive:        archive,
		Publisher:      publisher,
	}, nil
}

// NewContentBackend picks Gemini when credentials exist and the template-only
// backend otherwise.
func NewContentBackend(ctx context.Context, cfg *config.Config) content.Backend {
	if cfg.GeminiAPIKey == "" && !cfg.GeminiUseADC {
		slog.Info("content generation disabled, using fallback templates")
		return content.NopBackend{}
	}

	backend, err := content.NewGeminiBackend(ctx, content.GeminiConfig{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
		UseADC: cfg.GeminiUseADC,
	})
	if err != nil {
		slog.Warn("gemini unavailable, using fallback templates", "error", err)
		return content.NopBackend{}
	}
	slog.Info("content generation enabled", "model", cfg.GeminiModel, "adc", cfg.GeminiUseADC)
	return backend
}

func (a *App) Close() error {
	var errs []error
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
