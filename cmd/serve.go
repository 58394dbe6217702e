package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"trackhub/internal/api"
	"trackhub/internal/backend"
	"trackhub/internal/cleanup"
	"trackhub/internal/config"
	"trackhub/internal/data"
	"trackhub/internal/email"
	"trackhub/internal/logger"
	"trackhub/internal/middleware"
	"trackhub/internal/recovery"
	"trackhub/internal/security"
	"trackhub/internal/server"
	"trackhub/internal/storage"
	"trackhub/internal/wizard"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := setup(logToConsole); err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Step 1: Database
	if err := openDatabase(ctx); err != nil {
		logger.LogError("Failed to open database: %v", err)
		return err
	}
	defer data.CloseDB()
	logger.LogInfo("Database ready at %s", config.DatabasePath())

	// Step 2: Level catalog, reloaded when the file changes
	levelCatalog, err := loadCatalog()
	if err != nil {
		logger.LogError("Failed to load level catalog: %v", err)
		return err
	}
	if config.CatalogPath() != "" {
		if err := levelCatalog.Watch(); err != nil {
			logger.LogWarn("Catalog reload disabled: %v", err)
		}
	}
	defer levelCatalog.Close()

	// Step 3: Image storage
	maxUpload := config.MaxUploadBytes()
	images, err := storage.NewLocalStore(config.UploadsDirectory(), config.PublicBaseURL, maxUpload)
	if err != nil {
		logger.LogError("Failed to prepare uploads directory: %v", err)
		return err
	}
	logger.LogInfo("Storing uploads in %s (limit %s)", images.Dir(), humanize.Bytes(uint64(maxUpload)))

	// Step 4: Services
	mailer := email.NewMailer(email.LoadEmailConfig())
	svc := backend.New(images, backend.Config{
		SessionTTL:          config.SessionTTL(),
		PlaceholderImageURL: config.PlaceholderImageURL(),
		WeekStart:           config.WeekStart(),
		Alerts:              mailer,
	})
	drafts := wizard.NewStore()
	limiter := middleware.NewRateLimiter(config.RateLimit())
	limiter.TrustProxyHeaders = config.TrustProxyHeaders()
	handler := api.NewHandler(svc, levelCatalog, drafts, limiter, api.Options{
		WeekStart:      config.WeekStart(),
		MaxUploadBytes: maxUpload,
	})

	// Step 5: Background tasks
	go security.CleanExpiredTokens(ctx)
	cleanup.StartCleanupRoutine(ctx, cleanup.Targets{
		Sessions:       data.NewSessionRepository(),
		Drafts:         drafts,
		DraftRetention: config.DraftRetention(),
		Limiter:        limiter,
		Recovery:       recovery.NewService(data.NewPostRepository(), mailer),
		RecoveryGrace:  time.Hour,
	})

	// Step 6: Run server
	app := server.New(handler.Routes(), server.Options{
		Addr:           config.ServerAddress(),
		UploadsDir:     images.Dir(),
		RequestTimeout: config.RequestTimeout(),
	})
	return app.Run(ctx)
}
