package cmd

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"trackhub/internal/backend"
	"trackhub/internal/config"
	"trackhub/internal/data"
	"trackhub/internal/email"
	"trackhub/internal/logger"
	"trackhub/internal/storage"
	"trackhub/internal/tui"
)

var tuiUser string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Create an event with the interactive terminal wizard",
	Long: `Runs the two-screen event wizard in the terminal, acting as the given
profile. Images are read from local files and stored like API uploads.`,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().StringVarP(&tuiUser, "user", "u", "", "Profile id or username to create events as")
	tuiCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	if err := setup(false); err != nil {
		return err
	}
	defer logger.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := openDatabase(ctx); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer data.CloseDB()

	levelCatalog, err := loadCatalog()
	if err != nil {
		return err
	}

	images, err := storage.NewLocalStore(config.UploadsDirectory(), config.PublicBaseURL, config.MaxUploadBytes())
	if err != nil {
		return err
	}
	svc := backend.New(images, backend.Config{
		SessionTTL:          config.SessionTTL(),
		PlaceholderImageURL: config.PlaceholderImageURL(),
		WeekStart:           config.WeekStart(),
		Alerts:              email.NewMailer(email.LoadEmailConfig()),
	})

	profile, err := resolveProfile(ctx, svc, tuiUser)
	if err != nil {
		return err
	}
	logger.LogInfo("Starting event wizard for %s (%s)", profile.Username, profile.ID)

	opts, err := svc.WizardOptions(ctx, profile.ID, levelCatalog.Levels())
	if err != nil {
		return err
	}

	model := tui.NewModel(opts, svc.ForUser(profile.ID))
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program (see %s): %w", logger.GetLogFilePath(), err)
	}
	return nil
}

// resolveProfile accepts either a profile id or a username.
func resolveProfile(ctx context.Context, svc *backend.Service, user string) (*data.Profile, error) {
	p, err := svc.Profile(ctx, user)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, data.ErrNotFound) {
		return nil, err
	}
	p, err = svc.ProfileByUsername(ctx, user)
	if errors.Is(err, data.ErrNotFound) {
		return nil, fmt.Errorf("no profile with id or username %q", user)
	}
	return p, err
}
