// Package cli is the wishlist client's command line: the local web UI plus
// scriptable export, import, share and maintenance commands.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/wishlist/internal/config"
	"github.com/sakif/wishlist/internal/gateway"
	"github.com/sakif/wishlist/internal/prefs"
)

type App struct {
	APIURL     string
	APIKey     string
	StateDir   string
	LogLevel   string
	PrettyJSON bool

	cfg    *config.Client
	logger *slog.Logger
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "wishlist",
		Short:        "Shared wishlist client",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Open the web UI
  wishlist web

  # Save a list to a file and load it back as a new list
  wishlist export 123e4567-e89b-12d3-a456-426614174000 -o gifts.json
  wishlist import gifts.json
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.load()
	}

	cmd.PersistentFlags().StringVar(&app.APIURL, "api-url", "", "Backend base URL (default $WISHLIST_API_URL)")
	cmd.PersistentFlags().StringVar(&app.APIKey, "api-key", "", "Backend API key (default $WISHLIST_API_KEY)")
	cmd.PersistentFlags().StringVar(&app.StateDir, "state-dir", "", "Where preferences and the recent list are kept (default $WISHLIST_STATE_DIR)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "debug|info|warn|error (default $LOG_LEVEL)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")

	cmd.AddCommand(newWebCmd(app))
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newImportCmd(app))
	cmd.AddCommand(newShareCmd(app))
	cmd.AddCommand(newCleanupCmd(app))
	cmd.AddCommand(newAnonKeyCmd(app))

	return cmd
}

// load resolves configuration: flags win over the environment and .env.
func (app *App) load() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	if v := strings.TrimSpace(app.APIURL); v != "" {
		cfg.APIURL = strings.TrimRight(v, "/")
	}
	if app.APIKey != "" {
		cfg.APIKey = app.APIKey
	}
	if v := strings.TrimSpace(app.StateDir); v != "" {
		cfg.StateDir = v
	}
	if app.LogLevel != "" {
		level, err := config.ParseLevel(app.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	app.cfg = cfg
	app.logger = config.NewLogger(cfg.LogLevel)
	return nil
}

func (app *App) gateway() *gateway.Client {
	return gateway.New(app.cfg.APIURL, app.cfg.APIKey, gateway.WithLogger(app.logger))
}

func (app *App) prefs() (*prefs.File, error) {
	return prefs.OpenFile(app.cfg.StateDir)
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if app.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
