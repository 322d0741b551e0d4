package cli

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/wishlist/internal/auth"
	"github.com/sakif/wishlist/internal/config"
)

func newCleanupCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete wishlists nobody has opened within the retention window",
		Long: strings.TrimSpace(`
Run the backend's cleanup procedure now. The server also runs it on a timer;
the retention window is configured there (RETENTION, default 90d).
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := app.gateway().CleanupOldWishlists(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"deleted": n})
		},
	}
}

func newAnonKeyCmd(app *App) *cobra.Command {
	var secret string
	var ttl string

	cmd := &cobra.Command{
		Use:   "anon-key",
		Short: "Mint a public API key for clients",
		Example: strings.TrimSpace(`
WISHLIST_JWT_SECRET=... wishlist anon-key
wishlist anon-key --secret ... --ttl 365d
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("WISHLIST_JWT_SECRET")
			}
			if secret == "" {
				return writeErr(cmd, errors.New("anon-key: missing --secret (or WISHLIST_JWT_SECRET)"))
			}

			var d time.Duration
			if ttl != "" {
				var err error
				if d, err = config.ParseDuration(ttl); err != nil {
					return writeErr(cmd, err)
				}
			}

			keys, err := auth.NewKeyService(secret)
			if err != nil {
				return writeErr(cmd, err)
			}
			key, err := keys.Issue(auth.RoleAnon, d)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"key": key})
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Server signing secret (default $WISHLIST_JWT_SECRET)")
	cmd.Flags().StringVar(&ttl, "ttl", "", "Key lifetime, e.g. 720h or 365d (default: no expiry)")
	return cmd
}
