package cli

import (
	"errors"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/wishlist/internal/app"
	"github.com/sakif/wishlist/internal/i18n"
	"github.com/sakif/wishlist/internal/listactions"
	"github.com/sakif/wishlist/internal/realtime"
	"github.com/sakif/wishlist/internal/recent"
	"github.com/sakif/wishlist/internal/theme"
	"github.com/sakif/wishlist/internal/web"
)

func newWebCmd(a *App) *cobra.Command {
	var addr string
	var origin string

	cmd := &cobra.Command{
		Use:   "web",
		Short: "Run the wishlist UI on a local HTTP server",
		Long: strings.TrimSpace(`
Run the wishlist UI served from a local HTTP server.

Pages are rendered on the server; the browser keeps one event stream open and
receives re-rendered views whenever the open list changes, locally or on
another device.
`),
		Example: strings.TrimSpace(`
# Serve on the default address ($WISHLIST_ADDR or localhost:3000)
wishlist web

# Share links point at a public host
wishlist web --addr :3000 --origin https://wishes.example.com
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			listenAddr := strings.TrimSpace(addr)
			if listenAddr == "" {
				listenAddr = a.cfg.Addr
			}
			if listenAddr == "" {
				return writeErr(cmd, errors.New("web: missing --addr"))
			}

			store, err := a.prefs()
			if err != nil {
				return writeErr(cmd, err)
			}

			srv, err := web.New(web.Config{
				Addr:   listenAddr,
				Origin: strings.TrimRight(strings.TrimSpace(origin), "/"),
			}, web.Deps{
				Gateway: a.gateway(),
				NewRealtime: func() (app.Subscriber, error) {
					return realtime.New(a.cfg.APIURL, a.cfg.APIKey, realtime.WithLogger(a.logger))
				},
				Recent:   recent.New(store, recent.WithLogger(a.logger)),
				Language: i18n.NewService(store),
				Theme:    theme.NewService(store, theme.Light),
				Copier:   listactions.NewClipboard(a.logger),
				Logger:   a.logger,
			})
			if err != nil {
				return writeErr(cmd, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := srv.Start(ctx); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default $WISHLIST_ADDR)")
	cmd.Flags().StringVar(&origin, "origin", "", "Base URL used in share links (default http://<addr>)")
	return cmd
}
