package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/wishlist/internal/listactions"
	"github.com/sakif/wishlist/internal/recent"
	"github.com/sakif/wishlist/internal/router"
)

func listID(arg string) (string, error) {
	id := router.MatchUUID("/" + strings.TrimSpace(arg))
	if id == "" {
		return "", fmt.Errorf("invalid wishlist id %q", arg)
	}
	return id, nil
}

func newExportCmd(app *App) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export <wishlist-id>",
		Short: "Save a wishlist as JSON",
		Example: strings.TrimSpace(`
# Writes wishlist-<name>-<date>.json in the current directory
wishlist export 123e4567-e89b-12d3-a456-426614174000

# To stdout
wishlist export 123e4567-e89b-12d3-a456-426614174000 -o -
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := listID(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}

			full, err := app.gateway().GetWishlist(cmd.Context(), id)
			if err != nil {
				return writeErr(cmd, err)
			}
			if full == nil {
				return writeErr(cmd, errNotFound(id))
			}

			name, data, err := listactions.Export(full, time.Now())
			if err != nil {
				return writeErr(cmd, err)
			}

			if out == "-" {
				_, err := cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			path := out
			if path == "" {
				path = name
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"id":   full.ID,
				"name": full.Name,
				"file": path,
			})
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file, - for stdout")
	return cmd
}

func newImportCmd(app *App) *cobra.Command {
	var origin string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a JSON export as a new wishlist",
		Long: strings.TrimSpace(`
Load a file written by "wishlist export" (or the UI's save button).

The list keeps the id stored in the file; its sublists and items are created
fresh. Use - to read from stdin.
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader
			if args[0] == "-" {
				r = cmd.InOrStdin()
			} else {
				f, err := os.Open(filepath.Clean(args[0]))
				if err != nil {
					return writeErr(cmd, err)
				}
				defer f.Close()
				r = f
			}

			full, err := listactions.Import(r)
			if err != nil {
				return writeErr(cmd, err)
			}

			w, err := app.gateway().ImportFromJSON(cmd.Context(), full)
			if err != nil {
				return writeErr(cmd, err)
			}

			// Make it the list the UI offers to continue with.
			if store, err := app.prefs(); err == nil {
				if err := recent.New(store, recent.WithLogger(app.logger)).Save(w.ID, w.Name); err != nil {
					app.logger.Warn("failed to remember imported list")
				}
			}

			return writeOut(cmd, app, map[string]any{
				"id":   w.ID,
				"name": w.Name,
				"url":  listactions.ShareURL(originOr(app, origin), w.ID),
			})
		},
	}

	cmd.Flags().StringVar(&origin, "origin", "", "Base URL for the printed link (default http://<addr>)")
	return cmd
}

func newShareCmd(app *App) *cobra.Command {
	var origin string
	var noCopy bool

	cmd := &cobra.Command{
		Use:   "share <wishlist-id>",
		Short: "Print a wishlist's share link and copy it to the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := listID(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}

			ok, err := app.gateway().WishlistExists(cmd.Context(), id)
			if err != nil {
				return writeErr(cmd, err)
			}
			if !ok {
				return writeErr(cmd, errNotFound(id))
			}

			url := listactions.ShareURL(originOr(app, origin), id)
			copied := false
			if !noCopy {
				copied = listactions.NewClipboard(app.logger).Copy(url) == ""
			}
			return writeOut(cmd, app, map[string]any{
				"url":    url,
				"copied": copied,
			})
		},
	}

	cmd.Flags().StringVar(&origin, "origin", "", "Base URL of the UI (default http://<addr>)")
	cmd.Flags().BoolVar(&noCopy, "no-copy", false, "Only print the link")
	return cmd
}

func originOr(app *App, origin string) string {
	if o := strings.TrimSpace(origin); o != "" {
		return o
	}
	return "http://" + app.cfg.Addr
}
