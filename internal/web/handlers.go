package web

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/sakif/wishlist/internal/app"
	"github.com/sakif/wishlist/internal/i18n"
	"github.com/sakif/wishlist/internal/theme"
)

const maxUpload = 10 << 20

// pageVM is what the page templates render.
type pageVM struct {
	app.Snapshot
	Sublists template.HTML
	Start    template.HTML
}

func (s *Server) pageVM(snap app.Snapshot) (pageVM, error) {
	vm := pageVM{Snapshot: snap}
	var err error
	if vm.Sublists, err = app.RenderSublists(snap); err != nil {
		return vm, err
	}
	if vm.Start, err = app.RenderStart(snap); err != nil {
		return vm, err
	}
	return vm, nil
}

func (s *Server) render(name string, snap app.Snapshot) (string, error) {
	vm, err := s.pageVM(snap)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := s.tmpl.ExecuteTemplate(&b, name, vm); err != nil {
		return "", err
	}
	return b.String(), nil
}

// handlePage serves "/", "/index.html" and "/<uuid>". The session's router
// decides what the path shows; if it moved elsewhere (unknown path, missing
// list) the browser is redirected there.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	rt := sess.ctrl.Router()

	rt.Replace(r.URL.Path)
	rt.Wait()

	if current := rt.CurrentPath(); current != r.URL.Path {
		http.Redirect(w, r, current, http.StatusSeeOther)
		return
	}

	html, err := s.render("page", sess.ctrl.Snapshot())
	if err != nil {
		s.logger.Error("failed to render page", slog.String("error", err.Error()))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

// handleEvents streams the session's view updates.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	events, cancel := sess.subscribe()
	defer cancel()

	sse := datastar.NewSSE(w, r)

	if err := s.patchApp(sse, sess.ctrl.Snapshot()); err != nil {
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-sse.Context().Done():
			return
		case <-s.ctx.Done():
			return
		case <-keepAlive.C:
			if err := sse.PatchSignals([]byte(`{}`)); err != nil {
				return
			}
		case e := <-events:
			if err := s.send(sse, e); err != nil {
				return
			}
		}
	}
}

func (s *Server) patchApp(sse *datastar.ServerSentEventGenerator, snap app.Snapshot) error {
	html, err := s.render("app", snap)
	if err != nil {
		s.logger.Error("failed to render view", slog.String("error", err.Error()))
		return sse.ExecuteScript("console.error(" + jsString(err.Error()) + ")")
	}
	return sse.PatchElements(html, datastar.WithSelector("#app"), datastar.WithMode(datastar.ElementPatchModeOuter))
}

func (s *Server) send(sse *datastar.ServerSentEventGenerator, e event) error {
	switch e.kind {
	case eventUpdate:
		return s.patchApp(sse, e.snapshot)
	case eventAlert, eventNotify:
		return sse.ExecuteScript("alert(" + jsString(e.text) + ")")
	case eventNavigate:
		return sse.ExecuteScript("(function(p){if(location.pathname!==p){history.pushState(null,'',p);}})(" + jsString(e.text) + ")")
	case eventScript:
		return sse.ExecuteScript(e.text)
	}
	return nil
}

// jsString quotes s as a JavaScript string literal that is safe inside a
// script element.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// act runs a controller action for a form post. What the action changes is
// delivered over the event stream, so the response is empty.
func (s *Server) act(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, c *app.Controller) error) {
	sess := s.sessions.get(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if err := fn(r.Context(), sess.ctrl); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func formID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(r.FormValue(key), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return id, nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		c.CreateWishlist(ctx, r.FormValue("name"))
		return nil
	})
}

func (s *Server) handleContinueRecent(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		c.ContinueRecent()
		return nil
	})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		c.GoHome(ctx)
		return nil
	})
}

func (s *Server) handleRenameWishlist(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		c.RenameWishlist(ctx, r.FormValue("name"))
		return nil
	})
}

func (s *Server) handleDeleteWishlist(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		c.DeleteWishlist(ctx)
		return nil
	})
}

func (s *Server) handleAddSublist(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		c.AddSublist(ctx, r.FormValue("name"))
		return nil
	})
}

func (s *Server) handleRenameSublist(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		id, err := formID(r, "sublist_id")
		if err != nil {
			return err
		}
		c.RenameSublist(ctx, id, r.FormValue("name"))
		return nil
	})
}

func (s *Server) handleDeleteSublist(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		id, err := formID(r, "sublist_id")
		if err != nil {
			return err
		}
		c.DeleteSublist(ctx, id)
		return nil
	})
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		id, err := formID(r, "sublist_id")
		if err != nil {
			return err
		}
		c.AddItem(ctx, id, r.FormValue("text"))
		return nil
	})
}

func (s *Server) handleEditItem(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		id, err := formID(r, "item_id")
		if err != nil {
			return err
		}
		c.EditItem(ctx, id, r.FormValue("text"))
		return nil
	})
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		id, err := formID(r, "item_id")
		if err != nil {
			return err
		}
		c.DeleteItem(ctx, id)
		return nil
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		id, err := formID(r, "item_id")
		if err != nil {
			return err
		}
		c.ToggleClaim(ctx, id, r.FormValue("claimant"))
		return nil
	})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		c.Share()
		return nil
	})
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		t := theme.Theme(r.FormValue("theme"))
		if t == "" || t == "toggle" {
			t = theme.Dark
			if s.deps.Theme.Theme() == theme.Dark {
				t = theme.Light
			}
		}
		if !t.Valid() {
			return errors.New("unknown theme")
		}
		c.SetTheme(t)
		return nil
	})
}

func (s *Server) handleLanguage(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		lang := i18n.Language(r.FormValue("language"))
		if !lang.Valid() {
			return errors.New("unknown language")
		}
		c.SetLanguage(lang)
		return nil
	})
}

// handlePop follows the browser's back/forward buttons.
func (s *Server) handlePop(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, c *app.Controller) error {
		path := r.FormValue("path")
		if !strings.HasPrefix(path, "/") {
			return errors.New("invalid path")
		}
		c.Router().Pop(path)
		return nil
	})
}

// handleExport downloads the open wishlist as JSON.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	name, data, ok := sess.ctrl.Export()
	if !ok {
		http.Error(w, "no wishlist open", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Write(data)
}

// handleImport takes an uploaded export file. It is a plain form post, so it
// answers with a redirect to wherever the controller ended up.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		sess.ctrl.Import(r.Context(), nil)
	case err != nil:
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	default:
		defer file.Close()
		sess.ctrl.Import(r.Context(), file)
	}

	http.Redirect(w, r, sess.ctrl.Router().CurrentPath(), http.StatusSeeOther)
}
