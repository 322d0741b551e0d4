package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/wishlist/internal/app"
)

const (
	sessionCookie = "wishlist_session"
	// maxPending bounds events kept for a session with no open stream.
	maxPending = 16
	// streamBuffer is each stream's event buffer.
	streamBuffer = 32
)

type eventKind int

const (
	eventUpdate eventKind = iota
	eventAlert
	eventNotify
	eventNavigate
	eventScript
)

// event is one thing the controller wants shown in the browser.
type event struct {
	kind     eventKind
	snapshot app.Snapshot
	text     string
}

// session is one browser's controller plus the SSE streams watching it.
type session struct {
	id     string
	ctrl   *app.Controller
	logger *slog.Logger

	mu       sync.Mutex
	streams  map[chan event]struct{}
	pending  []event
	lastSeen time.Time
}

// sessionView adapts a session to app.View.
type sessionView struct{ s *session }

func (v sessionView) Update(s app.Snapshot) { v.s.emit(event{kind: eventUpdate, snapshot: s}) }
func (v sessionView) Alert(m string)        { v.s.emit(event{kind: eventAlert, text: m}) }
func (v sessionView) Notify(m string)       { v.s.emit(event{kind: eventNotify, text: m}) }
func (v sessionView) Navigate(p string)     { v.s.emit(event{kind: eventNavigate, text: p}) }
func (v sessionView) RunScript(js string)   { v.s.emit(event{kind: eventScript, text: js}) }

// emit fans e out to every open stream. Without a stream, messages are held
// until one connects; snapshots are not, since a new stream renders afresh.
func (s *session) emit(e event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.streams) == 0 {
		if e.kind == eventUpdate {
			return
		}
		if len(s.pending) == maxPending {
			s.pending = s.pending[1:]
		}
		s.pending = append(s.pending, e)
		return
	}

	for ch := range s.streams {
		select {
		case ch <- e:
		default:
			s.logger.Warn("dropping event for slow stream", slog.String("session", s.id))
		}
	}
}

// subscribe opens a stream, handing it anything held back.
func (s *session) subscribe() (<-chan event, func()) {
	ch := make(chan event, streamBuffer)

	s.mu.Lock()
	for _, e := range s.pending {
		ch <- e
	}
	s.pending = nil
	s.streams[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.streams, ch)
		s.mu.Unlock()
	}
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// idle reports whether the session has no stream and was last seen before
// cutoff.
func (s *session) idle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams) == 0 && s.lastSeen.Before(cutoff)
}

// sessions is the set of live sessions, keyed by cookie value.
type sessions struct {
	mu      sync.Mutex
	byID    map[string]*session
	newCtrl func(view app.View) *app.Controller
	logger  *slog.Logger
	now     func() time.Time
}

func newSessions(newCtrl func(app.View) *app.Controller, logger *slog.Logger) *sessions {
	return &sessions{
		byID:    map[string]*session{},
		newCtrl: newCtrl,
		logger:  logger,
		now:     time.Now,
	}
}

// get returns the request's session, creating one (and its cookie) if the
// request has none or an unknown one.
func (ss *sessions) get(w http.ResponseWriter, r *http.Request) *session {
	if c, err := r.Cookie(sessionCookie); err == nil {
		ss.mu.Lock()
		s, ok := ss.byID[c.Value]
		ss.mu.Unlock()
		if ok {
			s.touch(ss.now())
			return s
		}
	}

	s := &session{
		id:       xid.New().String(),
		logger:   ss.logger,
		streams:  map[chan event]struct{}{},
		lastSeen: ss.now(),
	}
	s.ctrl = ss.newCtrl(sessionView{s: s})

	ss.mu.Lock()
	ss.byID[s.id] = s
	ss.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	ss.logger.Debug("session started", slog.String("session", s.id))
	return s
}

// lookup returns an existing session without creating one.
func (ss *sessions) lookup(r *http.Request) (*session, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.byID[c.Value]
	if ok {
		s.touch(ss.now())
	}
	return s, ok
}

// reap closes sessions idle for longer than maxIdle.
func (ss *sessions) reap(ctx context.Context, maxIdle time.Duration) int {
	cutoff := ss.now().Add(-maxIdle)

	ss.mu.Lock()
	var stale []*session
	for id, s := range ss.byID {
		if s.idle(cutoff) {
			stale = append(stale, s)
			delete(ss.byID, id)
		}
	}
	ss.mu.Unlock()

	for _, s := range stale {
		if err := s.ctrl.Close(ctx); err != nil {
			ss.logger.Warn("failed to close session",
				slog.String("session", s.id),
				slog.String("error", err.Error()),
			)
		}
	}
	return len(stale)
}

// closeAll closes every session.
func (ss *sessions) closeAll(ctx context.Context) {
	ss.mu.Lock()
	all := ss.byID
	ss.byID = map[string]*session{}
	ss.mu.Unlock()

	for _, s := range all {
		s.ctrl.Close(ctx)
	}
}
