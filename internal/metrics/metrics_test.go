package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/wishlist/internal/changefeed"
)

type sink struct{ got []changefeed.Change }

func (s *sink) Publish(c changefeed.Change) { s.got = append(s.got, c) }

// scrape renders the registry the way Prometheus would fetch it.
func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPublisherCountsAndForwards(t *testing.T) {
	m := New()
	next := &sink{}
	pub := m.Publisher(next)

	pub.Publish(changefeed.Change{Table: changefeed.TableItems, Type: changefeed.Insert})
	pub.Publish(changefeed.Change{Table: changefeed.TableItems, Type: changefeed.Insert})
	pub.Publish(changefeed.Change{Table: changefeed.TableSublists, Type: changefeed.Delete})

	assert.Len(t, next.got, 3)
	out := scrape(t, m)
	assert.Contains(t, out, `wishlist_changes_published_total{table="items",type="INSERT"} 2`)
	assert.Contains(t, out, `wishlist_changes_published_total{table="sublists",type="DELETE"} 1`)
}

func TestRecordCleanup(t *testing.T) {
	m := New()

	m.RecordCleanup(4, nil)
	m.RecordCleanup(0, errors.New("locked"))

	out := scrape(t, m)
	assert.Contains(t, out, "wishlist_cleanup_deleted_wishlists_total 4")
	assert.Contains(t, out, `wishlist_cleanup_runs_total{outcome="ok"} 1`)
	assert.Contains(t, out, `wishlist_cleanup_runs_total{outcome="error"} 1`)
}

func TestTrackSubscribers(t *testing.T) {
	m := New()
	m.TrackSubscribers(func() int { return 7 })

	assert.Contains(t, scrape(t, m), "wishlist_realtime_subscriptions 7")
}
