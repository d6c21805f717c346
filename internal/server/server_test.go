package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noteease/internal/config"
	"noteease/internal/database"
	"noteease/internal/metrics"
	"noteease/internal/model"
	"noteease/internal/notes"
	"noteease/internal/server"
	nttestutil "noteease/internal/testutil"
)

const waitFor = 2 * time.Second

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

type harness struct {
	base     string
	shutdown func(t *testing.T)
	db       *database.SQLiteDatabase
	store    *notes.Store
	metrics  *metrics.NoteMetrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := nttestutil.NewTestDatabase(t)

	m, err := metrics.NewNoteMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	store, err := notes.NewStore(db, nil, notes.WithRecorder(m), notes.WithClock(nttestutil.FixedClock()))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sessions := func() (*notes.Store, error) {
		return notes.NewStore(db, nil)
	}

	cfg := config.ServerConfig{Addr: "127.0.0.1:0", PongWait: "2s", PingPeriod: "1s"}
	srv, err := server.New(store, sessions, m, notes.NewNopLogger(), cfg)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()
	var once sync.Once
	shutdown := func(t *testing.T) {
		once.Do(func() {
			cancel()
			require.NoError(t, <-served)
		})
	}
	t.Cleanup(func() { shutdown(t) })

	return &harness{
		base:     "http://" + ln.Addr().String(),
		shutdown: shutdown,
		db:       db,
		store:    store,
		metrics:  m,
	}
}

func (h *harness) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.base+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

func (h *harness) create(t *testing.T, title, content string) model.Note {
	t.Helper()
	status, body := h.do(t, http.MethodPost, "/api/v1/notes", map[string]any{"title": title, "content": content})
	require.Equal(t, http.StatusCreated, status, string(body))
	return decode[model.Note](t, body).Data
}

// visible polls the list endpoint until it returns n notes.
func (h *harness) visible(t *testing.T, path string, n int) []model.Note {
	t.Helper()
	var got []model.Note
	require.Eventually(t, func() bool {
		status, body := h.do(t, http.MethodGet, path, nil)
		if status != http.StatusOK {
			return false
		}
		got = decode[[]model.Note](t, body).Data
		return len(got) == n
	}, waitFor, 10*time.Millisecond)
	return got
}

func TestCreateAndGet(t *testing.T) {
	h := newHarness(t)

	n := h.create(t, "Groceries", "milk")
	assert.NotZero(t, n.ID)
	assert.Equal(t, "Groceries", n.Title)
	assert.Equal(t, model.DefaultColor, n.Color)
	assert.Equal(t, nttestutil.FixedClock().Now().UnixMilli(), n.Timestamp)

	status, body := h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/notes/%d", n.ID), nil)
	require.Equal(t, http.StatusOK, status)
	got := decode[model.Note](t, body)
	assert.True(t, got.Success)
	assert.Equal(t, n, got.Data)
}

func TestCreateWithColor(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodPost, "/api/v1/notes", map[string]any{
		"title": "t", "color": model.Palette[1], "is_pinned": true,
	})
	require.Equal(t, http.StatusCreated, status)

	n := decode[model.Note](t, body).Data
	assert.Equal(t, model.Palette[1], n.Color)
	assert.True(t, n.IsPinned)
}

func TestCreateRejectsBadRequests(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		body any
	}{
		{"blank note", map[string]any{"title": "", "content": ""}},
		{"malformed json", "{"},
		{"wrong field type", map[string]any{"title": 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := h.do(t, http.MethodPost, "/api/v1/notes", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			env := decode[any](t, body)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestMissingNote(t *testing.T) {
	h := newHarness(t)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		status, _ := h.do(t, method, "/api/v1/notes/999", nil)
		assert.Equal(t, http.StatusNotFound, status, method)
	}

	status, _ := h.do(t, http.MethodPut, "/api/v1/notes/999", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = h.do(t, http.MethodPost, "/api/v1/notes/999/pin", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdateNote(t *testing.T) {
	h := newHarness(t)
	n := h.create(t, "draft", "v1")

	status, body := h.do(t, http.MethodPut, fmt.Sprintf("/api/v1/notes/%d", n.ID), map[string]any{
		"title": "final", "content": "v2",
	})
	require.Equal(t, http.StatusOK, status, string(body))

	got := decode[model.Note](t, body).Data
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, "final", got.Title)
	assert.Equal(t, "v2", got.Content)
	assert.Equal(t, n.Color, got.Color)

	h.visible(t, "/api/v1/notes", 1)
}

func TestDeleteNote(t *testing.T) {
	h := newHarness(t)
	keep := h.create(t, "keep", "")
	drop := h.create(t, "drop", "")

	status, _ := h.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/notes/%d", drop.ID), nil)
	require.Equal(t, http.StatusOK, status)

	got := h.visible(t, "/api/v1/notes", 1)
	assert.Equal(t, keep.ID, got[0].ID)
}

func TestTogglePinAndPinnedList(t *testing.T) {
	h := newHarness(t)
	n := h.create(t, "pin me", "")

	status, body := h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/notes/%d/pin", n.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[model.Note](t, body).Data.IsPinned)

	pinned := h.visible(t, "/api/v1/notes/pinned", 1)
	assert.Equal(t, n.ID, pinned[0].ID)

	status, _ = h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/notes/%d/pin", n.ID), nil)
	require.Equal(t, http.StatusOK, status)
	h.visible(t, "/api/v1/notes/pinned", 0)
}

func TestListFiltersByQuery(t *testing.T) {
	h := newHarness(t)
	h.create(t, "Shopping", "eggs")
	h.create(t, "Work", "standup notes")
	h.create(t, "Ideas", "a shop for EGGS")

	h.visible(t, "/api/v1/notes", 3)

	got := h.visible(t, "/api/v1/notes?q=eggs", 2)
	for _, n := range got {
		assert.NotEqual(t, "Work", n.Title)
	}
	h.visible(t, "/api/v1/notes?q=%20%20", 3)
	h.visible(t, "/api/v1/notes?q=nothing", 0)

	// Per-request filtering leaves the shared query untouched.
	assert.Empty(t, h.store.SearchQuery())
}

func TestCopyNotes(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, "a", "1")
	b := h.create(t, "b", "2")

	status, body := h.do(t, http.MethodPost, "/api/v1/notes/copy", map[string]any{"ids": []int64{a.ID, b.ID}})
	require.Equal(t, http.StatusCreated, status, string(body))

	copied := decode[map[string][]int64](t, body).Data["ids"]
	require.Len(t, copied, 2)
	for _, id := range copied {
		assert.NotContains(t, []int64{a.ID, b.ID}, id)
	}
	h.visible(t, "/api/v1/notes", 4)
}

func TestBulkDelete(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, "a", "")
	b := h.create(t, "b", "")
	c := h.create(t, "c", "")

	status, _ := h.do(t, http.MethodPost, "/api/v1/notes/delete", map[string]any{"ids": []int64{a.ID, c.ID, 12345}})
	require.Equal(t, http.StatusOK, status)

	got := h.visible(t, "/api/v1/notes", 1)
	assert.Equal(t, b.ID, got[0].ID)
}

func TestIDListValidation(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/api/v1/notes/copy", "/api/v1/notes/delete", "/api/v1/notes/share"} {
		for _, body := range []any{map[string]any{"ids": []int64{}}, map[string]any{}, map[string]any{"ids": []int64{0}}} {
			status, _ := h.do(t, http.MethodPost, path, body)
			assert.Equal(t, http.StatusBadRequest, status, "%s %v", path, body)
		}
	}
}

func TestSharePayload(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, "First", "one")
	b := h.create(t, "Second", "two")

	status, body := h.do(t, http.MethodPost, "/api/v1/notes/share", map[string]any{"ids": []int64{b.ID, a.ID}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "First\none\n\nSecond\ntwo", decode[map[string]string](t, body).Data["payload"])
}

func TestStorageFailureIsServerError(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.db.Close())

	status, body := h.do(t, http.MethodGet, "/api/v1/notes/1", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "storage failure", decode[any](t, body).Error)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Close())

	status, _ := h.do(t, http.MethodPost, "/api/v1/notes", map[string]any{"title": "late"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.create(t, "counted", "")

	assert.Positive(t, testutil.CollectAndCount(h.metrics, "noteease_operation_duration_seconds"))

	status, body := h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `noteease_operations_total{operation="add_or_update",status="success"} 1`)
	assert.Contains(t, string(body), "noteease_live_sessions 0")
}

func TestNewRejectsBadTimings(t *testing.T) {
	_, err := server.New(nil, nil, nil, notes.NewNopLogger(), config.ServerConfig{
		Addr: "127.0.0.1:0", PongWait: "1s", PingPeriod: "2s",
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, notes.ErrStorage))
}
