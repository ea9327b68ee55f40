package relay_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-party-relay/internal/relay"
	"github.com/koopa0/system-design/14-party-relay/internal/room"
	"github.com/koopa0/system-design/14-party-relay/pkg/logger"
)

type routesEnv struct {
	routes http.Handler
	dir    *room.Directory
}

func newRoutes(t *testing.T, metricsHandler http.Handler) routesEnv {
	t.Helper()
	log := logger.Discard()
	hub := relay.NewHub(testHubConfig(), log)
	dir := room.NewDirectory(room.DefaultConfig(), hub, log)
	h := relay.NewHandler(dir, hub, metricsHandler, []string{"https://party.example"}, log)
	return routesEnv{routes: h.Routes(), dir: dir}
}

func (e routesEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.routes.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	e := newRoutes(t, nil)
	rec := e.get(t, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestStatsEndpoint(t *testing.T) {
	e := newRoutes(t, nil)
	_, err := e.dir.CreateRoom("c1", "draw")
	require.NoError(t, err)

	rec := e.get(t, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["total_rooms"])
	assert.EqualValues(t, 0, body["connections"])
	assert.Equal(t, map[string]any{}, body["room_connections"])
}

func TestGetRoom(t *testing.T) {
	e := newRoutes(t, nil)
	snap, err := e.dir.CreateRoom("c1", "pong")
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "found", path: "/api/v1/rooms/" + snap.Code, status: http.StatusOK},
		{name: "lowercase code", path: "/api/v1/rooms/" + strings.ToLower(snap.Code), status: http.StatusOK},
		{name: "unknown", path: "/api/v1/rooms/ZZZZZZ", status: http.StatusNotFound},
		{name: "malformed", path: "/api/v1/rooms/abc", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.get(t, tt.path)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	rec := e.get(t, "/api/v1/rooms/"+snap.Code)
	var body struct {
		Code       string `json:"code"`
		GameKind   string `json:"gameKind"`
		MaxPlayers int    `json:"maxPlayers"`
		Joinable   bool   `json:"joinable"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, snap.Code, body.Code)
	assert.Equal(t, "pong", body.GameKind)
	assert.Equal(t, 4, body.MaxPlayers)
	assert.True(t, body.Joinable)

	rec = e.get(t, "/api/v1/rooms/ZZZZZZ")
	var errBody relay.ErrorReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, room.ErrRoomNotFound.Message, errBody.Error)
}

func TestMetricsRoute(t *testing.T) {
	t.Run("mounted", func(t *testing.T) {
		e := newRoutes(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "relay_up 1\n")
		}))
		rec := e.get(t, "/metrics")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "relay_up")
	})

	t.Run("absent", func(t *testing.T) {
		e := newRoutes(t, nil)
		assert.Equal(t, http.StatusNotFound, e.get(t, "/metrics").Code)
	})
}

func TestCORS(t *testing.T) {
	e := newRoutes(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://party.example")
	rec := httptest.NewRecorder()
	e.routes.ServeHTTP(rec, req)
	assert.Equal(t, "https://party.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	e.routes.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
