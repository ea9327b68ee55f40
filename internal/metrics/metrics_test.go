package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-party-relay/internal/metrics"
)

func TestRoomGauges(t *testing.T) {
	m := metrics.New()
	m.RoomsChanged(3, 7)
	m.RoomsReaped(2)
	m.RoundResolved()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	expected := `
# HELP party_rooms_active Number of rooms currently in the directory.
# TYPE party_rooms_active gauge
party_rooms_active 3
# HELP party_players_active Number of players currently seated in rooms.
# TYPE party_players_active gauge
party_players_active 7
# HELP party_connections_active Number of open websocket connections.
# TYPE party_connections_active gauge
party_connections_active 1
# HELP party_rooms_reaped_total Empty rooms removed by the idle sweep.
# TYPE party_rooms_reaped_total counter
party_rooms_reaped_total 2
# HELP party_rounds_resolved_total Drawing rounds closed by a correct guess.
# TYPE party_rounds_resolved_total counter
party_rounds_resolved_total 1
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"party_rooms_active",
		"party_players_active",
		"party_connections_active",
		"party_rooms_reaped_total",
		"party_rounds_resolved_total",
	)
	assert.NoError(t, err)
}

func TestActionCounters(t *testing.T) {
	m := metrics.New()
	m.ActionAccepted("drawLine")
	m.ActionAccepted("drawLine")
	m.ActionDropped("drawLine", metrics.ReasonRateLimited)

	n, err := testutil.GatherAndCount(m.Registry(), "party_actions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = testutil.GatherAndCount(m.Registry(), "party_actions_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHandler(t *testing.T) {
	m := metrics.New()
	m.ActionAccepted("pongMove")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `party_actions_total{action="pongMove"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
