// Package metrics 以 Prometheus 暴露房間與連線指標
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 動作被丟棄的原因
const (
	ReasonRateLimited = "rate_limited"
	ReasonNotInRoom   = "not_in_room"
	ReasonWrongGame   = "wrong_game"
	ReasonBadPayload  = "bad_payload"
	ReasonFrameLimit  = "frame_limit"
)

// Metrics 服務指標，使用獨立的 Registry
type Metrics struct {
	registry *prometheus.Registry

	rooms          prometheus.Gauge
	players        prometheus.Gauge
	connections    prometheus.Gauge
	actions        *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	roundsResolved prometheus.Counter
	roomsReaped    prometheus.Counter
}

// New 建立並註冊所有指標
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "party_rooms_active",
			Help: "Number of rooms currently in the directory.",
		}),
		players: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "party_players_active",
			Help: "Number of players currently seated in rooms.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "party_connections_active",
			Help: "Number of open websocket connections.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "party_actions_total",
			Help: "Inbound actions accepted by the relay.",
		}, []string{"action"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "party_actions_dropped_total",
			Help: "Inbound actions dropped by the relay.",
		}, []string{"action", "reason"}),
		roundsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "party_rounds_resolved_total",
			Help: "Drawing rounds closed by a correct guess.",
		}),
		roomsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "party_rooms_reaped_total",
			Help: "Empty rooms removed by the idle sweep.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.rooms,
		m.players,
		m.connections,
		m.actions,
		m.dropped,
		m.roundsResolved,
		m.roomsReaped,
	)
	return m
}

// Handler 在 /metrics 暴露指標
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 返回底層 Registry（測試用）
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RoomsChanged 更新房間與玩家數
func (m *Metrics) RoomsChanged(rooms, players int) {
	m.rooms.Set(float64(rooms))
	m.players.Set(float64(players))
}

// RoomsReaped 累計被回收的房間
func (m *Metrics) RoomsReaped(n int) {
	m.roomsReaped.Add(float64(n))
}

// RoundResolved 累計猜中的回合
func (m *Metrics) RoundResolved() {
	m.roundsResolved.Inc()
}

// ConnectionOpened 連線數加一
func (m *Metrics) ConnectionOpened() { m.connections.Inc() }

// ConnectionClosed 連線數減一
func (m *Metrics) ConnectionClosed() { m.connections.Dec() }

// ActionAccepted 記錄被處理的動作
func (m *Metrics) ActionAccepted(action string) {
	m.actions.WithLabelValues(action).Inc()
}

// ActionDropped 記錄被丟棄的動作
func (m *Metrics) ActionDropped(action, reason string) {
	m.dropped.WithLabelValues(action, reason).Inc()
}
