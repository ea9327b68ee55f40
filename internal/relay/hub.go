package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/koopa0/system-design/14-party-relay/internal/metrics"
)

// 系統設計問題：
//   房間狀態與遊戲事件要即時推給同房間的所有瀏覽器。
//
// 設計方案：
//   - Hub 集中管理所有連線；連線只有一個房間標記，由 Directory 在成員變更時設定
//   - 每個連線一個緩衝 channel + writePump，推送永遠不阻塞呼叫者
//   - Ping/Pong 心跳偵測死連線
//   - 解碼前先過每連線的 token bucket，擋掉洪水式的訊息

// Dispatcher 處理連線上的事件
type Dispatcher interface {
	Dispatch(sess Session, env Envelope)
	Disconnected(sess Session)
}

// ConnObserver 連線層指標
type ConnObserver interface {
	ConnectionOpened()
	ConnectionClosed()
	ActionDropped(action, reason string)
}

type nopConnObserver struct{}

func (nopConnObserver) ConnectionOpened()            {}
func (nopConnObserver) ConnectionClosed()            {}
func (nopConnObserver) ActionDropped(string, string) {}

// HubConfig 傳輸層參數
type HubConfig struct {
	AllowedOrigins []string // 空或包含 "*" 表示不限制
	ReadLimit      int64
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	FrameRate      float64
	FrameBurst     int
	ReadBuffer     int
	WriteBuffer    int
}

// Hub WebSocket 連線中心
//
// 連線映射：
//   - conns: connID -> Connection
//   - rooms: code -> connID -> Connection，廣播時只走該房間
//
// 送出 channel 只在 mu 寫鎖下關閉，推送都在讀鎖下進行，不會寫入已關閉的 channel。
type Hub struct {
	cfg        HubConfig
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	dispatcher Dispatcher
	observer   ConnObserver

	mu     sync.RWMutex
	conns  map[string]*Connection
	rooms  map[string]map[string]*Connection
	closed bool

	wg sync.WaitGroup
}

// Connection 單一 WebSocket 連線
type Connection struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	room string // 受 hub.mu 保護

	frames    *rate.Limiter
	closeOnce sync.Once
}

// HubOption Hub 選項
type HubOption func(*Hub)

// WithConnObserver 注入連線指標
func WithConnObserver(o ConnObserver) HubOption {
	return func(h *Hub) { h.observer = o }
}

// NewHub 創建 WebSocket Hub；開始服務前必須先 Attach
func NewHub(cfg HubConfig, logger *slog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		cfg:      cfg,
		logger:   logger,
		observer: nopConnObserver{},
		conns:    make(map[string]*Connection),
		rooms:    make(map[string]map[string]*Connection),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  cfg.ReadBuffer,
		WriteBufferSize: cfg.WriteBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach 設定事件處理者
func (h *Hub) Attach(d Dispatcher) {
	h.dispatcher = d
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 || slices.Contains(h.cfg.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, origin)
}

// ServeWS 升級為 WebSocket 連線
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("升級 WebSocket 失敗", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := &Connection{
		ID:     uuid.NewString(),
		conn:   ws,
		send:   make(chan []byte, h.cfg.SendBuffer),
		hub:    h,
		frames: rate.NewLimiter(rate.Limit(h.cfg.FrameRate), h.cfg.FrameBurst),
	}
	if !h.register(c) {
		_ = ws.Close()
		return
	}

	go c.writePump()
	go c.readPump()

	h.Emit(c.ID, EventConnected, ConnectedPayload{ID: c.ID})
	h.logger.Info("WebSocket 連接建立", "conn_id", c.ID, "remote", r.RemoteAddr)
}

func (h *Hub) register(c *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.conns[c.ID] = c
	h.wg.Add(2) // readPump + writePump
	h.observer.ConnectionOpened()
	return true
}

// unregister 移除連線並關閉送出 channel
func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.conns[c.ID]; !ok || cur != c {
		return
	}
	delete(h.conns, c.ID)
	h.untagLocked(c)
	c.closeSend()
	h.observer.ConnectionClosed()
}

// Tag 讓連線接收房間廣播；已在其他房間時先移除
func (h *Hub) Tag(connID, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return
	}
	h.untagLocked(c)
	if h.rooms[code] == nil {
		h.rooms[code] = make(map[string]*Connection)
	}
	h.rooms[code][connID] = c
	c.room = code
}

// Untag 停止接收房間廣播
func (h *Hub) Untag(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.conns[connID]; ok {
		h.untagLocked(c)
	}
}

func (h *Hub) untagLocked(c *Connection) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

// Emit 推送給單一連線
func (h *Hub) Emit(connID, event string, payload any) {
	msg, err := encode(event, nil, payload)
	if err != nil {
		h.logger.Error("序列化事件失敗", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.conns[connID]; ok {
		h.enqueueLocked(c, event, msg)
	}
}

// Reply 回覆帶 ack 編號的請求
func (h *Hub) Reply(connID string, ack int64, payload any) {
	msg, err := encode(EventAck, &ack, payload)
	if err != nil {
		h.logger.Error("序列化 ack 失敗", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.conns[connID]; ok {
		h.enqueueLocked(c, EventAck, msg)
	}
}

// Broadcast 推送給房間內所有連線，except 非空時跳過該連線
func (h *Hub) Broadcast(code, event string, payload any, except string) {
	msg, err := encode(event, nil, payload)
	if err != nil {
		h.logger.Error("序列化事件失敗", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.rooms[code] {
		if id == except {
			continue
		}
		h.enqueueLocked(c, event, msg)
	}
}

// enqueueLocked 非阻塞送出；緩衝區滿時丟棄，慢客戶端不拖累整個房間
func (h *Hub) enqueueLocked(c *Connection, event string, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("連接緩衝區滿", "conn_id", c.ID, "event", event)
	}
}

// ConnectionCount 目前的連線數
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// RoomConnections 各房間的連線數
func (h *Hub) RoomConnections() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]int, len(h.rooms))
	for code, members := range h.rooms {
		out[code] = len(members)
	}
	return out
}

// Stop 停止接受新連線，關閉所有連線並等待讀寫 goroutine 結束
func (h *Hub) Stop() {
	h.mu.Lock()
	h.closed = true
	// 從映射移除後就不會再有人推送到已關閉的 channel
	for id, c := range h.conns {
		c.closeSend()
		delete(h.conns, id)
		h.observer.ConnectionClosed()
	}
	h.rooms = make(map[string]map[string]*Connection)
	h.mu.Unlock()

	h.wg.Wait()
	h.logger.Info("WebSocket Hub 已停止")
}

func (c *Connection) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump 讀取客戶端訊息
//
// 超過 PongWait 沒有收到任何資料（包括 Pong）就關閉連線；
// 配合 writePump 每 PingPeriod 一次的 Ping。
func (c *Connection) readPump() {
	h := c.hub
	defer func() {
		if h.dispatcher != nil {
			h.dispatcher.Disconnected(Session{ConnID: c.ID})
		}
		h.unregister(c)
		_ = c.conn.Close()
		h.wg.Done()
		h.logger.Info("WebSocket 連接關閉", "conn_id", c.ID)
	}()

	c.conn.SetReadLimit(h.cfg.ReadLimit)
	if err := c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait)); err != nil {
		h.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket 讀取錯誤", "error", err, "conn_id", c.ID)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !c.frames.Allow() {
			h.observer.ActionDropped("frame", metrics.ReasonFrameLimit)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			h.observer.ActionDropped("frame", metrics.ReasonBadPayload)
			h.logger.Debug("解析客戶端消息失敗", "conn_id", c.ID, "error", err)
			continue
		}
		if h.dispatcher != nil {
			h.dispatcher.Dispatch(Session{ConnID: c.ID}, env)
		}
	}
}

// writePump 把送出 channel 的訊息寫到連線，並定期送 Ping
func (c *Connection) writePump() {
	h := c.hub
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		h.wg.Done()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait)); err != nil {
				return
			}
			if !ok {
				// Hub 關閉了 channel
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 順便送出佇列中已有的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, next); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
