package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/koopa0/system-design/14-party-relay/internal/room"
	apperrors "github.com/koopa0/system-design/14-party-relay/pkg/errors"
)

// Handler HTTP 請求處理器
type Handler struct {
	dir     *room.Directory
	hub     *Hub
	metrics http.Handler
	origins []string
	logger  *slog.Logger
}

// NewHandler 創建 HTTP 處理器；metrics 為 nil 時不掛 /metrics
func NewHandler(dir *room.Directory, hub *Hub, metrics http.Handler, origins []string, logger *slog.Logger) *Handler {
	return &Handler{
		dir:     dir,
		hub:     hub,
		metrics: metrics,
		origins: origins,
		logger:  logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	// WebSocket 需要原始的 ResponseWriter 才能 Hijack，不經過 loggerMiddleware
	mux.HandleFunc("GET /ws", h.recoverer(h.hub.ServeWS))

	mux.HandleFunc("GET /api/v1/rooms/{code}", wrap(h.getRoom))
	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: h.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

// roomResponse 加入前查詢房間用
type roomResponse struct {
	room.Snapshot
	Joinable bool `json:"joinable"`
}

// getRoom 依加入碼查詢房間
func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := h.dir.Lookup(r.PathValue("code"))
	if err != nil {
		h.errorResponse(w, apperrors.PublicMessage(err, MsgInternal), statusFor(err))
		return
	}

	h.jsonResponse(w, roomResponse{
		Snapshot: snap,
		Joinable: len(snap.Players) < snap.MaxPlayers,
	}, http.StatusOK)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.dir.Stats()
	stats["connections"] = h.hub.ConnectionCount()
	stats["room_connections"] = h.hub.RoomConnections()
	h.jsonResponse(w, stats, http.StatusOK)
}

// statusFor 錯誤碼對應的 HTTP 狀態
func statusFor(err error) int {
	switch {
	case apperrors.IsInvalidInput(err), apperrors.CodeOf(err) == apperrors.ErrCodeNameTaken:
		return http.StatusBadRequest
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsRoomFull(err):
		return http.StatusConflict
	case apperrors.IsUnauthorized(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, ErrorReply{Error: message}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, MsgInternal, http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
