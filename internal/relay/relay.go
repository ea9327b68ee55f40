// Package relay 把 WebSocket 連線上的事件接到房間目錄與回合引擎，
// 並把遊戲事件轉發給同房間的其他連線。
package relay

import (
	"encoding/json"
	"log/slog"
	"runtime/debug"

	"github.com/koopa0/system-design/14-party-relay/internal/limiter"
	"github.com/koopa0/system-design/14-party-relay/internal/metrics"
	"github.com/koopa0/system-design/14-party-relay/internal/room"
	apperrors "github.com/koopa0/system-design/14-party-relay/pkg/errors"
)

// 回給客戶端的固定訊息
const (
	MsgInternal = "Внутренняя ошибка сервера"
	MsgShutdown = "Сервер перезапускается"
)

// Transport 傳輸層能力：房間推送再加上 ack 回覆
type Transport interface {
	room.Emitter
	// Reply 回覆帶 ack 編號的請求
	Reply(connID string, ack int64, payload any)
}

// ActionRecorder 記錄被處理與被丟棄的動作
type ActionRecorder interface {
	ActionAccepted(action string)
	ActionDropped(action, reason string)
}

type nopRecorder struct{}

func (nopRecorder) ActionAccepted(string)        {}
func (nopRecorder) ActionDropped(string, string) {}

type handlerFunc func(sess Session, env Envelope)

// forwardRule 單純轉發事件的規則
type forwardRule struct {
	kind   room.GameKind
	toAll  bool // false 時跳過發送者
	narrow func(sess Session, raw json.RawMessage) (any, bool)
}

// Relay 每條連線的事件處理
type Relay struct {
	dir     *room.Directory
	rounds  *room.RoundEngine
	limiter *limiter.Limiter
	limits  map[string]limiter.Rule
	out     Transport
	actions ActionRecorder
	logger  *slog.Logger

	handlers map[string]handlerFunc
	forwards map[string]forwardRule
}

// Option Relay 選項
type Option func(*Relay)

// WithActionRecorder 注入動作指標
func WithActionRecorder(rec ActionRecorder) Option {
	return func(r *Relay) { r.actions = rec }
}

// New 建立 Relay；limits 以事件名稱為鍵，缺少的事件不限流
func New(
	dir *room.Directory,
	rounds *room.RoundEngine,
	lim *limiter.Limiter,
	limits map[string]limiter.Rule,
	out Transport,
	logger *slog.Logger,
	opts ...Option,
) *Relay {
	r := &Relay{
		dir:     dir,
		rounds:  rounds,
		limiter: lim,
		limits:  limits,
		out:     out,
		actions: nopRecorder{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.handlers = map[string]handlerFunc{
		EventCreateRoom:    r.createRoom,
		EventJoinRoom:      r.joinRoom,
		EventLeaveRoom:     r.leaveRoom,
		EventDrawGameStart: r.drawGameStart,
		EventSetWord:       r.setWord,
		EventChatMsg:       r.chatMsg,
	}

	r.forwards = map[string]forwardRule{
		EventDrawLine:    {kind: room.KindDraw, narrow: narrowTo[drawLine]},
		EventClearCanvas: {kind: room.KindDraw, toAll: true},
		EventSnakeUpdate: {kind: room.KindSnake, narrow: narrowSnake},
		EventSnakeStart:  {kind: room.KindSnake, toAll: true},
		EventPongMove:    {kind: room.KindPong, narrow: narrowTo[pongMove]},
		EventPongBall:    {kind: room.KindPong, narrow: narrowTo[pongBall]},
		EventPongScore:   {kind: room.KindPong, toAll: true, narrow: narrowTo[pongScore]},
	}
	return r
}

// Dispatch 處理一則進站訊息
//
// 處理函式中的 panic 會被攔下並記錄；帶 ack 的請求會收到內部錯誤回覆。
func (r *Relay) Dispatch(sess Session, env Envelope) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("處理事件時發生 panic",
				"event", env.Event,
				"conn_id", sess.ConnID,
				"panic", v,
				"stack", string(debug.Stack()))
			r.reply(sess, env, ErrorReply{Error: MsgInternal})
		}
	}()

	if h, ok := r.handlers[env.Event]; ok {
		if r.allow(sess, env.Event) {
			h(sess, env)
		}
		return
	}
	if rule, ok := r.forwards[env.Event]; ok {
		r.forward(sess, env, rule)
		return
	}
	r.logger.Debug("忽略未知事件", "event", env.Event, "conn_id", sess.ConnID)
}

// allow 每連線每動作的限流；超出的動作靜默丟棄
func (r *Relay) allow(sess Session, event string) bool {
	if !r.limiter.AllowRule(sess.ConnID, event, r.limits[event]) {
		r.actions.ActionDropped(event, metrics.ReasonRateLimited)
		return false
	}
	r.actions.ActionAccepted(event)
	return true
}

// Disconnected 連線關閉：離開房間並清掉限流計數
func (r *Relay) Disconnected(sess Session) {
	r.leave(sess)
	r.limiter.Forget(sess.ConnID)
}

// Shutdown 通知所有房間伺服器即將關閉
func (r *Relay) Shutdown() {
	codes := r.dir.Codes()
	for _, code := range codes {
		r.out.Broadcast(code, room.EventServerShutdown, ShutdownPayload{Message: MsgShutdown}, "")
	}
	r.logger.Info("已通知所有房間關機", "rooms", len(codes))
}

func (r *Relay) createRoom(sess Session, env Envelope) {
	req, ok := decodeCreate(env.Data)
	if !ok {
		r.replyError(sess, env, room.ErrUnknownGameKind)
		return
	}
	if _, err := room.ParseGameKind(req.GameKind); err != nil {
		r.replyError(sess, env, err)
		return
	}

	r.leave(sess)
	snap, err := r.dir.CreateRoom(sess.ConnID, req.GameKind)
	if err != nil {
		r.replyError(sess, env, err)
		return
	}
	r.reply(sess, env, snap.Code)
}

func (r *Relay) joinRoom(sess Session, env Envelope) {
	req, ok := decodeJoin(env.Data)
	if !ok {
		r.replyError(sess, env, room.ErrInvalidRoomCode)
		return
	}

	// 目標房間的檢查全部通過才會離開原本的房間
	res, left, err := r.dir.SwitchRoom(sess.ConnID, req.Code, req.Name)
	if err != nil {
		r.replyError(sess, env, err)
		return
	}
	if left != nil {
		r.announceLeave(*left)
	}
	r.reply(sess, env, res)

	r.out.Broadcast(res.Code, room.EventPlayerJoined, room.Membership{
		ID:      res.Player.ID,
		Name:    res.Player.Name,
		Count:   len(res.Players),
		Players: res.Players,
	}, "")

	if res.Resumable {
		r.rounds.Resume(res.Code)
	}
}

func (r *Relay) leaveRoom(sess Session, env Envelope) {
	_, ok := r.leave(sess)
	r.reply(sess, env, map[string]bool{"left": ok})
}

// leave 離開目前的房間並通知其他人
func (r *Relay) leave(sess Session) (room.LeaveResult, bool) {
	res, ok := r.dir.Leave(sess.ConnID)
	if ok {
		r.announceLeave(res)
	}
	return res, ok
}

// announceLeave 通知原房間的其他人；房間已刪除時沒有人需要通知
func (r *Relay) announceLeave(res room.LeaveResult) {
	if res.Deleted {
		return
	}
	r.out.Broadcast(res.Code, room.EventPlayerLeft, room.Membership{
		ID:      res.Player.ID,
		Name:    res.Player.Name,
		Count:   res.Remaining,
		Players: res.Players,
	}, "")
	if res.NewHost != nil {
		r.out.Broadcast(res.Code, room.EventHostChanged, room.HostChange{
			ID:   res.NewHost.ID,
			Name: res.NewHost.Name,
		}, "")
	}
}

func (r *Relay) drawGameStart(sess Session, _ Envelope) {
	if err := r.rounds.StartGame(sess.ConnID); err != nil {
		r.logger.Debug("忽略開局請求", "conn_id", sess.ConnID, "error", err)
	}
}

func (r *Relay) setWord(sess Session, env Envelope) {
	word, ok := decodeString(env.Data)
	if !ok {
		r.actions.ActionDropped(env.Event, metrics.ReasonBadPayload)
		return
	}
	if err := r.rounds.SetWord(sess.ConnID, word); err != nil {
		r.logger.Debug("忽略出題請求", "conn_id", sess.ConnID, "error", err)
	}
}

func (r *Relay) chatMsg(sess Session, env Envelope) {
	text, ok := decodeString(env.Data)
	if !ok {
		r.actions.ActionDropped(env.Event, metrics.ReasonBadPayload)
		return
	}
	r.rounds.SubmitGuess(sess.ConnID, text)
}

// forward 轉發事件：成員資格 → 遊戲類型 → 限流 → 欄位白名單 → 廣播
func (r *Relay) forward(sess Session, env Envelope, rule forwardRule) {
	code, kind, ok := r.dir.Membership(sess.ConnID)
	if !ok {
		r.actions.ActionDropped(env.Event, metrics.ReasonNotInRoom)
		return
	}
	if kind != rule.kind {
		r.actions.ActionDropped(env.Event, metrics.ReasonWrongGame)
		return
	}
	if !r.allow(sess, env.Event) {
		return
	}

	var payload any
	if rule.narrow != nil {
		if payload, ok = rule.narrow(sess, env.Data); !ok {
			r.actions.ActionDropped(env.Event, metrics.ReasonBadPayload)
			return
		}
	}

	except := sess.ConnID
	if rule.toAll {
		except = ""
	}
	r.out.Broadcast(code, env.Event, payload, except)
}

func narrowTo[T any](_ Session, raw json.RawMessage) (any, bool) {
	v, ok := decodeObject[T](raw)
	if !ok {
		return nil, false
	}
	return v, true
}

// narrowSnake 以連線 ID 覆蓋客戶端自報的 id
func narrowSnake(sess Session, raw json.RawMessage) (any, bool) {
	v, ok := decodeObject[snakeUpdate](raw)
	if !ok {
		return nil, false
	}
	v.ID = sess.ConnID
	return v, true
}

func (r *Relay) reply(sess Session, env Envelope, payload any) {
	if env.Ack == nil {
		return
	}
	r.out.Reply(sess.ConnID, *env.Ack, payload)
}

func (r *Relay) replyError(sess Session, env Envelope, err error) {
	if apperrors.CodeOf(err) == apperrors.ErrCodeInternal {
		r.logger.Error("處理請求失敗", "event", env.Event, "conn_id", sess.ConnID, "error", err)
	}
	r.reply(sess, env, ErrorReply{Error: apperrors.PublicMessage(err, MsgInternal)})
}
