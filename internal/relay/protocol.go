package relay

import (
	"bytes"
	"encoding/json"
)

// 客戶端送來的事件
const (
	EventCreateRoom    = "createRoom"
	EventJoinRoom      = "joinRoom"
	EventLeaveRoom     = "leaveRoom"
	EventDrawGameStart = "drawGameStart"
	EventSetWord       = "setWord"
	EventChatMsg       = "chatMsg"
	EventDrawLine      = "drawLine"
	EventClearCanvas   = "clearCanvas"
	EventSnakeUpdate   = "snakeUpdate"
	EventSnakeStart    = "snakeStart"
	EventPongMove      = "pongMove"
	EventPongBall      = "pongBall"
	EventPongScore     = "pongScore"
)

// 只由伺服器送出的事件
const (
	EventConnected = "connected"
	EventAck       = "ack"
)

// Session 每個處理函式都會拿到的連線上下文
//
// 房間成員資格不存在 Session 上，一律向 Directory 查詢。
type Session struct {
	ConnID string
}

// Envelope 進出站共用的訊息格式
//
//	{"event": "joinRoom", "ack": 3, "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outbound 出站訊息，Data 直接序列化
type outbound struct {
	Event string `json:"event"`
	Ack   *int64 `json:"ack,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func encode(event string, ack *int64, data any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Ack: ack, Data: data})
}

// ErrorReply 透過 ack 回傳的錯誤
type ErrorReply struct {
	Error string `json:"error"`
}

// ConnectedPayload connected 事件內容
type ConnectedPayload struct {
	ID string `json:"id"`
}

// ShutdownPayload serverShutdown 事件內容
type ShutdownPayload struct {
	Message string `json:"message"`
}

// 轉發事件的欄位白名單；未列出的欄位一律丟掉

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type drawLine struct {
	From  point   `json:"from"`
	To    point   `json:"to"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`
}

type snakeUpdate struct {
	ID        string  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction string  `json:"direction"`
}

type pongMove struct {
	Y          float64 `json:"y"`
	PlayerSlot int     `json:"playerSlot"`
}

type pongBall struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

type pongScore struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// joinRequest joinRoom 的內容；也接受只有加入碼的字串
type joinRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// createRequest createRoom 的內容；也接受只有遊戲類型的字串
type createRequest struct {
	GameKind string `json:"gameKind"`
}

// decodeObject 解析 JSON 物件，不是物件就失敗
func decodeObject[T any](raw json.RawMessage) (T, bool) {
	var v T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return v, false
	}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return v, false
	}
	return v, true
}

// decodeString 解析 JSON 字串
func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func decodeCreate(raw json.RawMessage) (createRequest, bool) {
	if s, ok := decodeString(raw); ok {
		return createRequest{GameKind: s}, true
	}
	return decodeObject[createRequest](raw)
}

func decodeJoin(raw json.RawMessage) (joinRequest, bool) {
	if s, ok := decodeString(raw); ok {
		return joinRequest{Code: s}, true
	}
	return decodeObject[joinRequest](raw)
}
