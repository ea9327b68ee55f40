package room

import (
	"strings"
	"time"

	"github.com/koopa0/system-design/14-party-relay/pkg/clock"
)

// 系統設計問題：
//   幾個瀏覽器小遊戲共用同一套「房間」：短碼加入、最多 4 人、房主可轉移。
//   只有你畫我猜有真正的伺服器端規則（出題、提示、計分、輪替）。
//
// 設計方案：
//   - Room 本身不加鎖，所有變更都在 Directory.mu 之下執行，一次操作就是一個交易
//   - 玩家用 slice 保存，索引就是輪替順序
//   - 輪替用房間自己持有的可取消排程，刪房時主動取消

// GameKind 遊戲類型
type GameKind string

const (
	KindDraw  GameKind = "draw"  // 你畫我猜
	KindSnake GameKind = "snake" // 貪食蛇
	KindPong  GameKind = "pong"  // 乒乓
)

// ParseGameKind 解析遊戲類型
func ParseGameKind(s string) (GameKind, error) {
	switch k := GameKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindDraw, KindSnake, KindPong:
		return k, nil
	default:
		return "", ErrUnknownGameKind
	}
}

// Phase 你畫我猜的回合狀態
//
//	NoRound → AwaitingWord → ActiveRound → RoundResolved → AwaitingWord → ...
//
// StartGame 在任何狀態下都會回到 AwaitingWord。
type Phase int

const (
	PhaseNoRound       Phase = iota // 房主尚未開局
	PhaseAwaitingWord               // 已選出畫手，等待出題
	PhaseActiveRound                // 題目已設定，開放猜題
	PhaseRoundResolved              // 已猜中，等待輪替
)

func (p Phase) String() string {
	switch p {
	case PhaseNoRound:
		return "no_round"
	case PhaseAwaitingWord:
		return "awaiting_word"
	case PhaseActiveRound:
		return "active_round"
	case PhaseRoundResolved:
		return "round_resolved"
	default:
		return "unknown"
	}
}

// RoundState 你畫我猜的回合資料
type RoundState struct {
	Phase       Phase
	Word        string // 只在 ActiveRound 期間非空
	DrawerIndex int
	Number      int
	Paused      bool // 輪替時人數不足，等待開局或有人加入

	task    clock.Timer
	taskSeq uint64
}

// Room 遊戲房間
type Room struct {
	Code         string
	Kind         GameKind
	Players      []*Player // 加入順序 = 輪替順序
	HostID       string
	Round        *RoundState // 只有 draw 房間有
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// newRoom 建立只有建房者一人的房間
func newRoom(code string, kind GameKind, creator *Player, now time.Time) *Room {
	r := &Room{
		Code:         code,
		Kind:         kind,
		Players:      []*Player{creator},
		HostID:       creator.ID,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if kind == KindDraw {
		r.Round = &RoundState{Phase: PhaseNoRound}
	}
	return r
}

func (r *Room) touch(now time.Time) {
	r.LastActiveAt = now
}

func (r *Room) indexOf(id string) int {
	for i, p := range r.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (r *Room) player(id string) *Player {
	if i := r.indexOf(id); i >= 0 {
		return r.Players[i]
	}
	return nil
}

func (r *Room) nameTaken(name string) bool {
	for _, p := range r.Players {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

// drawer 目前的畫手；畫手離開後索引可能越界，此時返回 nil
func (r *Room) drawer() *Player {
	if r.Round == nil {
		return nil
	}
	i := r.Round.DrawerIndex
	if i < 0 || i >= len(r.Players) {
		return nil
	}
	return r.Players[i]
}

// removePlayer 移除玩家；房主離開且還有人時，索引 0 的玩家接任
func (r *Room) removePlayer(id string) (removed *Player, newHost *Player) {
	i := r.indexOf(id)
	if i < 0 {
		return nil, nil
	}
	removed = r.Players[i]
	r.Players = append(r.Players[:i], r.Players[i+1:]...)

	if r.HostID == id && len(r.Players) > 0 {
		newHost = r.Players[0]
		r.HostID = newHost.ID
	}
	return removed, newHost
}

// cancelTask 取消尚未觸發的輪替排程
func (r *Room) cancelTask() {
	if r.Round == nil {
		return
	}
	if r.Round.task != nil {
		r.Round.task.Stop()
		r.Round.task = nil
	}
	// 已經在觸發中的回呼會因序號不符而放棄
	r.Round.taskSeq++
}

func (r *Room) views() []PlayerView {
	out := make([]PlayerView, len(r.Players))
	for i, p := range r.Players {
		out[i] = PlayerView{ID: p.ID, Name: p.Name, Score: p.Score, Host: p.ID == r.HostID}
	}
	return out
}

// RoundView 回合狀態快照；不包含題目
type RoundView struct {
	Phase       string `json:"phase"`
	DrawerIndex int    `json:"drawerIndex"`
	Number      int    `json:"round"`
	Paused      bool   `json:"paused"`
}

// Snapshot 房間快照，可以在鎖外安全使用
type Snapshot struct {
	Code         string       `json:"code"`
	Kind         GameKind     `json:"gameKind"`
	HostID       string       `json:"hostId"`
	Players      []PlayerView `json:"players"`
	MaxPlayers   int          `json:"maxPlayers"`
	Round        *RoundView   `json:"round,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastActiveAt time.Time    `json:"lastActiveAt"`
}

func (r *Room) snapshot(maxPlayers int) Snapshot {
	s := Snapshot{
		Code:         r.Code,
		Kind:         r.Kind,
		HostID:       r.HostID,
		Players:      r.views(),
		MaxPlayers:   maxPlayers,
		CreatedAt:    r.CreatedAt,
		LastActiveAt: r.LastActiveAt,
	}
	if r.Round != nil {
		s.Round = &RoundView{
			Phase:       r.Round.Phase.String(),
			DrawerIndex: r.Round.DrawerIndex,
			Number:      r.Round.Number,
			Paused:      r.Round.Paused,
		}
	}
	return s
}
