package room

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/koopa0/system-design/14-party-relay/pkg/clock"
	apperrors "github.com/koopa0/system-design/14-party-relay/pkg/errors"
	"github.com/koopa0/system-design/14-party-relay/pkg/roomcode"
)

// Config 房間參數
type Config struct {
	MaxPlayers    int
	IdleTTL       time.Duration // 空房間閒置多久後回收
	SweepInterval time.Duration // 回收掃描週期
	RevealDelay   time.Duration // 猜中後到下一回合的延遲
	CodeAttempts  int           // 加入碼碰撞時的重試上限
}

// DefaultConfig 預設參數
func DefaultConfig() Config {
	return Config{
		MaxPlayers:    4,
		IdleTTL:       10 * time.Minute,
		SweepInterval: 5 * time.Minute,
		RevealDelay:   4 * time.Second,
		CodeAttempts:  16,
	}
}

// CodeGenerator 產生加入碼
type CodeGenerator interface {
	Generate() (string, error)
}

// Directory 全程序唯一的房間目錄
//
// 所有房間、玩家與回合狀態都由 mu 保護，每個公開方法就是一個完整交易；
// 輪替排程觸發時同樣先取得 mu 再重新確認房間狀態。
type Directory struct {
	cfg      Config
	codes    CodeGenerator
	clock    clock.Clock
	emit     Emitter
	observer Observer
	logger   *slog.Logger

	mu     sync.Mutex
	rooms  map[string]*Room  // code -> Room
	byConn map[string]string // connID -> code
}

// Option 目錄選項
type Option func(*Directory)

// WithClock 注入時鐘
func WithClock(c clock.Clock) Option {
	return func(d *Directory) { d.clock = c }
}

// WithCodeGenerator 注入加入碼產生器
func WithCodeGenerator(g CodeGenerator) Option {
	return func(d *Directory) { d.codes = g }
}

// WithObserver 注入指標觀察者
func WithObserver(o Observer) Option {
	return func(d *Directory) { d.observer = o }
}

// NewDirectory 創建房間目錄
func NewDirectory(cfg Config, emit Emitter, logger *slog.Logger, opts ...Option) *Directory {
	d := &Directory{
		cfg:      cfg,
		codes:    roomcode.NewGenerator(),
		clock:    clock.New(),
		emit:     emit,
		observer: nopObserver{},
		logger:   logger,
		rooms:    make(map[string]*Room),
		byConn:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config 返回目錄參數
func (d *Directory) Config() Config { return d.cfg }

// CreateRoom 建立房間，建房者自動命名並成為房主
func (d *Directory) CreateRoom(connID, gameKind string) (Snapshot, error) {
	kind, err := ParseGameKind(gameKind)
	if err != nil {
		return Snapshot{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byConn[connID]; exists {
		return Snapshot{}, ErrAlreadyInRoom
	}

	code, err := d.allocateCodeLocked()
	if err != nil {
		return Snapshot{}, err
	}

	// 房間完整建好、連線也標記完成之後才登記
	now := d.clock.Now()
	r := newRoom(code, kind, &Player{ID: connID, Name: defaultName(1)}, now)
	d.emit.Tag(connID, code)
	d.rooms[code] = r
	d.byConn[connID] = code
	d.reportLocked()

	d.logger.Info("房間已創建",
		"room_code", code,
		"game_kind", kind,
		"host", connID)

	return r.snapshot(d.cfg.MaxPlayers), nil
}

// allocateCodeLocked 產生未被使用的加入碼
func (d *Directory) allocateCodeLocked() (string, error) {
	for attempt := 0; attempt < d.cfg.CodeAttempts; attempt++ {
		code, err := d.codes.Generate()
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "генерация кода комнаты")
		}
		if _, taken := d.rooms[code]; !taken {
			return code, nil
		}
		d.logger.Debug("加入碼碰撞，重試", "room_code", code, "attempt", attempt+1)
	}
	return "", ErrCodeExhausted.WithDetails(fmt.Sprintf("%d attempts", d.cfg.CodeAttempts))
}

// JoinResult 加入房間的結果
type JoinResult struct {
	Code        string       `json:"code"`
	Kind        GameKind     `json:"gameKind"`
	PlayerIndex int          `json:"playerIndex"`
	Player      PlayerView   `json:"player"`
	Players     []PlayerView `json:"players"`
	// Resumable 暫停中的你畫我猜因這次加入而湊滿兩人，呼叫者應觸發 RoundEngine.Resume
	Resumable bool `json:"-"`
}

// JoinRoom 加入房間
//
// 檢查順序：加入碼格式 → 房間存在 → 容量 → 名稱長度 → 名稱重複。
// 失敗時房間不會有任何變更。
func (d *Directory) JoinRoom(connID, code, proposedName string) (JoinResult, error) {
	code = roomcode.Normalize(code)
	if !roomcode.Validate(code) {
		return JoinResult{}, ErrInvalidRoomCode
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byConn[connID]; exists {
		return JoinResult{}, ErrAlreadyInRoom
	}
	r, name, err := d.admitLocked(code, proposedName)
	if err != nil {
		return JoinResult{}, err
	}
	return d.joinLocked(connID, r, name), nil
}

// SwitchRoom 加入房間；已在其他房間時，目標房間的所有檢查都通過後才離開原房間
//
// left 非 nil 表示離開了原房間，呼叫者負責通知原房間的其他人。
// 任何檢查失敗時兩個房間都不會有變更。
func (d *Directory) SwitchRoom(connID, code, proposedName string) (JoinResult, *LeaveResult, error) {
	code = roomcode.Normalize(code)
	if !roomcode.Validate(code) {
		return JoinResult{}, nil, ErrInvalidRoomCode
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	current, in := d.byConn[connID]
	if in && current == code {
		return JoinResult{}, nil, ErrAlreadyInRoom
	}
	r, name, err := d.admitLocked(code, proposedName)
	if err != nil {
		return JoinResult{}, nil, err
	}
	var left *LeaveResult
	if in {
		if lr, ok := d.leaveLocked(connID); ok {
			left = &lr
		}
	}
	return d.joinLocked(connID, r, name), left, nil
}

// admitLocked 加入前的檢查：房間存在、容量、名稱
func (d *Directory) admitLocked(code, proposedName string) (*Room, string, error) {
	r, ok := d.rooms[code]
	if !ok {
		return nil, "", ErrRoomNotFound
	}
	if len(r.Players) >= d.cfg.MaxPlayers {
		return nil, "", ErrRoomFull
	}

	name := SanitizeName(proposedName)
	if !validName(name) {
		return nil, "", ErrInvalidName
	}
	if r.nameTaken(name) {
		return nil, "", ErrNameTaken
	}
	return r, name, nil
}

// joinLocked 標記連線後才把玩家放進房間
func (d *Directory) joinLocked(connID string, r *Room, name string) JoinResult {
	d.emit.Tag(connID, r.Code)
	r.Players = append(r.Players, &Player{ID: connID, Name: name})
	r.touch(d.clock.Now())
	d.byConn[connID] = r.Code
	d.reportLocked()

	d.logger.Info("玩家加入房間",
		"room_code", r.Code,
		"conn_id", connID,
		"player_name", name,
		"players", len(r.Players))

	views := r.views()
	return JoinResult{
		Code:        r.Code,
		Kind:        r.Kind,
		PlayerIndex: len(r.Players) - 1,
		Player:      views[len(views)-1],
		Players:     views,
		Resumable:   r.Round != nil && r.Round.Paused && len(r.Players) >= 2,
	}
}

// LeaveResult 離開房間的結果
type LeaveResult struct {
	Code      string
	Player    PlayerView
	Players   []PlayerView // 離開後的玩家
	NewHost   *PlayerView  // 房主有變更時非 nil
	Deleted   bool         // 最後一人離開，房間已刪除
	Remaining int
}

// Leave 連線離開所在房間；不在任何房間時 ok 為 false
func (d *Directory) Leave(connID string) (LeaveResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.leaveLocked(connID)
}

func (d *Directory) leaveLocked(connID string) (LeaveResult, bool) {
	code, ok := d.byConn[connID]
	if !ok {
		return LeaveResult{}, false
	}
	delete(d.byConn, connID)
	d.emit.Untag(connID)

	r, ok := d.rooms[code]
	if !ok {
		return LeaveResult{}, false
	}

	removed, newHost := r.removePlayer(connID)
	if removed == nil {
		return LeaveResult{}, false
	}
	r.touch(d.clock.Now())

	res := LeaveResult{
		Code:      code,
		Player:    PlayerView{ID: removed.ID, Name: removed.Name, Score: removed.Score},
		Players:   r.views(),
		Remaining: len(r.Players),
	}
	if newHost != nil {
		res.NewHost = &PlayerView{ID: newHost.ID, Name: newHost.Name, Score: newHost.Score, Host: true}
		d.logger.Info("房主轉移", "room_code", code, "new_host", newHost.ID)
	}

	if len(r.Players) == 0 {
		d.removeRoomLocked(r)
		res.Deleted = true
	}
	d.reportLocked()

	d.logger.Info("玩家離開房間",
		"room_code", code,
		"conn_id", connID,
		"remaining", res.Remaining)

	return res, true
}

// SweepStale 回收沒有玩家且閒置超過 IdleTTL 的房間
func (d *Directory) SweepStale(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	reaped := 0
	for _, r := range d.rooms {
		if len(r.Players) == 0 && now.Sub(r.LastActiveAt) > d.cfg.IdleTTL {
			d.removeRoomLocked(r)
			reaped++
		}
	}
	if reaped > 0 {
		d.reportLocked()
		d.observer.RoomsReaped(reaped)
		d.logger.Info("回收閒置房間", "count", reaped)
	}
	return reaped
}

// Run 定期執行 SweepStale，直到 ctx 結束
func (d *Directory) Run(ctx context.Context) {
	ticker := d.clock.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			d.SweepStale(d.clock.Now())
		case <-ctx.Done():
			return
		}
	}
}

// removeRoomLocked 刪除房間並取消尚未觸發的輪替
func (d *Directory) removeRoomLocked(r *Room) {
	r.cancelTask()
	for _, p := range r.Players {
		delete(d.byConn, p.ID)
		d.emit.Untag(p.ID)
	}
	delete(d.rooms, r.Code)
	d.logger.Info("房間已移除", "room_code", r.Code)
}

// Lookup 依加入碼取得房間快照
func (d *Directory) Lookup(code string) (Snapshot, error) {
	code = roomcode.Normalize(code)
	if !roomcode.Validate(code) {
		return Snapshot{}, ErrInvalidRoomCode
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[code]
	if !ok {
		return Snapshot{}, ErrRoomNotFound
	}
	return r.snapshot(d.cfg.MaxPlayers), nil
}

// Membership 連線所在的房間與遊戲類型
func (d *Directory) Membership(connID string) (code string, kind GameKind, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	code, ok = d.byConn[connID]
	if !ok {
		return "", "", false
	}
	r, ok := d.rooms[code]
	if !ok {
		return "", "", false
	}
	return code, r.Kind, true
}

// Codes 目前所有房間的加入碼（已排序）
func (d *Directory) Codes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	codes := make([]string, 0, len(d.rooms))
	for code := range d.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Close 取消所有尚未觸發的輪替（關機時呼叫）
func (d *Directory) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range d.rooms {
		r.cancelTask()
	}
	d.logger.Info("房間目錄已停止", "rooms", len(d.rooms))
}

// Stats 統計資訊
func (d *Directory) Stats() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	kindCount := make(map[GameKind]int)
	totalPlayers := 0
	for _, r := range d.rooms {
		kindCount[r.Kind]++
		totalPlayers += len(r.Players)
	}

	return map[string]any{
		"total_rooms":   len(d.rooms),
		"total_players": totalPlayers,
		"by_kind":       kindCount,
	}
}

func (d *Directory) reportLocked() {
	players := 0
	for _, r := range d.rooms {
		players += len(r.Players)
	}
	d.observer.RoomsChanged(len(d.rooms), players)
}
