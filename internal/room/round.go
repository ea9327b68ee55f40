package room

import (
	"strings"
	"unicode/utf8"
)

const (
	// GuesserPoints 猜中者得分
	GuesserPoints = 10
	// DrawerPoints 畫手得分
	DrawerPoints = 5
	// MinWordLength 題目最短長度
	MinWordLength = 2
	// MaxWordLength 題目最長長度
	MaxWordLength = 32
	// MaxChatLength 聊天訊息最長長度，超過截斷
	MaxChatLength = 200
)

// GuessOutcome 聊天/猜題的處理結果
type GuessOutcome int

const (
	OutcomeDropped    GuessOutcome = iota // 空訊息或不在房間
	OutcomeChat                           // 當作一般聊天轉發
	OutcomeCorrect                        // 猜中
	OutcomeSuppressed                     // 畫手自己說出答案，不轉發也不計分
)

// RoundEngine 你畫我猜的回合狀態機
//
// 與 Directory 共用同一把鎖；事件在鎖內透過非阻塞的 Emitter 送出，
// 所以同一房間的事件順序與狀態變更順序一致。
type RoundEngine struct {
	d *Directory
}

// NewRoundEngine 建立回合引擎
func NewRoundEngine(d *Directory) *RoundEngine {
	return &RoundEngine{d: d}
}

// StartGame 房主開局：回合歸零、第一位玩家當畫手
//
// 非房主返回 ErrUnauthorized，呼叫端預設靜默忽略。
func (e *RoundEngine) StartGame(connID string) error {
	d := e.d
	d.mu.Lock()
	defer d.mu.Unlock()

	r, err := d.drawRoomLocked(connID)
	if err != nil {
		return err
	}
	if r.HostID != connID {
		return ErrUnauthorized
	}

	r.cancelTask()
	rs := r.Round
	rs.Number = 0
	rs.DrawerIndex = 0
	rs.Word = ""
	rs.Phase = PhaseAwaitingWord
	rs.Paused = false
	r.touch(d.clock.Now())

	d.emit.Broadcast(r.Code, EventDrawGameStarted, roundInfo(r), "")
	d.logger.Info("你畫我猜開局", "room_code", r.Code, "players", len(r.Players))
	return nil
}

// SetWord 畫手出題
//
// 提示是第一個字元加上每個剩餘字元一個「 _」，例如 APPLE → "A _ _ _ _"；
// 提示送給畫手以外的人，roundStart 送給所有人。
func (e *RoundEngine) SetWord(connID, word string) error {
	d := e.d
	d.mu.Lock()
	defer d.mu.Unlock()

	r, err := d.drawRoomLocked(connID)
	if err != nil {
		return err
	}
	rs := r.Round
	if rs.Phase != PhaseAwaitingWord && rs.Phase != PhaseActiveRound {
		return ErrRoundNotReady
	}
	drawer := r.drawer()
	if drawer == nil || drawer.ID != connID {
		return ErrUnauthorized
	}

	word = strings.TrimSpace(word)
	if n := utf8.RuneCountInString(word); n < MinWordLength || n > MaxWordLength {
		return ErrInvalidWord
	}

	rs.Word = word
	rs.Phase = PhaseActiveRound
	r.touch(d.clock.Now())

	d.emit.Broadcast(r.Code, EventWordHint, Hint(word), drawer.ID)
	d.emit.Broadcast(r.Code, EventRoundStart, roundInfo(r), "")
	d.logger.Debug("題目已設定", "room_code", r.Code, "drawer", drawer.ID, "round", rs.Number)
	return nil
}

// SubmitGuess 處理聊天訊息；回合進行中且內容與題目相符（忽略大小寫與前後空白）即為猜中
//
// 猜中時在同一個交易內加分並清掉題目，同一回合的第二個正確答案只會當成聊天。
func (e *RoundEngine) SubmitGuess(connID, text string) GuessOutcome {
	d := e.d
	d.mu.Lock()
	defer d.mu.Unlock()

	code, ok := d.byConn[connID]
	if !ok {
		return OutcomeDropped
	}
	r := d.rooms[code]
	if r == nil {
		return OutcomeDropped
	}
	sender := r.player(connID)
	if sender == nil {
		return OutcomeDropped
	}

	text = truncateRunes(strings.TrimSpace(text), MaxChatLength)
	if text == "" {
		return OutcomeDropped
	}
	r.touch(d.clock.Now())

	if rs := r.Round; rs != nil && rs.Phase == PhaseActiveRound && rs.Word != "" && strings.EqualFold(text, rs.Word) {
		drawer := r.drawer()
		if drawer != nil && drawer.ID == connID {
			return OutcomeSuppressed
		}

		sender.Score += GuesserPoints
		drawerID := ""
		if drawer != nil {
			drawer.Score += DrawerPoints
			drawerID = drawer.ID
		}
		word := rs.Word
		rs.Word = ""
		rs.Phase = PhaseRoundResolved

		d.emit.Broadcast(r.Code, EventCorrectGuess, CorrectGuess{
			ID:       sender.ID,
			Name:     sender.Name,
			Word:     word,
			DrawerID: drawerID,
			Players:  r.views(),
		}, "")
		e.scheduleAdvanceLocked(r)
		d.observer.RoundResolved()

		d.logger.Info("猜中題目",
			"room_code", r.Code,
			"guesser", sender.ID,
			"drawer", drawerID,
			"round", rs.Number)
		return OutcomeCorrect
	}

	d.emit.Broadcast(r.Code, EventChatMsg, ChatMessage{ID: sender.ID, Name: sender.Name, Msg: text}, "")
	return OutcomeChat
}

// Resume 暫停中的房間湊滿兩人後直接進入下一回合
func (e *RoundEngine) Resume(code string) bool {
	d := e.d
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.rooms[code]
	if r == nil || r.Round == nil || !r.Round.Paused || len(r.Players) < 2 {
		return false
	}
	e.advanceLocked(r)
	return true
}

// scheduleAdvanceLocked 排程 RevealDelay 之後輪替
func (e *RoundEngine) scheduleAdvanceLocked(r *Room) {
	d := e.d
	r.cancelTask()
	seq := r.Round.taskSeq
	code := r.Code
	r.Round.task = d.clock.AfterFunc(d.cfg.RevealDelay, func() {
		e.advance(code, seq)
	})
}

// advance 排程觸發；房間可能已刪除或已重新開局，需重新確認
func (e *RoundEngine) advance(code string, seq uint64) {
	d := e.d
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.rooms[code]
	if r == nil || r.Round == nil || r.Round.taskSeq != seq {
		return
	}
	r.Round.task = nil

	if len(r.Players) < 2 {
		r.Round.Paused = true
		d.logger.Info("人數不足，暫停輪替", "room_code", code, "players", len(r.Players))
		return
	}
	e.advanceLocked(r)
}

// advanceLocked 回合數加一，畫手依目前人數重新取模
func (e *RoundEngine) advanceLocked(r *Room) {
	d := e.d
	rs := r.Round
	rs.Number++
	rs.DrawerIndex = rs.Number % len(r.Players)
	rs.Word = ""
	rs.Phase = PhaseAwaitingWord
	rs.Paused = false
	r.touch(d.clock.Now())

	d.emit.Broadcast(r.Code, EventNextRound, roundInfo(r), "")
	d.logger.Debug("下一回合", "room_code", r.Code, "round", rs.Number, "drawer_index", rs.DrawerIndex)
}

// drawRoomLocked 取得連線所在的你畫我猜房間
func (d *Directory) drawRoomLocked(connID string) (*Room, error) {
	code, ok := d.byConn[connID]
	if !ok {
		return nil, ErrNotInRoom
	}
	r := d.rooms[code]
	if r == nil {
		return nil, ErrNotInRoom
	}
	if r.Kind != KindDraw || r.Round == nil {
		return nil, ErrWrongGame
	}
	return r, nil
}

// RoundState 返回房間的回合狀態副本（測試與除錯用）
func (d *Directory) RoundState(code string) (RoundState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.rooms[code]
	if r == nil || r.Round == nil {
		return RoundState{}, false
	}
	rs := *r.Round
	rs.task = nil
	return rs, true
}

// Hint 產生提示：保留第一個字元，其餘每個字元換成「 _」
func Hint(word string) string {
	first, size := utf8.DecodeRuneInString(word)
	if size == 0 {
		return ""
	}
	rest := utf8.RuneCountInString(word[size:])
	return string(first) + strings.Repeat(" _", rest)
}

func roundInfo(r *Room) RoundInfo {
	info := RoundInfo{
		DrawerIndex: r.Round.DrawerIndex,
		Round:       r.Round.Number,
		Players:     r.views(),
	}
	if drawer := r.drawer(); drawer != nil {
		info.DrawerID = drawer.ID
		info.DrawerName = drawer.Name
	}
	return info
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
