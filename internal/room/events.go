package room

// 伺服器推送的事件名稱
const (
	EventPlayerJoined    = "playerJoined"
	EventPlayerLeft      = "playerLeft"
	EventHostChanged     = "hostChanged"
	EventDrawGameStarted = "drawGameStarted"
	EventRoundStart      = "roundStart"
	EventWordHint        = "wordHint"
	EventCorrectGuess    = "correctGuess"
	EventNextRound       = "nextRound"
	EventChatMsg         = "chatMsg"
	EventServerShutdown  = "serverShutdown"
)

// Emitter 傳輸層提供的推送能力
//
// 實作必須是非阻塞的：Directory 會在持有鎖時呼叫。
// Tag/Untag 與成員變更在同一個交易內完成，加入後的第一個廣播就會送達。
type Emitter interface {
	// Tag 讓連線開始接收房間廣播
	Tag(connID, code string)
	// Untag 停止接收任何房間廣播
	Untag(connID string)
	// Emit 推送給單一連線
	Emit(connID, event string, payload any)
	// Broadcast 推送給房間內所有連線，except 非空時跳過該連線
	Broadcast(code, event string, payload any, except string)
}

// Observer 房間指標的觀察者
type Observer interface {
	RoomsChanged(rooms, players int)
	RoomsReaped(n int)
	RoundResolved()
}

type nopObserver struct{}

func (nopObserver) RoomsChanged(int, int) {}
func (nopObserver) RoomsReaped(int)       {}
func (nopObserver) RoundResolved()        {}

// RoundInfo drawGameStarted / roundStart / nextRound 的內容
type RoundInfo struct {
	DrawerID    string       `json:"drawerId"`
	DrawerName  string       `json:"drawerName"`
	DrawerIndex int          `json:"drawerIndex"`
	Round       int          `json:"round"`
	Players     []PlayerView `json:"players"`
}

// CorrectGuess correctGuess 的內容
type CorrectGuess struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Word     string       `json:"word"`
	DrawerID string       `json:"drawerId,omitempty"`
	Players  []PlayerView `json:"players"`
}

// ChatMessage chatMsg 的內容
type ChatMessage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// Membership playerJoined / playerLeft 的內容
type Membership struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Count   int          `json:"count"`
	Players []PlayerView `json:"players"`
}

// HostChange hostChanged 的內容
type HostChange struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
