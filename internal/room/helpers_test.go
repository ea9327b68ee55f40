package room_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-party-relay/internal/room"
	"github.com/koopa0/system-design/14-party-relay/pkg/clock"
	"github.com/koopa0/system-design/14-party-relay/pkg/logger"
)

// sent 記錄一次推送
type sent struct {
	To      string // Emit 的目標連線
	Room    string // Broadcast 的房間
	Event   string
	Payload any
	Except  string
}

// recorder 記錄所有推送的 Emitter
type recorder struct {
	mu   sync.Mutex
	out  []sent
	tags map[string]string
}

func (r *recorder) Tag(connID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tags == nil {
		r.tags = make(map[string]string)
	}
	r.tags[connID] = code
}

func (r *recorder) Untag(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tags, connID)
}

func (r *recorder) tagOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.tags[connID]
	return code, ok
}

func (r *recorder) Emit(connID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, sent{To: connID, Event: event, Payload: payload})
}

func (r *recorder) Broadcast(code, event string, payload any, except string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, sent{Room: code, Event: event, Payload: payload, Except: except})
}

func (r *recorder) events(name string) []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sent
	for _, s := range r.out {
		if s.Event == name {
			out = append(out, s)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = nil
}

// scriptedCodes 依序回傳預先給定的加入碼
type scriptedCodes struct {
	codes []string
	calls int
}

func (s *scriptedCodes) Generate() (string, error) {
	if s.calls >= len(s.codes) {
		return "", errors.New("script exhausted")
	}
	code := s.codes[s.calls]
	s.calls++
	return code, nil
}

// countingObserver 記錄 Observer 回呼
type countingObserver struct {
	mu       sync.Mutex
	rooms    int
	players  int
	reaped   int
	resolved int
}

func (o *countingObserver) RoomsChanged(rooms, players int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rooms, o.players = rooms, players
}

func (o *countingObserver) RoomsReaped(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reaped += n
}

func (o *countingObserver) RoundResolved() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resolved++
}

type fixture struct {
	dir    *room.Directory
	engine *room.RoundEngine
	clock  *clock.Fake
	rec    *recorder
	obs    *countingObserver
}

func newFixture(t *testing.T, opts ...room.Option) *fixture {
	t.Helper()
	f := &fixture{
		clock: clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
		rec:   &recorder{},
		obs:   &countingObserver{},
	}
	all := append([]room.Option{room.WithClock(f.clock), room.WithObserver(f.obs)}, opts...)
	f.dir = room.NewDirectory(room.DefaultConfig(), f.rec, logger.Discard(), all...)
	f.engine = room.NewRoundEngine(f.dir)
	return f
}

// drawRoom 建立 draw 房間並讓 names 依序加入，返回加入碼
func (f *fixture) drawRoom(t *testing.T, host string, others map[string]string, order ...string) string {
	t.Helper()
	snap, err := f.dir.CreateRoom(host, "draw")
	require.NoError(t, err)
	for _, id := range order {
		_, err := f.dir.JoinRoom(id, snap.Code, others[id])
		require.NoError(t, err)
	}
	return snap.Code
}
