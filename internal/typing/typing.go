// Package typing tracks best-effort typing presence between chat participants.
//
// 각 (sender, receiver) 쌍은 Idle -> Typing -> (Idle | Stale) 상태를 가진다.
// start 는 StartThrottle 간격으로만 전달되고, IdleStop 동안 입력이 없거나
// 마지막 전달 후 StaleAfter 가 지나면 stop 이벤트가 수신자에게 전달된다.
package typing

import (
	"sync"
	"time"
)

// State presence state of one sender/receiver pair
type State int

const (
	Idle State = iota
	Typing
	Stale
)

func (s State) String() string {
	switch s {
	case Typing:
		return "typing"
	case Stale:
		return "stale"
	default:
		return "idle"
	}
}

// Config presence timings
type Config struct {
	StartThrottle time.Duration
	IdleStop      time.Duration
	StaleAfter    time.Duration
}

func (c Config) withDefaults() Config {
	if c.StartThrottle <= 0 {
		c.StartThrottle = 450 * time.Millisecond
	}
	if c.IdleStop <= 0 {
		c.IdleStop = 1200 * time.Millisecond
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 2500 * time.Millisecond
	}
	return c
}

// Event delivered to ReceiverID
type Event struct {
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	ConversationID int64  `json:"conversationId,omitempty"`
	IsTyping       bool   `json:"isTyping"`
}

type pairKey struct {
	sender   string
	receiver string
}

type pair struct {
	state          State
	conversationID int64
	lastEmit       time.Time
	// gen 은 예약된 타이머의 취소 토큰. 값이 바뀌면 이전 타이머는 무시된다.
	gen      uint64
	staleGen uint64
	idle     *time.Timer
	stale    *time.Timer
}

func (p *pair) cancel() {
	p.gen++
	p.staleGen++
	if p.idle != nil {
		p.idle.Stop()
		p.idle = nil
	}
	if p.stale != nil {
		p.stale.Stop()
		p.stale = nil
	}
}

// Tracker routes typing signals. emit is never called while the tracker lock is held.
type Tracker struct {
	cfg  Config
	emit func(Event)
	now  func() time.Time

	mu     sync.Mutex
	pairs  map[pairKey]*pair
	closed bool
}

// NewTracker creates a tracker that forwards state changes to emit.
func NewTracker(cfg Config, emit func(Event)) *Tracker {
	return &Tracker{
		cfg:   cfg.withDefaults(),
		emit:  emit,
		now:   time.Now,
		pairs: make(map[pairKey]*pair),
	}
}

// Start records a keystroke from sender toward receiver. Returns true when a
// start event was forwarded; throttled keystrokes only extend the idle timer.
func (t *Tracker) Start(senderID, receiverID string, conversationID int64) bool {
	if senderID == "" || receiverID == "" || senderID == receiverID {
		return false
	}
	key := pairKey{senderID, receiverID}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	p, ok := t.pairs[key]
	if !ok {
		p = &pair{}
		t.pairs[key] = p
	}
	if conversationID != 0 {
		p.conversationID = conversationID
	}

	now := t.now()
	forward := p.state != Typing || now.Sub(p.lastEmit) >= t.cfg.StartThrottle
	if p.idle != nil {
		p.idle.Stop()
	}
	p.gen++
	gen := p.gen
	p.idle = time.AfterFunc(t.cfg.IdleStop, func() { t.expire(key, gen, Idle) })
	if forward {
		p.state = Typing
		p.lastEmit = now
		if p.stale != nil {
			p.stale.Stop()
		}
		p.staleGen++
		staleGen := p.staleGen
		p.stale = time.AfterFunc(t.cfg.StaleAfter, func() { t.expireStale(key, staleGen) })
	}
	ev := Event{SenderID: senderID, ReceiverID: receiverID, ConversationID: p.conversationID, IsTyping: true}
	t.mu.Unlock()

	if forward {
		t.emit(ev)
	}
	return forward
}

// Stop explicit stop (blur, send). Emits only when the pair was typing.
func (t *Tracker) Stop(senderID, receiverID string) bool {
	key := pairKey{senderID, receiverID}

	t.mu.Lock()
	p, ok := t.pairs[key]
	if !ok || p.state != Typing {
		t.mu.Unlock()
		return false
	}
	p.cancel()
	p.state = Idle
	ev := Event{SenderID: senderID, ReceiverID: receiverID, ConversationID: p.conversationID}
	delete(t.pairs, key)
	t.mu.Unlock()

	t.emit(ev)
	return true
}

// Disconnect stops every indicator sender has open.
func (t *Tracker) Disconnect(senderID string) {
	t.mu.Lock()
	var stopped []Event
	for key, p := range t.pairs {
		if key.sender != senderID {
			continue
		}
		if p.state == Typing {
			stopped = append(stopped, Event{SenderID: key.sender, ReceiverID: key.receiver, ConversationID: p.conversationID})
		}
		p.cancel()
		delete(t.pairs, key)
	}
	t.mu.Unlock()

	for _, ev := range stopped {
		t.emit(ev)
	}
}

// Active typing indicators addressed to viewerID, used to prime a new connection.
func (t *Tracker) Active(viewerID string) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Event
	for key, p := range t.pairs {
		if key.receiver == viewerID && p.state == Typing {
			out = append(out, Event{SenderID: key.sender, ReceiverID: key.receiver, ConversationID: p.conversationID, IsTyping: true})
		}
	}
	return out
}

// State of the indicator sender shows to receiver.
func (t *Tracker) State(senderID, receiverID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pairs[pairKey{senderID, receiverID}]; ok {
		return p.state
	}
	return Idle
}

// Close cancels all timers. Later calls are no-ops.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, p := range t.pairs {
		p.cancel()
		delete(t.pairs, key)
	}
}

func (t *Tracker) expire(key pairKey, gen uint64, next State) {
	t.mu.Lock()
	p, ok := t.pairs[key]
	if !ok || p.gen != gen || p.state != Typing {
		t.mu.Unlock()
		return
	}
	p.cancel()
	p.state = next
	ev := Event{SenderID: key.sender, ReceiverID: key.receiver, ConversationID: p.conversationID}
	t.mu.Unlock()

	t.emit(ev)
}

// expireStale fires when no start has been forwarded for StaleAfter even though
// keystrokes keep extending the idle timer.
func (t *Tracker) expireStale(key pairKey, staleGen uint64) {
	t.mu.Lock()
	p, ok := t.pairs[key]
	if !ok || p.staleGen != staleGen {
		t.mu.Unlock()
		return
	}
	gen := p.gen
	t.mu.Unlock()
	t.expire(key, gen, Stale)
}
