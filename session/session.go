// Package session owns the connection lifecycle of one client session:
// dialing the agent gateway, mode-aware reconnection, and fanning
// inbound messages out to the turn reassembler and the playback
// pipeline. All session state lives in an event loop that serializes
// every mutation, so handlers never race each other.
package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/room4-2/converse-client/config"
	"github.com/room4-2/converse-client/messages"
	"github.com/room4-2/converse-client/turns"
)

// State is the connection state surfaced to the UI layer.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Mode selects whether the session streams audio in addition to text.
// Switching mode always tears the connection down and redials.
type Mode string

const (
	ModeText  Mode = "text"
	ModeAudio Mode = "audio"
)

const eventBufferSize = 256

// Conn is the subset of *websocket.Conn the session relies on.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a transport connection to the given URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

// DefaultDialer dials with gorilla/websocket.
func DefaultDialer(handshakeTimeout time.Duration) Dialer {
	return func(ctx context.Context, url string) (Conn, error) {
		d := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
		conn, _, err := d.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Recorder is the capture pipeline as the session sees it.
type Recorder interface {
	Start(handler func(pcm []byte)) error
	Stop() error
}

// Player is the playback pipeline as the session sees it.
type Player interface {
	Enqueue(pcm []byte)
}

// Session is one logical conversation with the agent gateway. Exactly
// one transport connection is active at any time; a lost connection is
// redialed forever at a fixed delay with the mode unchanged.
type Session struct {
	// ID is generated once and stays stable for the process lifetime.
	ID string

	// Turns exposes the reassembler so the UI layer can register its
	// sink callbacks, in the same style as the rest of the callbacks.
	Turns *turns.Reassembler

	// OnState receives connection-state changes. Invoked from the
	// session loop.
	OnState func(State)

	cfg      *config.Config
	dial     Dialer
	recorder Recorder
	player   Player

	events chan func()

	// Loop-owned state: only touched by callbacks running on the loop.
	ctx   context.Context
	state State
	mode  Mode
	conn  Conn
	gen   uint64 // connection generation, invalidates stale pump events
}

// New creates a session wired to the given pipelines. Either pipeline
// may be nil: a nil recorder makes EnableVoice fail, a nil player
// silently drops inbound audio frames.
func New(cfg *config.Config, dial Dialer, recorder Recorder, player Player) *Session {
	if dial == nil {
		dial = DefaultDialer(cfg.DialTimeout)
	}
	return &Session{
		ID:       uuid.New().String(),
		Turns:    &turns.Reassembler{},
		cfg:      cfg,
		dial:     dial,
		recorder: recorder,
		player:   player,
		events:   make(chan func(), eventBufferSize),
		state:    StateDisconnected,
		mode:     ModeText,
	}
}

// Run executes the session event loop until ctx is canceled. It opens
// the first connection immediately and never stops retrying on its own.
func (s *Session) Run(ctx context.Context) error {
	s.post(func() {
		s.ctx = ctx
		s.startConnect()
	})

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case fn := <-s.events:
			fn()
		}
	}
}

// SendText sends a user text message. Best effort by design: if the
// transport is not open the message is silently dropped — the retry
// loop will restore the connection and the user can resend.
func (s *Session) SendText(text string) {
	s.post(func() { s.write(messages.UserText{Text: text}) })
}

// EnableVoice acquires the microphone and switches the session to
// audio mode. An acquisition failure is returned to the caller and the
// pipeline stays stopped; nothing is retried.
func (s *Session) EnableVoice() error {
	if s.recorder == nil {
		return fmt.Errorf("no capture pipeline configured")
	}
	if err := s.recorder.Start(s.handleFrame); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	s.post(func() { s.setMode(ModeAudio) })
	return nil
}

// DisableVoice releases the microphone and switches back to text mode.
func (s *Session) DisableVoice() {
	if s.recorder != nil {
		if err := s.recorder.Stop(); err != nil {
			log.Printf("⚠️ [%s] Failed to stop capture: %v", s.shortID(), err)
		}
	}
	s.post(func() { s.setMode(ModeText) })
}

// handleFrame receives one captured frame, already copied out of
// engine memory, and forwards it outbound. Same best-effort policy as
// SendText.
func (s *Session) handleFrame(pcm []byte) {
	s.post(func() { s.write(messages.UserAudio{PCM: pcm}) })
}

// post hands an event to the loop without blocking. A full queue drops
// the event; with audio frames as the only high-rate producer this
// only sheds load the transport could not keep up with anyway.
func (s *Session) post(fn func()) {
	select {
	case s.events <- fn:
	default:
		log.Printf("⚠️ [%s] Event queue full, dropping event", s.shortID())
	}
}

// startConnect opens a new transport for the current mode. Dialing
// happens off the loop so the loop never blocks; the result is tagged
// with a generation and discarded if the session has moved on.
func (s *Session) startConnect() {
	s.gen++
	gen := s.gen
	s.setState(StateConnecting)

	url := s.endpoint()
	ctx := s.ctx
	go func() {
		conn, err := s.dial(ctx, url)
		s.post(func() { s.finishConnect(gen, conn, err) })
	}()
}

func (s *Session) finishConnect(gen uint64, conn Conn, err error) {
	if gen != s.gen {
		// A mode switch or shutdown superseded this attempt.
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		log.Printf("❌ [%s] Connect failed: %v", s.shortID(), err)
		s.setState(StateDisconnected)
		s.scheduleConnect(s.cfg.ReconnectDelay)
		return
	}

	s.conn = conn
	s.setState(StateConnected)
	log.Printf("✅ [%s] Connected (%s mode)", s.shortID(), s.mode)
	go s.readPump(gen, conn)
}

// readPump reads wire strings off one connection and posts them to the
// loop. It exits on the first read error, which covers both peer
// closes and transport errors, and reports the loss exactly once.
func (s *Session) readPump(gen uint64, conn Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.post(func() { s.connLost(gen, err) })
			return
		}
		s.post(func() { s.receive(gen, raw) })
	}
}

// connLost handles one connection loss: surface the state, discard the
// partially reassembled turn, and schedule exactly one reconnect with
// the mode unchanged.
func (s *Session) connLost(gen uint64, err error) {
	if gen != s.gen {
		return
	}
	s.gen++

	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Printf("🔌 [%s] Connection lost: %v", s.shortID(), err)
	}

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.Turns.Reset()
	s.setState(StateDisconnected)
	s.scheduleConnect(s.cfg.ReconnectDelay)
}

// scheduleConnect is the single reconnection primitive: failures use
// the configured delay, deliberate mode switches reuse it with no
// delay. The mode is read when the timer fires, not when it is set.
func (s *Session) scheduleConnect(delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.post(func() {
			if s.ctx == nil || s.ctx.Err() != nil {
				return
			}
			s.startConnect()
		})
	})
}

// setMode switches the operating mode by proactively closing the
// active connection and redialing immediately.
func (s *Session) setMode(mode Mode) {
	if s.mode == mode {
		return
	}
	s.mode = mode

	switch {
	case s.conn != nil:
		s.gen++ // the old pump's loss event is now stale
		s.conn.Close()
		s.conn = nil
		s.Turns.Reset()
		s.setState(StateDisconnected)
		s.scheduleConnect(0)

	case s.state == StateConnecting:
		// Invalidate the in-flight dial so the session comes up with
		// the new mode, not the one the dial started with.
		s.gen++
		s.scheduleConnect(0)

	default:
		// Disconnected; the pending reconnect picks up the new mode.
	}
}

// receive decodes one inbound wire string and dispatches it. A decode
// failure discards the message; it never reaches the reassembler and
// never takes the loop down.
func (s *Session) receive(gen uint64, raw []byte) {
	if gen != s.gen {
		return
	}

	msg, err := messages.Decode(raw)
	if err != nil {
		log.Printf("⚠️ [%s] Discarding inbound message: %v", s.shortID(), err)
		return
	}

	// Audio always reaches playback, independent of turn bookkeeping.
	if audio, ok := msg.(messages.ModelAudio); ok && s.player != nil {
		s.player.Enqueue(audio.PCM)
	}

	s.Turns.Feed(msg)
}

// write encodes and sends one outbound message if connected, and
// silently drops it otherwise.
func (s *Session) write(msg messages.Message) {
	if s.state != StateConnected || s.conn == nil {
		return
	}

	data, err := messages.Encode(msg)
	if err != nil {
		log.Printf("❌ [%s] Encode failed: %v", s.shortID(), err)
		return
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// The read pump will observe the broken connection and drive
		// the reconnect; nothing more to do here.
		log.Printf("❌ [%s] Write failed: %v", s.shortID(), err)
	}
}

func (s *Session) shutdown() {
	s.gen++
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.recorder != nil {
		if err := s.recorder.Stop(); err != nil {
			log.Printf("⚠️ [%s] Failed to stop capture: %v", s.shortID(), err)
		}
	}
	s.setState(StateDisconnected)
}

func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	s.state = state
	if s.OnState != nil {
		s.OnState(state)
	}
}

// endpoint builds the session URL: /ws/{id}?is_audio={bool}.
func (s *Session) endpoint() string {
	return fmt.Sprintf("%s/ws/%s?is_audio=%t", s.cfg.ServerURL, s.ID, s.mode == ModeAudio)
}

func (s *Session) shortID() string {
	return s.ID[:8]
}
