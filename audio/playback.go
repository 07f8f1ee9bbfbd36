package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Player accepts synthesized PCM frames in arrival order and plays them
// back continuously, smoothing gaps as a buffered queue. Arrival order
// is playback order; nothing is reordered or deduplicated.
type Player struct {
	otoCtx *oto.Context
	queue  *pcmQueue

	mu     sync.Mutex
	player *oto.Player
}

// NewPlayer acquires the output device for 16-bit little-endian mono
// PCM at the given sample rate.
func NewPlayer(sampleRate int) (*Player, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	}

	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("init playback context: %w", err)
	}
	<-ready

	return &Player{
		otoCtx: otoCtx,
		queue:  newPCMQueue(),
	}, nil
}

// Enqueue appends one frame to the playback queue. The underlying
// engine player is created lazily on first data so an idle session
// never spins the output device.
func (p *Player) Enqueue(pcm []byte) {
	p.queue.push(pcm)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player == nil {
		p.player = p.otoCtx.NewPlayer(p.queue)
		p.player.Play()
	}
}

// Close stops playback and releases the engine player. Queued frames
// still unplayed are dropped.
func (p *Player) Close() error {
	p.queue.close()

	p.mu.Lock()
	player := p.player
	p.player = nil
	p.mu.Unlock()

	if player != nil {
		return player.Close()
	}
	return nil
}

// pcmQueue is a FIFO byte queue bridging the session loop (push side)
// to the engine's pull loop (Read side). Read blocks while empty and
// feeds silence once closed, letting the engine drain gracefully.
type pcmQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newPCMQueue() *pcmQueue {
	q := &pcmQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *pcmQueue) push(data []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.buf = append(q.buf, data...)
	q.cond.Signal()
}

// Read implements io.Reader for the engine player.
func (q *pcmQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.closed && len(q.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}

func (q *pcmQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.buf = nil
	q.cond.Broadcast()
	q.mu.Unlock()
}
