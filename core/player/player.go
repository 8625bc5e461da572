// Package player provides a reference action player: it queues materialized
// agent turns and plays them strictly one at a time, signalling begin and end
// of each turn. Actual rendering (audio output, viseme blending, gestures) is
// delegated to the caller-supplied play function.
package player

import (
	"context"
	"sync"

	"github.com/VirbeHQ/being-core/core/events"
)

// PlayFunc renders one materialized agent turn. It blocks until playback of
// that turn is finished; returning an error only logs, playback of later
// turns continues.
type PlayFunc func(ctx context.Context, turn events.AgentTurn) error

// Player drains queued agent turns sequentially on its own goroutine.
type Player struct {
	play    PlayFunc
	onBegin func(events.Turn)
	onEnd   func(events.Turn)

	mu      sync.Mutex
	queue   []events.AgentTurn
	stopped bool

	updateSignal chan struct{}
	done         chan struct{}
}

type Option func(*Player)

// WithTurnCallbacks registers begin/end-of-turn callbacks, typically wired
// into the behavior state machine.
func WithTurnCallbacks(onBegin, onEnd func(events.Turn)) Option {
	return func(p *Player) {
		if onBegin != nil {
			p.onBegin = onBegin
		}
		if onEnd != nil {
			p.onEnd = onEnd
		}
	}
}

func New(play PlayFunc, opts ...Option) *Player {
	p := &Player{
		play:         play,
		onBegin:      func(events.Turn) {},
		onEnd:        func(events.Turn) {},
		updateSignal: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins draining the queue until the context is cancelled or Stop is
// called.
func (p *Player) Start(ctx context.Context) {
	go p.loop(ctx)
}

// Enqueue adds a materialized turn behind any turns already waiting.
func (p *Player) Enqueue(turn events.AgentTurn) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, turn)
	p.mu.Unlock()
	p.signalUpdate()
}

// Stop ends the drain loop; queued turns are dropped.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.queue = nil
	p.mu.Unlock()
	p.signalUpdate()
}

// Done closes once the drain loop has exited.
func (p *Player) Done() <-chan struct{} { return p.done }

func (p *Player) loop(ctx context.Context) {
	defer close(p.done)

	for {
		turn, ok := p.next()
		if !ok {
			p.mu.Lock()
			stopped := p.stopped
			p.mu.Unlock()
			if stopped {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-p.updateSignal:
			}
			continue
		}

		p.onBegin(turn.Turn)
		if err := p.play(ctx, turn); err != nil {
			logger.WarnContext(ctx, "turn playback failed",
				"correlation_id", turn.Turn.CorrelationID, "error", err)
		}
		p.onEnd(turn.Turn)

		if ctx.Err() != nil {
			return
		}
	}
}

func (p *Player) next() (events.AgentTurn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return events.AgentTurn{}, false
	}
	turn := p.queue[0]
	p.queue = p.queue[1:]
	return turn, true
}

func (p *Player) signalUpdate() {
	select {
	case p.updateSignal <- struct{}{}:
	default:
	}
}
