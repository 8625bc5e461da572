// Package orchestration routes outbound user intents across independently
// capable transport backends and funnels their inbound events through a
// single owner loop that drives the behavior state machine and the
// caller-supplied callbacks.
//
// Transport handlers are constructed from a capability profile at
// construction time; misconfigured profiles fail there, never later. Intents
// fan out to every handler whose capability mask matches, deliberately
// at-least-once: a turn-store handler persisting a message and a stream
// handler delivering it live both legitimately receive the same intent.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/codes"

	"github.com/VirbeHQ/being-core/core/behavior"
	"github.com/VirbeHQ/being-core/core/capability"
	"github.com/VirbeHQ/being-core/core/conversations"
	"github.com/VirbeHQ/being-core/core/events"
	"github.com/VirbeHQ/being-core/core/player"
	"github.com/VirbeHQ/being-core/core/recognition"
	"github.com/VirbeHQ/being-core/core/room"
	"github.com/VirbeHQ/being-core/core/stream"
	"github.com/VirbeHQ/being-core/core/synthesis"
)

const defaultEventBuffer = 64

// ErrNotInitialized is returned by send operations before a successful
// Initialize or after Dispose.
var ErrNotInitialized = errors.New("orchestrator is not initialized")

// Orchestrator owns the transport handlers, the shared session, and the
// behavior state machine. All handler events are enqueued onto one channel
// and drained by a single loop, so behavior transitions and callbacks are
// serialized even though transport I/O runs on its own goroutines.
type Orchestrator struct {
	profile    capability.Profile
	correlator *conversations.Correlator

	handlers      []Handler
	extraHandlers []Handler
	synthesizer   stream.Synthesizer

	behavior         *behavior.Machine
	behaviorTimeouts *behavior.Timeouts

	eventBuffer int

	mu            sync.Mutex
	session       *conversations.Session
	initialized   bool
	eventCh       chan events.Event
	loopCancel    context.CancelFunc
	loopDone      chan struct{}
	emitToCaller  func(events.Event)
	callerOptions InitializeOptions
}

// New builds an orchestrator from a capability profile.
//
// Construction-time policy: a profile that declares RequiresRoom without a
// turn-store descriptor is a configuration error. When no descriptor declares
// audio capability, the recognition fallback descriptor is constructed in its
// place; a fallback with any protocol other than recognition-socket is a
// configuration error. The same rule applies to the synthesis fallback.
// Configuration errors are fatal and never retried.
func New(profile capability.Profile, opts ...OrchestratorOption) (*Orchestrator, error) {
	o := &Orchestrator{
		profile:     profile,
		correlator:  conversations.NewCorrelator(),
		eventBuffer: defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(o)
	}

	if profile.RequiresRoom && profile.RoomDescriptor() == nil {
		return nil, fmt.Errorf("conversation engine requires turn-store semantics but no polling-http descriptor is configured")
	}

	if err := o.resolveSynthesizer(); err != nil {
		return nil, err
	}

	for _, descriptor := range profile.Descriptors {
		handler, err := o.buildHandler(descriptor)
		if err != nil {
			return nil, err
		}
		if handler != nil {
			o.handlers = append(o.handlers, handler)
		}
	}

	audioCovered := profile.Supports(capability.Audio) || profile.Supports(capability.AudioStream)
	for _, handler := range o.extraHandlers {
		if handler.Capabilities().HasAny(capability.NewSet(capability.Audio, capability.AudioStream)) {
			audioCovered = true
		}
	}
	if !audioCovered {
		if fallback := profile.RecognitionFallback; fallback != nil {
			if fallback.Protocol != capability.ProtocolRecognitionSocket {
				return nil, fmt.Errorf("recognition fallback declares unsupported protocol %q", fallback.Protocol)
			}
			o.handlers = append(o.handlers, recognition.NewHandler(*fallback, o.enqueueEvent, o.forwardRecognizedText))
		} else {
			logger.Warn("no audio-capable descriptor and no recognition fallback configured, audio intents will be dropped")
		}
	}

	o.handlers = append(o.handlers, o.extraHandlers...)

	machineOpts := []behavior.MachineOption{behavior.WithChangeCallback(o.onBehaviorChanged)}
	if o.behaviorTimeouts != nil {
		machineOpts = append(machineOpts, behavior.WithTimeouts(*o.behaviorTimeouts))
	}
	o.behavior = behavior.NewMachine(machineOpts...)

	return o, nil
}

func (o *Orchestrator) resolveSynthesizer() error {
	if o.synthesizer != nil {
		return nil
	}

	for _, descriptor := range o.profile.Descriptors {
		if descriptor.Protocol == capability.ProtocolSynthesisREST {
			o.synthesizer = newSynthesisClient(descriptor)
			return nil
		}
	}

	if fallback := o.profile.SynthesisFallback; fallback != nil && !o.profile.Supports(capability.Synthesis) {
		if fallback.Protocol != capability.ProtocolSynthesisREST {
			return fmt.Errorf("synthesis fallback declares unsupported protocol %q", fallback.Protocol)
		}
		o.synthesizer = newSynthesisClient(*fallback)
		return nil
	}

	for _, descriptor := range o.profile.Descriptors {
		if descriptor.Protocol == capability.ProtocolStreamSocket {
			return fmt.Errorf("stream-socket descriptor requires a synthesis backend but none is configured")
		}
	}
	return nil
}

func newSynthesisClient(descriptor capability.Descriptor) *synthesis.Client {
	return synthesis.NewClient(descriptor.Path, descriptor.Credential)
}

func (o *Orchestrator) buildHandler(descriptor capability.Descriptor) (Handler, error) {
	switch descriptor.Protocol {
	case capability.ProtocolPollingHTTP:
		return room.NewHandler(descriptor, o.correlator, o.enqueueEvent), nil
	case capability.ProtocolStreamSocket:
		return stream.NewHandler(descriptor, o.correlator, o.enqueueEvent, o.synthesizer), nil
	case capability.ProtocolRecognitionSocket:
		return recognition.NewHandler(descriptor, o.enqueueEvent, o.forwardRecognizedText), nil
	case capability.ProtocolSynthesisREST:
		// Consumed as the synthesis backend, not an intent target.
		return nil, nil
	default:
		return nil, fmt.Errorf("descriptor declares unknown protocol %q", descriptor.Protocol)
	}
}

// Handlers returns the constructed transport handlers, fallbacks included.
func (o *Orchestrator) Handlers() []Handler {
	handlers := make([]Handler, len(o.handlers))
	copy(handlers, o.handlers)
	return handlers
}

// Behavior exposes the behavior state machine for read access and external
// state requests (focus tracking, playback wiring).
func (o *Orchestrator) Behavior() *behavior.Machine { return o.behavior }

// Session returns the active session, or nil while uninitialized.
func (o *Orchestrator) Session() *conversations.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Initialize constructs the session and prepares every handler. Any handler
// failing to prepare aborts initialization: already-prepared handlers are
// disposed and the orchestrator remains uninitialized. No partial state
// survives a failed call.
func (o *Orchestrator) Initialize(ctx context.Context, endUserID string, conversationID *string, opts ...InitializeOption) error {
	ctx, span := tracer.Start(ctx, "orchestrator.initialize")
	defer span.End()

	o.mu.Lock()
	if o.initialized {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator is already initialized")
	}
	o.mu.Unlock()

	var initOptions InitializeOptions
	for _, opt := range opts {
		opt(&initOptions)
	}

	if endUserID == "" {
		endUserID = conversations.NewEndUserID()
	}
	session := conversations.NewSession(endUserID, conversationID)

	eventCh := make(chan events.Event, o.eventBuffer)
	o.mu.Lock()
	o.eventCh = eventCh
	o.mu.Unlock()

	for i, handler := range o.handlers {
		if err := handler.Prepare(ctx, session); err != nil {
			for _, prepared := range o.handlers[:i] {
				if disposeErr := prepared.Dispose(); disposeErr != nil {
					logger.WarnContext(ctx, "failed to dispose handler during aborted initialization", "error", disposeErr)
				}
			}
			o.mu.Lock()
			o.eventCh = nil
			o.mu.Unlock()
			recordedErr := fmt.Errorf("failed to prepare handler: %w", err)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
			return recordedErr
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	o.mu.Lock()
	o.session = session
	o.emitToCaller = newCallbackEventEmitter(initOptions)
	o.callerOptions = initOptions
	o.loopCancel = cancel
	o.loopDone = done
	o.initialized = true
	o.mu.Unlock()

	go o.eventLoop(loopCtx, eventCh, done)

	return nil
}

// eventLoop is the owner context: it alone applies events to the behavior
// machine and invokes caller callbacks. Transport goroutines only enqueue.
func (o *Orchestrator) eventLoop(ctx context.Context, eventCh <-chan events.Event, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			behavior.Apply(o.behavior, event)
			o.mu.Lock()
			emit := o.emitToCaller
			o.mu.Unlock()
			if emit == nil {
				continue
			}
			emit(event)
			switch typedEvent := event.(type) {
			case events.UserTurn:
				fanOutActions(emit, typedEvent.Turn)
			case events.AgentTurn:
				fanOutActions(emit, typedEvent.Turn)
			}
		}
	}
}

// fanOutActions surfaces the structured payload sections of a turn as
// granular events, after the turn event itself.
func fanOutActions(emit func(events.Event), turn events.Turn) {
	payload := turn.Payload
	if payload.Signal != nil {
		emit(events.NewSignalReceived(*payload.Signal))
	}
	if payload.NamedAction != nil {
		emit(events.NewNamedActionReceived(*payload.NamedAction))
	}
	if payload.UIAction != nil {
		emit(events.NewUIActionReceived(*payload.UIAction))
	}
	if payload.CustomAction != nil {
		emit(events.NewCustomActionReceived(*payload.CustomAction))
	}
	if payload.EngineEvent != nil {
		emit(events.NewEngineEventReceived(*payload.EngineEvent))
	}
}

// enqueueEvent is handed to every handler as its emit function. It never
// blocks a transport loop for long: when the owner loop is saturated the
// event is dropped with a warning rather than deadlocking the socket reader.
func (o *Orchestrator) enqueueEvent(event events.Event) {
	o.mu.Lock()
	eventCh := o.eventCh
	initialized := o.initialized
	o.mu.Unlock()
	if eventCh == nil {
		return
	}
	select {
	case eventCh <- event:
	default:
		if initialized {
			logger.Warn("event channel saturated, dropping event", "kind", string(event.Kind()))
		}
	}
}

// forwardRecognizedText turns a recognition flush into an ordinary outbound
// text intent, fanned out like any caller-initiated SendText.
func (o *Orchestrator) forwardRecognizedText(ctx context.Context, text string) error {
	return o.SendText(ctx, text)
}

func (o *Orchestrator) onBehaviorChanged(previous, current behavior.State) {
	o.mu.Lock()
	callback := o.callerOptions.onBehaviorChanged
	o.mu.Unlock()
	if callback != nil {
		callback(previous, current)
	}
}

// dispatch fans the intent out to every initialized handler whose capability
// mask includes the intent's capability. Handler failures are joined, not
// short-circuited: one failing transport must not starve the others.
func (o *Orchestrator) dispatch(ctx context.Context, intent conversations.Intent) error {
	o.mu.Lock()
	if !o.initialized {
		o.mu.Unlock()
		return ErrNotInitialized
	}
	o.mu.Unlock()

	var errs []error
	for _, handler := range o.handlers {
		if !handler.Capabilities().Has(intent.Capability) {
			continue
		}
		if err := handler.Handle(ctx, intent); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendText delivers a user text utterance to every text-capable backend.
func (o *Orchestrator) SendText(ctx context.Context, text string) error {
	if err := o.dispatch(ctx, conversations.SendText(text)); err != nil {
		return err
	}
	o.behavior.Request(behavior.StateRequestProcessing)
	return nil
}

// SendNamedAction delivers a named user action, e.g. a tapped quick-reply.
func (o *Orchestrator) SendNamedAction(ctx context.Context, name, value string) error {
	if err := o.dispatch(ctx, conversations.SendNamedAction(name, value)); err != nil {
		return err
	}
	o.behavior.Request(behavior.StateRequestProcessing)
	return nil
}

// SendAudio delivers recorded audio. With streamed set, audio is treated as
// one chunk of an open stream and queued on every audio-streaming backend;
// otherwise it is sent as a whole utterance. A streamed sequence must be
// terminated with EndAudioStream.
func (o *Orchestrator) SendAudio(ctx context.Context, audio []byte, streamed bool) error {
	if streamed {
		return o.dispatch(ctx, conversations.SendAudioChunk(audio))
	}
	return o.dispatch(ctx, conversations.SendAudio(audio))
}

// NewPlayer builds an action player whose playback boundaries feed back into
// the orchestrator, driving the behavior state machine through
// PlayingBeingAction and back. The turn callbacks are owned by this wiring;
// pass additional options before relying on them.
func (o *Orchestrator) NewPlayer(play player.PlayFunc, opts ...player.Option) *player.Player {
	opts = append(opts, player.WithTurnCallbacks(
		func(turn events.Turn) { o.enqueueEvent(events.NewPlaybackStarted(turn)) },
		func(turn events.Turn) { o.enqueueEvent(events.NewPlaybackEnded(turn)) },
	))
	return player.New(play, opts...)
}

// EndAudioStream closes the open recorded-audio stream on every handler that
// runs an outbound send loop.
func (o *Orchestrator) EndAudioStream() {
	for _, handler := range o.handlers {
		if closer, ok := handler.(streamCloser); ok {
			closer.StopStreaming()
		}
	}
}

// Dispose releases every handler, stops the event loop, and marks the
// orchestrator uninitialized. Safe to call multiple times; a disposed
// orchestrator can be initialized again.
func (o *Orchestrator) Dispose() error {
	o.mu.Lock()
	if !o.initialized {
		o.mu.Unlock()
		return nil
	}
	o.initialized = false
	session := o.session
	o.session = nil
	cancel := o.loopCancel
	o.loopCancel = nil
	done := o.loopDone
	o.loopDone = nil
	o.eventCh = nil
	o.emitToCaller = nil
	o.callerOptions = InitializeOptions{}
	o.mu.Unlock()

	var errs []error
	for _, handler := range o.handlers {
		if err := handler.Dispose(); err != nil {
			errs = append(errs, err)
		}
	}

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	o.behavior.Stop()
	if session != nil {
		session.End()
	}

	return errors.Join(errs...)
}
