// Package chatbot is the dialogue engine of the glasses. It connects the
// audio engine, the dialogue state machine and the backend transport: backend
// messages become events and intents, a single loop applies them, and state
// hooks open and close the microphone and speaker.
package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/teslashibe/go-glasses/pkg/audio"
	"github.com/teslashibe/go-glasses/pkg/dialogue"
	"github.com/teslashibe/go-glasses/pkg/intent"
	"github.com/teslashibe/go-glasses/pkg/protocol"
	"github.com/teslashibe/go-glasses/pkg/queue"
	"github.com/teslashibe/go-glasses/pkg/transport"
)

// Engine is the dialogue engine. Create one with New and drive it with Run.
type Engine struct {
	cfg        Config
	logger     *slog.Logger
	audio      *audio.Engine
	transport  transport.Transport
	dispatcher intent.Dispatcher
	observers  []dialogue.Observer
	onError    func(error)

	machine *dialogue.Machine
	events  *queue.Queue[dialogue.Event]
	intents *queue.Queue[intent.Intent]

	mu        sync.RWMutex
	sessionID string

	running atomic.Bool
	stopped atomic.Bool

	// firstAudio is armed by an asr result and fires
	// speaking_msg_received on the next audio frame.
	firstAudio atomic.Bool

	// recoverCh wakes the recovery worker when the fault state is entered.
	recoverCh chan struct{}

	// uplink worker, started from the listening hook
	uplinkMu     sync.Mutex
	uplinkWG     sync.WaitGroup
	uplinkCtx    context.Context
	uplinkCancel context.CancelFunc

	decodeBuf []int16

	stats stats
}

// New creates a dialogue engine over an audio engine and a backend
// transport. The audio engine is initialized by Run.
func New(cfg Config, ae *audio.Engine, t transport.Transport, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ae == nil {
		return nil, fmt.Errorf("%w: audio engine is required", ErrInvalidConfig)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidConfig)
	}

	e := &Engine{
		cfg:       cfg,
		logger:    slog.Default(),
		audio:     ae,
		transport: t,
		events:    queue.New[dialogue.Event](),
		intents:   queue.New[intent.Intent](),
		sessionID: uuid.NewString(),
		recoverCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "chatbot")

	acfg := ae.Config()
	e.decodeBuf = make([]int16, acfg.DecodeFrameSize*acfg.Channels)

	e.machine = dialogue.New(dialogue.StateStartup,
		dialogue.WithLogger(e.logger),
		dialogue.WithObserver(e.observe),
	)
	e.registerStates()
	e.machine.RegisterTable(dialogue.DefaultTransitions())

	return e, nil
}

// Run connects to the backend and processes events until ctx is done, Stop
// is called, or recovery gives up. On return the streams are stopped, the
// workers joined and the audio engine released.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	if err := e.audio.Init(); err != nil {
		e.running.Store(false)
		return fmt.Errorf("chatbot: init audio: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.uplinkMu.Lock()
	e.uplinkCtx = runCtx
	e.uplinkMu.Unlock()

	// workers are joined before shutdown so a reconnect in flight cannot
	// reopen the transport after it is closed
	var workers sync.WaitGroup
	defer func() {
		cancel()
		workers.Wait()
		e.shutdown()
		e.running.Store(false)
	}()

	e.transport.OnMessage(e.handleMessage)
	e.transport.OnClose(e.handleClose)

	if err := e.connect(runCtx); err != nil {
		return err
	}

	fatal := make(chan error, 1)
	workers.Add(1)
	go func() {
		defer workers.Done()
		e.recoveryLoop(runCtx, fatal)
	}()

	e.machine.Initialize()
	e.Enqueue(dialogue.EventStartupDone)

	return e.loop(runCtx, fatal)
}

// Stop queues to_stop and asks the loop to exit after its current tick.
func (e *Engine) Stop() {
	e.logger.Info("stopping")
	e.Enqueue(dialogue.EventToStop)
	e.stopped.Store(true)
}

// Enqueue queues an event for the loop. It is safe to call from any
// goroutine.
func (e *Engine) Enqueue(ev dialogue.Event) {
	e.events.Enqueue(ev)
}

// Wake queues wake_detected and reports the wake word to the backend.
// The event is queued first so it precedes the backend's reply.
func (e *Engine) Wake(text string) error {
	e.Enqueue(dialogue.EventWakeDetected)
	return e.send(protocol.NewWakeWord(e.SessionID(), text))
}

// Abort asks the backend to stop the current reply and ends the dialogue.
func (e *Engine) Abort(reason string) error {
	if err := e.send(protocol.NewAbort(e.SessionID(), reason)); err != nil {
		return err
	}
	e.audio.ClearPlaybackQueue()
	e.Enqueue(dialogue.EventDialogueEnd)
	return nil
}

// State returns the current dialogue state.
func (e *Engine) State() dialogue.State {
	return e.machine.CurrentState()
}

// PreviousState returns the state before the last transition.
func (e *Engine) PreviousState() dialogue.State {
	return e.machine.PreviousState()
}

// SessionID returns the current session identifier.
func (e *Engine) SessionID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessionID
}

// Audio returns the audio engine.
func (e *Engine) Audio() *audio.Engine {
	return e.audio
}

func (e *Engine) setSessionID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionID = id
}

// connect dials the backend, sends hello and switches the audio engine to
// AI mode. A failure after dialling closes the connection again.
func (e *Engine) connect(ctx context.Context) error {
	if err := e.transport.Connect(ctx); err != nil {
		return fmt.Errorf("chatbot: connect: %w", err)
	}
	if err := e.handshake(); err != nil {
		if cerr := e.transport.Close(); cerr != nil {
			e.logger.Warn("close transport after failed handshake", "error", cerr)
		}
		return err
	}

	e.stats.connects.Add(1)
	e.logger.Info("backend session started", "session_id", e.SessionID())
	return nil
}

func (e *Engine) handshake() error {
	acfg := e.audio.Config()
	hello := protocol.NewHello(e.cfg.ProtocolVersion, protocol.AudioParams{
		Format:        "opus",
		SampleRate:    acfg.SampleRate,
		Channels:      acfg.Channels,
		FrameDuration: acfg.FrameDurationMs,
	})
	if err := e.send(hello); err != nil {
		return fmt.Errorf("chatbot: hello: %w", err)
	}
	if err := e.audio.SetMode(audio.ModeAI); err != nil {
		return fmt.Errorf("chatbot: set audio mode: %w", err)
	}
	return nil
}

func (e *Engine) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	if err := e.transport.SendText(string(data)); err != nil {
		return err
	}
	e.stats.messagesSent.Add(1)
	return nil
}

// shutdown drives the machine to stopping and releases every resource.
func (e *Engine) shutdown() {
	if e.machine.CurrentState() != dialogue.StateStopping {
		e.machine.HandleEvent(dialogue.EventToStop)
	}

	e.stopStreams()
	e.stopUplink()
	e.uplinkWG.Wait()

	if err := e.transport.Close(); err != nil {
		e.logger.Warn("close transport", "error", err)
	}
	if err := e.audio.Deinit(); err != nil {
		e.logger.Warn("deinit audio", "error", err)
	}

	e.events.Clear()
	e.intents.Clear()
	e.logger.Info("stopped")
}

// reportError logs err and forwards it to the error handler.
func (e *Engine) reportError(msg string, err error) {
	e.stats.errors.Add(1)
	e.logger.Error(msg, "error", err)
	if e.onError != nil {
		e.onError(fmt.Errorf("%s: %w", msg, err))
	}
}

// ignoreModeConflict hides the errors raised when stopping an inactive
// stream.
func ignoreModeConflict(err error) error {
	if err == nil || audio.IsModeConflict(err) {
		return nil
	}
	return err
}
