package chatbot

import (
	"context"

	"github.com/teslashibe/go-glasses/pkg/audio"
	"github.com/teslashibe/go-glasses/pkg/dialogue"
	"github.com/teslashibe/go-glasses/pkg/protocol"
	"github.com/teslashibe/go-glasses/pkg/wire"
)

func (e *Engine) registerStates() {
	logOnly := func(state dialogue.State) (dialogue.Hook, dialogue.Hook) {
		return func() { e.logger.Debug("entering state", "state", state) },
			func() { e.logger.Debug("exiting state", "state", state) }
	}

	for _, s := range []dialogue.State{dialogue.StateStartup, dialogue.StateStopping} {
		enter, exit := logOnly(s)
		e.machine.RegisterState(s, enter, exit)
	}

	_, exitFault := logOnly(dialogue.StateFault)
	e.machine.RegisterState(dialogue.StateFault, e.enterFault, exitFault)

	_, exitIdle := logOnly(dialogue.StateIdle)
	e.machine.RegisterState(dialogue.StateIdle, e.enterIdle, exitIdle)

	e.machine.RegisterState(dialogue.StateListening, e.enterListening, e.exitListening)

	enterThinking, exitThinking := logOnly(dialogue.StateThinking)
	e.machine.RegisterState(dialogue.StateThinking, enterThinking, exitThinking)

	e.machine.RegisterState(dialogue.StateSpeaking, e.enterSpeaking, e.exitSpeaking)
}

func (e *Engine) enterIdle() {
	e.stopStreams()
	e.audio.ClearPlaybackQueue()
}

func (e *Engine) enterListening() {
	e.audio.ClearRecordingQueue()
	if err := e.audio.StartRecording(); err != nil {
		e.reportError("start recording", err)
		return
	}
	if err := e.send(protocol.NewListen(e.SessionID(), protocol.StateStart, e.cfg.ListenMode)); err != nil {
		e.logger.Warn("send listen start", "error", err)
	}
	e.startUplink()
}

func (e *Engine) exitListening() {
	if err := ignoreModeConflict(e.audio.StopRecording()); err != nil {
		e.reportError("stop recording", err)
	}
	e.stopUplink()
	if err := e.send(protocol.NewListen(e.SessionID(), protocol.StateStop, e.cfg.ListenMode)); err != nil {
		e.logger.Warn("send listen stop", "error", err)
	}
}

func (e *Engine) enterSpeaking() {
	if err := e.audio.StartPlayback(); err != nil {
		e.reportError("start playback", err)
	}
}

func (e *Engine) exitSpeaking() {
	if err := ignoreModeConflict(e.audio.StopPlayback()); err != nil {
		e.reportError("stop playback", err)
	}
}

func (e *Engine) enterFault() {
	e.stats.faults.Add(1)
	e.logger.Warn("entering fault state")
	e.requestRecovery()
}

// stopStreams stops both streams. Stopping an inactive stream is not an
// error here.
func (e *Engine) stopStreams() {
	if err := ignoreModeConflict(e.audio.StopRecording()); err != nil {
		e.reportError("stop recording", err)
	}
	if err := ignoreModeConflict(e.audio.StopPlayback()); err != nil {
		e.reportError("stop playback", err)
	}
}

// startUplink starts the worker that streams recorded audio to the backend.
func (e *Engine) startUplink() {
	e.uplinkMu.Lock()
	defer e.uplinkMu.Unlock()

	if e.uplinkCtx == nil || e.uplinkCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(e.uplinkCtx)
	e.uplinkCancel = cancel

	e.uplinkWG.Add(1)
	go func() {
		defer e.uplinkWG.Done()
		e.uplink(ctx)
	}()
}

// stopUplink cancels the uplink worker and waits for it to exit.
func (e *Engine) stopUplink() {
	e.uplinkMu.Lock()
	cancel := e.uplinkCancel
	e.uplinkCancel = nil
	e.uplinkMu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.uplinkWG.Wait()
}

// uplink encodes recorded frames and sends them framed until recording ends
// or ctx is cancelled.
func (e *Engine) uplink(ctx context.Context) {
	buf := make([]byte, audio.MaxEncodeBufferSize)
	version := uint16(e.cfg.ProtocolVersion)

	for ctx.Err() == nil {
		pcm, ok := e.audio.GetRecordedAudio(ctx)
		if !ok {
			return
		}

		n, err := e.audio.EncodeOpus(pcm, buf)
		if err != nil {
			e.reportError("encode", err)
			continue
		}

		if err := e.transport.SendBinary(wire.Pack(buf[:n], version)); err != nil {
			e.stats.sendErrors.Add(1)
			e.logger.Debug("send audio", "error", err)
			continue
		}
		e.stats.framesSent.Add(1)
	}
}
