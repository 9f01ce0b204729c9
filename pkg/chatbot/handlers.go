package chatbot

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-glasses/pkg/dialogue"
	"github.com/teslashibe/go-glasses/pkg/intent"
	"github.com/teslashibe/go-glasses/pkg/protocol"
	"github.com/teslashibe/go-glasses/pkg/wire"
)

// handleMessage runs on the transport receive goroutine.
func (e *Engine) handleMessage(data []byte, isBinary bool) {
	if isBinary {
		e.handleBinary(data)
		return
	}
	e.handleText(data)
}

func (e *Engine) handleText(data []byte) {
	e.stats.messagesReceived.Add(1)

	msg, err := protocol.Parse(data)
	if err != nil {
		e.logger.Error("bad control message", "error", err, "message", string(data))
		e.stats.malformed.Add(1)
		if e.onError != nil {
			e.onError(fmt.Errorf("%w: %v", ErrMalformedMessage, err))
		}
		e.Enqueue(dialogue.EventFaultHappen)
		return
	}

	e.logger.Debug("control message", "type", msg.Type, "state", msg.State)

	switch msg.Type {
	case protocol.TypeHello:
		if msg.SessionID != "" {
			e.setSessionID(msg.SessionID)
		}
		e.logger.Info("backend hello", "session_id", msg.SessionID)
	case protocol.TypeVAD:
		if msg.IsNoSpeech() {
			e.Enqueue(dialogue.EventVADNoSpeech)
		}
	case protocol.TypeASR:
		e.logger.Info("speech recognized", "text", msg.Text)
		// arm before queueing; reply audio may arrive right behind the asr
		e.firstAudio.Store(true)
		e.Enqueue(dialogue.EventASRReceived)
	case protocol.TypeChat:
		e.logger.Info("reply", "text", msg.Text)
	case protocol.TypeTTS:
		if msg.IsTTSEnd() {
			e.Enqueue(dialogue.EventSpeakingEnd)
		}
	case protocol.TypeError:
		e.logger.Error("backend error", "message", string(data))
		e.Enqueue(dialogue.EventFaultHappen)
	case protocol.TypeFunctionCall, "":
	default:
		e.logger.Warn("unknown message type", "type", msg.Type)
	}

	if in, ok := intent.FromMessage(msg); ok {
		e.intents.Enqueue(in)
	}
}

func (e *Engine) handleBinary(data []byte) {
	frame, err := wire.Unpack(data)
	if err != nil {
		e.logger.Error("bad audio frame", "error", err, "size", len(data))
		e.stats.malformed.Add(1)
		if e.onError != nil {
			e.onError(fmt.Errorf("%w: %v", ErrMalformedFrame, err))
		}
		e.Enqueue(dialogue.EventFaultHappen)
		return
	}
	if frame.Type != wire.TypeAudio {
		e.logger.Warn("unsupported frame type", "type", frame.Type)
		return
	}
	e.stats.framesReceived.Add(1)

	if e.firstAudio.CompareAndSwap(true, false) {
		e.Enqueue(dialogue.EventSpeakingMsgReceived)
	}

	// decodeBuf is only touched from the receive goroutine.
	n, err := e.audio.DecodeOpus(frame.Payload, e.decodeBuf)
	if err != nil {
		e.reportError("decode", err)
		return
	}
	e.audio.AddFrameToPlaybackQueue(e.decodeBuf[:n])
}

func (e *Engine) handleClose(err error) {
	if err != nil {
		e.logger.Warn("backend connection closed", "error", err)
	} else {
		e.logger.Info("backend connection closed")
	}
	e.Enqueue(dialogue.EventFaultHappen)
}

func (e *Engine) dispatch(ctx context.Context, in intent.Intent) {
	if e.dispatcher == nil {
		e.logger.Info("intent dropped, no dispatcher", "name", in.Name)
		return
	}
	e.stats.intentsDispatched.Add(1)
	if err := e.dispatcher.HandleIntent(ctx, in); err != nil {
		e.reportError("intent "+in.Name, err)
	}
}
