// Package intent routes backend function calls to device actions.
//
// The backend attaches a function_call object to a control message when it
// wants the device to do something outside the conversation, such as taking
// a photo. The dialogue engine queues these as Intents and hands them to a
// Dispatcher from its run loop.
package intent

import (
	"context"
	"encoding/json"

	"github.com/teslashibe/go-glasses/pkg/protocol"
)

// Function names the backend is known to call.
const (
	TakePhoto       = "take_photo"
	StartRecording  = "start_recording"
	AIVisionAnalyze = "ai_vision_analyze"
	MakeCall        = "make_call"
	RobotMove       = "robot_move"
)

// Known lists every function name in the device vocabulary.
var Known = []string{TakePhoto, StartRecording, AIVisionAnalyze, MakeCall, RobotMove}

// Intent is a function call requested by the backend.
type Intent struct {
	// Name is the function name.
	Name string `json:"name"`

	// Arguments is the raw arguments value, an object or a JSON-encoded
	// string holding one.
	Arguments json.RawMessage `json:"arguments,omitempty"`

	// Raw is the complete control message that carried the call.
	Raw json.RawMessage `json:"-"`
}

// FromMessage extracts the intent carried by msg. It returns false when the
// message has no function call object.
func FromMessage(msg *protocol.Message) (Intent, bool) {
	if msg == nil || !msg.HasFunctionCall() {
		return Intent{}, false
	}
	return Intent{
		Name:      msg.FunctionCall.Name,
		Arguments: msg.FunctionCall.Arguments,
		Raw:       msg.Raw,
	}, true
}

// Args decodes the arguments into a map. Missing arguments yield an empty
// map.
func (i Intent) Args() (map[string]any, error) {
	fc := protocol.FunctionCall{Name: i.Name, Arguments: i.Arguments}
	return fc.ArgumentsMap()
}

// String returns the function name.
func (i Intent) String() string {
	return i.Name
}

// Dispatcher executes intents.
type Dispatcher interface {
	HandleIntent(ctx context.Context, in Intent) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, in Intent) error

// HandleIntent calls f.
func (f DispatcherFunc) HandleIntent(ctx context.Context, in Intent) error {
	return f(ctx, in)
}
