package intent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/teslashibe/go-glasses/pkg/protocol"
)

func TestFromMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantOK   bool
		wantName string
	}{
		{"object call", `{"type":"function_call","function_call":{"name":"take_photo","arguments":{}}}`, true, "take_photo"},
		{"call on tts", `{"type":"tts","state":"start","function_call":{"name":"make_call"}}`, true, "make_call"},
		{"string call ignored", `{"type":"function_call","function_call":"take_photo"}`, false, ""},
		{"no call", `{"type":"asr","text":"hi"}`, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := protocol.Parse([]byte(tt.input))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			in, ok := FromMessage(msg)
			if ok != tt.wantOK {
				t.Fatalf("FromMessage ok = %v, want %v", ok, tt.wantOK)
			}
			if in.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", in.Name, tt.wantName)
			}
			if ok && string(in.Raw) != tt.input {
				t.Errorf("Raw = %s, want the original message", in.Raw)
			}
		})
	}

	if _, ok := FromMessage(nil); ok {
		t.Error("nil message should carry no intent")
	}
}

func TestIntentArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    map[string]any
		wantErr bool
	}{
		{"empty", ``, map[string]any{}, false},
		{"object", `{"number":"10086"}`, map[string]any{"number": "10086"}, false},
		{"string encoded", `"{\"direction\":\"left\"}"`, map[string]any{"direction": "left"}, false},
		{"array", `[1,2]`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Intent{Name: "x", Arguments: json.RawMessage(tt.args)}
			got, err := in.Args()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Args() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Args() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Args()[%s] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter()

	var gotArgs map[string]any
	r.Handle(MakeCall, func(_ context.Context, in Intent, args map[string]any) error {
		gotArgs = args
		return nil
	})

	err := r.HandleIntent(context.Background(), Intent{Name: MakeCall, Arguments: json.RawMessage(`{"number":"123"}`)})
	if err != nil {
		t.Fatalf("HandleIntent failed: %v", err)
	}
	if gotArgs["number"] != "123" {
		t.Errorf("handler args = %v", gotArgs)
	}

	t.Run("unknown without fallback", func(t *testing.T) {
		err := r.HandleIntent(context.Background(), Intent{Name: "fly"})
		if !IsUnknown(err) {
			t.Errorf("expected ErrUnknownIntent, got %v", err)
		}
	})

	t.Run("invalid arguments", func(t *testing.T) {
		err := r.HandleIntent(context.Background(), Intent{Name: MakeCall, Arguments: json.RawMessage(`42`)})
		if !errors.Is(err, ErrInvalidArguments) {
			t.Errorf("expected ErrInvalidArguments, got %v", err)
		}
	})

	t.Run("handler error", func(t *testing.T) {
		cause := errors.New("camera busy")
		r.Handle(TakePhoto, func(context.Context, Intent, map[string]any) error { return cause })

		err := r.HandleIntent(context.Background(), Intent{Name: TakePhoto})
		var hErr *HandlerError
		if !errors.As(err, &hErr) || hErr.Name != TakePhoto {
			t.Fatalf("expected HandlerError for take_photo, got %v", err)
		}
		if !errors.Is(err, cause) {
			t.Error("HandlerError should unwrap to cause")
		}
	})

	stats := r.Stats()
	if stats.Dispatched != 2 || stats.Unhandled != 1 || stats.Failed != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestRouterFallback(t *testing.T) {
	var got string
	r := NewRouter(WithFallback(func(_ context.Context, in Intent, _ map[string]any) error {
		got = in.Name
		return nil
	}))

	if err := r.HandleIntent(context.Background(), Intent{Name: "robot_dance"}); err != nil {
		t.Fatalf("HandleIntent failed: %v", err)
	}
	if got != "robot_dance" {
		t.Errorf("fallback got %q", got)
	}
}

func TestLoggingRouter(t *testing.T) {
	r := NewLoggingRouter(nil)

	names := r.Names()
	if len(names) != len(Known) {
		t.Fatalf("Names() = %v, want %d entries", names, len(Known))
	}
	for _, name := range Known {
		if err := r.HandleIntent(context.Background(), Intent{Name: name}); err != nil {
			t.Errorf("HandleIntent(%s) failed: %v", name, err)
		}
	}
}

func TestDispatcherFunc(t *testing.T) {
	var called bool
	var d Dispatcher = DispatcherFunc(func(context.Context, Intent) error {
		called = true
		return nil
	})
	_ = d.HandleIntent(context.Background(), Intent{Name: TakePhoto})
	if !called {
		t.Error("DispatcherFunc was not called")
	}
}

func TestRouterConcurrent(t *testing.T) {
	r := NewRouter()
	r.Handle(RobotMove, func(context.Context, Intent, map[string]any) error { return nil })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.HandleIntent(context.Background(), Intent{Name: RobotMove})
		}()
		go func() {
			defer wg.Done()
			r.Handle(StartRecording, func(context.Context, Intent, map[string]any) error { return nil })
			_ = r.Names()
		}()
	}
	wg.Wait()

	if got := r.Stats().Dispatched; got != 50 {
		t.Errorf("Dispatched = %d, want 50", got)
	}
}
