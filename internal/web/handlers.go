package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/pushrod/servoctl/internal/logic/command"
	"github.com/pushrod/servoctl/internal/logic/sequence"
	"github.com/pushrod/servoctl/internal/protocol"
)

const maxBodyBytes = 1 << 20

// CommandPayload is the JSON body of POST /commands. Slider values may
// arrive as floats and are rounded to the nearest integer.
type CommandPayload struct {
	Kind         string  `json:"kind"`
	Displacement float64 `json:"displacement"`
	Speed        float64 `json:"speed"`
	Repeats      int     `json:"repeats"`
	DurationS    float64 `json:"duration_s"` // period, exposure or reset delay, in seconds
}

// DispatchFunc runs one request against the open session.
type DispatchFunc func(ctx context.Context, r command.Request) (command.Ack, error)

// StateFunc reports the last token written to the device.
type StateFunc func() protocol.Token

// FormConfig holds slider ranges and defaults for the control page (from config).
type FormConfig struct {
	MinDisplacement     int     `json:"min_displacement"`
	MaxDisplacement     int     `json:"max_displacement"`
	DefaultDisplacement int     `json:"default_displacement"`
	DefaultSpeed        int     `json:"default_speed"`
	Repeats             int     `json:"repeats"`
	PeriodS             float64 `json:"period_s"`
	ExposureS           float64 `json:"exposure_s"`
	RepeatDelayS        float64 `json:"repeat_delay_s"`
	Port                string  `json:"port"`
}

// State is the body of GET /state.
type State struct {
	Running   bool   `json:"running"`
	Kind      string `json:"kind,omitempty"`
	LastToken string `json:"last_token"`
}

// ValidatePayload checks a payload and converts it to a typed request.
func ValidatePayload(p CommandPayload) (command.Request, error) {
	kind, err := command.ParseKind(p.Kind)
	if err != nil {
		return command.Request{}, err
	}
	for name, v := range map[string]float64{
		"displacement": p.Displacement,
		"speed":        p.Speed,
		"duration_s":   p.DurationS,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return command.Request{}, fmt.Errorf("%s must be a finite number", name)
		}
	}
	speed := protocol.RoundToInt(p.Speed)
	if speed < 0 || speed > int(protocol.SpeedMax) {
		return command.Request{}, fmt.Errorf("speed must be between 0 and %d, got %d", protocol.SpeedMax, speed)
	}
	if p.Repeats < 0 {
		return command.Request{}, fmt.Errorf("repeats must be >= 0, got %d", p.Repeats)
	}
	if p.DurationS < 0 || p.DurationS > 3600 {
		return command.Request{}, fmt.Errorf("duration_s must be between 0 and 3600, got %g", p.DurationS)
	}
	return command.Request{
		Kind:         kind,
		Displacement: protocol.RoundToInt(p.Displacement),
		Speed:        protocol.SpeedLevel(speed),
		Repeats:      p.Repeats,
		Duration:     time.Duration(p.DurationS * float64(time.Second)),
	}, nil
}

// isProgram reports whether k runs a timed sequence in the background.
func isProgram(k command.Kind) bool {
	switch k {
	case command.KindOscillate, command.KindExpose, command.KindRepeatWithReset:
		return true
	}
	return false
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Dispatch     DispatchFunc
	LastToken    StateFunc
	FormDefaults FormConfig
	staticFS     fs.FS

	runningMu sync.Mutex
	running   bool
	kind      command.Kind
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewHandlers creates handlers with the given dependencies.
// If dispatch is nil, POST /commands will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, dispatch DispatchFunc, lastToken StateFunc, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:  broadcaster,
		Dispatch:     dispatch,
		LastToken:    lastToken,
		FormDefaults: formDefaults,
		staticFS:     staticFS,
	}
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.FormDefaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleState returns whether a command is running and the last token sent.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	st := State{Running: h.running}
	if h.running {
		st.Kind = h.kind.String()
	}
	h.runningMu.Unlock()
	if h.LastToken != nil {
		st.LastToken = string(h.LastToken())
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

// HandleCommand handles POST /commands. Primitive motions run inline and
// answer 200 with the acknowledgement; timed programs run in the background
// and answer 202. Only one command runs at a time.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload CommandPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	req, err := ValidatePayload(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Dispatch == nil {
		http.Error(w, "actuator not connected", http.StatusServiceUnavailable)
		return
	}

	ctx, ok := h.begin(req.Kind)
	if !ok {
		http.Error(w, "command already in progress", http.StatusConflict)
		return
	}

	if !isProgram(req.Kind) {
		ack, err := h.run(ctx, req)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ack)
		return
	}

	go h.run(ctx, req)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// HandleAbort handles POST /abort: the running program stops before its next step.
func (h *Handlers) HandleAbort(w http.ResponseWriter, r *http.Request) {
	status := "idle"
	if h.Abort() {
		status = "aborting"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// Abort cancels the running command, if any, and reports whether one was running.
func (h *Handlers) Abort() bool {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	if !h.running {
		return false
	}
	h.cancel()
	return true
}

// Wait blocks until no command is running.
func (h *Handlers) Wait() {
	h.runningMu.Lock()
	done := h.done
	h.runningMu.Unlock()
	if done != nil {
		<-done
	}
}

func (h *Handlers) begin(k command.Kind) (context.Context, bool) {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	if h.running {
		return nil, false
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.running = true
	h.kind = k
	h.cancel = cancel
	h.done = make(chan struct{})
	return ctx, true
}

func (h *Handlers) run(ctx context.Context, req command.Request) (command.Ack, error) {
	defer func() {
		h.runningMu.Lock()
		h.cancel()
		h.running = false
		close(h.done)
		h.runningMu.Unlock()
	}()

	ack, err := h.Dispatch(ctx, req)
	switch {
	case errors.Is(err, context.Canceled):
		h.Broadcaster.Broadcast("warn", req.Kind.String()+" aborted")
	case err != nil:
		h.Broadcaster.Broadcast("error", req.Kind.String()+" failed: "+err.Error())
		log.Printf("%s failed: %v", req.Kind, err)
	case ack.Skipped:
		h.Broadcaster.Broadcast("info", req.Kind.String()+": speed 0, nothing sent")
	default:
		h.Broadcaster.Broadcast("info", req.Kind.String()+" complete")
	}
	return ack, err
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, protocol.ErrInvalidSpeed), errors.Is(err, protocol.ErrInvalidDisplacement),
		errors.Is(err, command.ErrInvalidRequest), errors.Is(err, command.ErrUnknownKind),
		errors.Is(err, sequence.ErrInvalidProgram):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
