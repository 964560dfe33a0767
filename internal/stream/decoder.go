// Package stream decodes the analysis server-sent-event channel into typed
// phase events.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/pbaille/platelog/internal/domain"
	"github.com/tmaxmax/go-sse"
)

// maxEventSize bounds a single SSE event; done payloads carry the full result.
const maxEventSize = 4 * 1024 * 1024

var (
	// ErrClosed is returned by Next once the stream has been closed.
	ErrClosed = errors.New("stream closed")
	// ErrUnterminated is returned when the connection ends before done or error.
	ErrUnterminated = errors.New("stream ended before done")
)

// Stream is a single-use sequence of phase events read from one SSE
// connection. It is not safe for concurrent calls to Next.
type Stream struct {
	body     io.ReadCloser
	frames   chan readResult
	done     chan struct{}
	once     sync.Once
	closed   atomic.Bool
	finished atomic.Bool
	closeErr error
}

type frame struct {
	event string
	data  string
}

type readResult struct {
	frame frame
	err   error
}

// New wraps an SSE response body. The stream owns the body from now on.
func New(body io.ReadCloser) *Stream {
	s := &Stream{
		body:   body,
		frames: make(chan readResult),
		done:   make(chan struct{}),
	}
	go s.read()
	return s
}

// read parses events off the body until it ends, fails or the stream closes.
// Comments, ids and retry hints are consumed by the parser.
func (s *Stream) read() {
	defer close(s.frames)

	cfg := &sse.ReadConfig{MaxEventSize: maxEventSize}
	for ev, err := range sse.Read(s.body, cfg) {
		r := readResult{frame: frame{event: ev.Type, data: ev.Data}, err: err}
		select {
		case s.frames <- r:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// Close releases the connection. It is safe to call more than once and from
// another goroutine; only the first call closes the body.
func (s *Stream) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// Next blocks until the next phase event arrives. After a done or error
// event the stream is closed and further calls return io.EOF.
// Cancelling ctx closes the stream and returns ctx.Err().
func (s *Stream) Next(ctx context.Context) (Event, error) {
	if s.finished.Load() {
		return Event{}, io.EOF
	}
	if s.closed.Load() {
		return Event{}, ErrClosed
	}

	for {
		var r readResult
		var ok bool
		select {
		case <-ctx.Done():
			s.Close()
			return Event{}, ctx.Err()
		case <-s.done:
			return Event{}, ErrClosed
		case r, ok = <-s.frames:
		}

		if !ok || r.err != nil {
			wasClosed := s.closed.Load()
			s.Close()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Event{}, ctxErr
			}
			if wasClosed {
				return Event{}, ErrClosed
			}
			if !ok || errors.Is(r.err, io.EOF) || errors.Is(r.err, io.ErrUnexpectedEOF) {
				return Event{}, ErrUnterminated
			}
			return Event{}, fmt.Errorf("read stream: %w", r.err)
		}

		ev, ok := decodeFrame(r.frame)
		if !ok {
			continue
		}
		if ev.Terminal() {
			s.finished.Store(true)
			s.Close()
		}
		return ev, nil
	}
}

func decodeFrame(f frame) (Event, bool) {
	if f.data == "" {
		return Event{}, false
	}
	name := f.event
	if name == "" {
		name = "message"
	}

	switch Phase(name) {
	case PhaseRecognize:
		var p RecognizePayload
		if err := json.Unmarshal([]byte(f.data), &p); err != nil {
			log.Printf("[stream] dropping malformed %s payload: %v", name, err)
			return Event{}, false
		}
		return Event{Phase: PhaseRecognize, Recognize: &p}, true

	case PhaseIngQuant:
		var p IngQuantPayload
		if err := json.Unmarshal([]byte(f.data), &p); err != nil {
			log.Printf("[stream] dropping malformed %s payload: %v", name, err)
			return Event{}, false
		}
		return Event{Phase: PhaseIngQuant, IngQuant: &p}, true

	case PhaseCalories:
		var p CaloriesPayload
		if err := json.Unmarshal([]byte(f.data), &p); err != nil {
			log.Printf("[stream] dropping malformed %s payload: %v", name, err)
			return Event{}, false
		}
		return Event{Phase: PhaseCalories, Calories: &p}, true

	case PhaseDone:
		var p domain.AnalysisResult
		if err := json.Unmarshal([]byte(f.data), &p); err != nil {
			// done still terminates; the accumulated result stands on its own
			log.Printf("[stream] malformed done payload: %v", err)
			p = domain.AnalysisResult{}
		}
		return Event{Phase: PhaseDone, Done: &p}, true

	case PhaseError:
		var p ErrorPayload
		if err := json.Unmarshal([]byte(f.data), &p); err != nil {
			log.Printf("[stream] malformed error payload: %v", err)
			p = ErrorPayload{}
		}
		return Event{Phase: PhaseError, Error: &p}, true

	case "message":
		// Some servers wrap named phases in unnamed {"event": ..., "data": ...} messages
		var env struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal([]byte(f.data), &env); err != nil {
			return Event{}, false
		}
		if env.Event == "" || env.Event == "message" || len(env.Data) == 0 {
			return Event{}, false
		}
		return decodeFrame(frame{event: env.Event, data: string(env.Data)})

	default:
		log.Printf("[stream] ignoring unknown event %q", name)
		return Event{}, false
	}
}
