package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/zhouzirui/scene-studio/backend/pkg/utils"
)

// DoneSentinel is the final frame of every stream. It is not JSON.
const DoneSentinel = "[DONE]"

// fallbackMessage replaces an event that cannot be serialized.
const fallbackMessage = "服务器内部错误，部分内容无法发送"

// ErrClosed is returned by Writer after the transport failed or the stream was closed.
var ErrClosed = errors.New("sse: stream closed")

// Encode serializes one event as a `data: <json>\n\n` frame.
func Encode(ev Event) ([]byte, error) {
	return encodeWith(json.Marshal, ev)
}

func encodeWith(marshal func(any) ([]byte, error), ev Event) ([]byte, error) {
	data, err := marshal(ev)
	if err != nil {
		return nil, err
	}
	return frame(data), nil
}

func frame(data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	out = append(out, "data: "...)
	out = append(out, data...)
	return append(out, '\n', '\n')
}

// Writer frames events onto a transport and flushes after each one.
// It is safe for use by one producer at a time; the mutex only guards Close
// racing a final Write during shutdown.
type Writer struct {
	mu      sync.Mutex
	out     io.Writer
	marshal func(any) ([]byte, error)
	err     error
	closed  bool
}

// NewWriter wraps out. If out implements http.Flusher every frame is flushed.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out, marshal: json.Marshal}
}

// Write sends one event. An event that fails to serialize is replaced by a
// generic error event so the rest of the stream still goes out.
func (w *Writer) Write(ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.err != nil {
		return w.closedErr()
	}

	buf, err := encodeWith(w.marshal, ev)
	if err != nil {
		buf, err = encodeWith(json.Marshal, Error(fallbackMessage))
		if err != nil {
			return fmt.Errorf("sse: encode fallback: %w", err)
		}
	}
	return w.writeLocked(buf)
}

// Close writes the [DONE] sentinel. Calling it more than once is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.err != nil {
		return w.closedErr()
	}
	return w.writeLocked(frame([]byte(DoneSentinel)))
}

// Err returns the first transport error, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Writer) writeLocked(buf []byte) error {
	if _, err := w.out.Write(buf); err != nil {
		w.err = err
		return w.closedErr()
	}
	utils.Flush(w.out)
	return nil
}

func (w *Writer) closedErr() error {
	if w.err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, w.err)
	}
	return ErrClosed
}

// Pump drains events into w in arrival order. observe, when non-nil, sees
// every event that is written. Pump guarantees exactly one done event: a
// missing one is appended when the channel closes, and anything after the
// first one is discarded. Writing stops when ctx is cancelled or the
// transport fails; the channel is still drained so the producer can exit.
// Pump does not write the [DONE] sentinel; the caller closes w once any
// follow-up work is finished.
func Pump(ctx context.Context, w *Writer, events <-chan Event, observe func(Event)) error {
	var (
		writeErr error
		sawDone  bool
	)

	for ev := range events {
		if sawDone || writeErr != nil {
			continue
		}
		if ctx.Err() != nil {
			writeErr = ctx.Err()
			continue
		}
		if observe != nil {
			observe(ev)
		}
		if err := w.Write(ev); err != nil {
			writeErr = err
			continue
		}
		if ev.IsTerminal() {
			sawDone = true
		}
	}

	if writeErr != nil {
		return writeErr
	}
	if !sawDone {
		done := Done()
		if observe != nil {
			observe(done)
		}
		return w.Write(done)
	}
	return nil
}
