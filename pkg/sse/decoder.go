package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedFrame is returned for a complete frame whose payload is not a valid event.
// Decoding may continue after it.
var ErrMalformedFrame = errors.New("sse: malformed frame")

const readChunk = 4096

// Decoder reads events from a `data:` framed stream. Frames may be split
// across arbitrary read boundaries; a frame is only parsed once its blank
// line terminator has arrived.
type Decoder struct {
	r    io.Reader
	buf  []byte
	done bool
	eof  bool
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Done reports whether the [DONE] sentinel has been seen.
func (d *Decoder) Done() bool {
	return d.done
}

// Next returns the next event. It returns io.EOF once the underlying reader
// is exhausted; a trailing partial frame is dropped.
func (d *Decoder) Next() (Event, error) {
	for {
		if block, ok := d.nextBlock(); ok {
			payload, ok := dataPayload(block)
			if !ok {
				continue
			}
			if string(payload) == DoneSentinel {
				d.done = true
				continue
			}
			var ev Event
			if err := json.Unmarshal(payload, &ev); err != nil {
				return Event{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
			}
			return ev, nil
		}

		if d.eof {
			return Event{}, io.EOF
		}
		if err := d.fill(); err != nil {
			return Event{}, err
		}
	}
}

func (d *Decoder) fill() error {
	chunk := make([]byte, readChunk)
	n, err := d.r.Read(chunk)
	if n > 0 {
		d.buf = append(d.buf, chunk[:n]...)
	}
	if errors.Is(err, io.EOF) {
		d.eof = true
		return nil
	}
	return err
}

// nextBlock cuts the first blank-line terminated block off the buffer.
func (d *Decoder) nextBlock() ([]byte, bool) {
	idx, sepLen := blockEnd(d.buf)
	if idx < 0 {
		return nil, false
	}
	block := d.buf[:idx]
	d.buf = d.buf[idx+sepLen:]
	return block, true
}

func blockEnd(buf []byte) (int, int) {
	lf := bytes.Index(buf, []byte("\n\n"))
	crlf := bytes.Index(buf, []byte("\r\n\r\n"))
	switch {
	case lf < 0 && crlf < 0:
		return -1, 0
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return crlf, 4
	default:
		return lf, 2
	}
}

// dataPayload joins the `data:` lines of a block. Comment and field lines
// other than data are ignored.
func dataPayload(block []byte) ([]byte, bool) {
	var (
		out   []byte
		found bool
	)
	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		value := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
		if found {
			out = append(out, '\n')
		}
		out = append(out, value...)
		found = true
	}
	if !found {
		return nil, false
	}
	return bytes.TrimSpace(out), true
}
