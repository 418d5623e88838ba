// Package demux separates live narration from an embedded <image_prompt>
// block while a model response is still streaming.
package demux

import (
	"regexp"
	"strings"
)

const (
	StartMarker = "<image_prompt>"
	EndMarker   = "</image_prompt>"
)

var blockPattern = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(StartMarker) + `(.*?)` + regexp.QuoteMeta(EndMarker))

// State of the demultiplexer.
type State int

const (
	Narrating State = iota
	Capturing
	DoneCapturing
)

func (s State) String() string {
	switch s {
	case Narrating:
		return "narrating"
	case Capturing:
		return "capturing"
	case DoneCapturing:
		return "done_capturing"
	default:
		return "unknown"
	}
}

// Demux is fed deltas in arrival order. Marker detection runs on the
// cumulative buffer, and Feed only ever returns text that has not been
// returned before, so narration is neither duplicated nor lost when a marker
// straddles two deltas. While narrating, a trailing fragment that could be
// the beginning of the start marker is held back until the next delta (or
// Flush) decides it.
//
// A Demux is not safe for concurrent use.
type Demux struct {
	buf    strings.Builder
	state  State
	cursor int // bytes of buf already forwarded or consumed
	scan   int // where the next end marker search starts
}

// New returns a demultiplexer in the Narrating state.
func New() *Demux {
	return &Demux{}
}

// State returns the current state.
func (d *Demux) State() State {
	return d.state
}

// Full returns everything fed so far, markers included.
func (d *Demux) Full() string {
	return d.buf.String()
}

// Feed consumes one delta and returns the narration to forward for it,
// possibly empty.
func (d *Demux) Feed(delta string) string {
	if delta == "" {
		return ""
	}
	d.buf.WriteString(delta)
	return d.advance(false)
}

// Flush releases narration held back at the end of the stream.
func (d *Demux) Flush() string {
	return d.advance(true)
}

func (d *Demux) advance(final bool) string {
	full := d.buf.String()
	var out strings.Builder

	for {
		switch d.state {
		case Narrating:
			pending := full[d.cursor:]
			if i := strings.Index(pending, StartMarker); i >= 0 {
				out.WriteString(pending[:i])
				d.cursor += i + len(StartMarker)
				d.scan = d.cursor
				d.state = Capturing
				// the same delta may already close the block
				continue
			}
			keep := 0
			if !final {
				keep = partialPrefixLen(pending, StartMarker)
			}
			out.WriteString(pending[:len(pending)-keep])
			d.cursor += len(pending) - keep
			return out.String()

		case Capturing:
			if i := strings.Index(full[d.scan:], EndMarker); i >= 0 {
				d.cursor = d.scan + i + len(EndMarker)
				d.state = DoneCapturing
				continue
			}
			if next := len(full) - (len(EndMarker) - 1); next > d.scan {
				d.scan = next
			}
			return out.String()

		default:
			// only the first block is captured; later markers pass through as narration
			out.WriteString(full[d.cursor:])
			d.cursor = len(full)
			return out.String()
		}
	}
}

// partialPrefixLen returns the length of the longest proper prefix of marker
// that s ends with.
func partialPrefixLen(s, marker string) int {
	longest := min(len(marker)-1, len(s))
	for n := longest; n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return n
		}
	}
	return 0
}

// Extract returns the directive captured between the markers. When the end
// marker never arrived it falls back to everything after the start marker.
// ok is false when no non-empty directive exists, which is a normal outcome.
func (d *Demux) Extract() (directive string, ok bool) {
	return Extract(d.buf.String())
}

// Extract applies the same two extraction passes to a complete response.
func Extract(full string) (string, bool) {
	if m := blockPattern.FindStringSubmatch(full); m != nil {
		directive := strings.TrimSpace(m[1])
		return directive, directive != ""
	}

	i := strings.Index(full, StartMarker)
	if i < 0 {
		return "", false
	}
	rest := strings.ReplaceAll(full[i+len(StartMarker):], EndMarker, "")
	directive := strings.TrimSpace(rest)
	return directive, directive != ""
}
