// Package sse implements the event envelope exchanged between agents and
// their transports, plus the `data:` framing used on the wire.
package sse

// Event kinds.
const (
	KindMessage = "message"
	KindError   = "error"
	KindDone    = "done"
)

// Event is one unit of a streamed agent response.
type Event struct {
	Event string  `json:"event"`
	Data  Payload `json:"data"`
}

// Payload carries the fields of an event. Which ones are set depends on the kind.
type Payload struct {
	Answer    string `json:"answer,omitempty"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Message builds a narration event.
func Message(answer, sessionID string) Event {
	return Event{Event: KindMessage, Data: Payload{Answer: answer, SessionID: sessionID}}
}

// Error builds an error event. A Done event must still follow it.
func Error(message string) Event {
	return Event{Event: KindError, Data: Payload{Message: message}}
}

// Done builds the terminal event.
func Done() Event {
	return Event{Event: KindDone}
}

// IsTerminal reports whether the event ends a stream.
func (e Event) IsTerminal() bool {
	return e.Event == KindDone
}
