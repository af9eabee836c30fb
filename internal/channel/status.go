package channel

// Message kinds carried by StatusEvent. The numeric values are part of the
// bridge contract and must not change.
type MessageKind int

const (
	KindState    MessageKind = 1
	KindDuration MessageKind = 2
	KindPosition MessageKind = 3
	KindError    MessageKind = 9
)

// Error codes reported through StatusEvent. Codes above ErrAborted are
// engine-native and pass through verbatim.
const (
	ErrNoneActive = 0
	ErrAborted    = 1
)

// StatusEvent is one asynchronous notification to the caller. Exactly one
// payload field is populated: a state/error code or a float value, never
// both.
type StatusEvent struct {
	ChannelID string
	Kind      MessageKind
	Code      int
	Value     float64
	HasCode   bool
	HasValue  bool
}

// Notifier receives every StatusEvent a channel emits. Implementations are
// called with the channel lock held and must not call back into the
// channel.
type Notifier interface {
	Notify(ev StatusEvent)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ev StatusEvent)

// Notify calls f(ev).
func (f NotifierFunc) Notify(ev StatusEvent) { f(ev) }

func codeEvent(id string, kind MessageKind, code int) StatusEvent {
	return StatusEvent{ChannelID: id, Kind: kind, Code: code, HasCode: true}
}

func valueEvent(id string, kind MessageKind, value float64) StatusEvent {
	return StatusEvent{ChannelID: id, Kind: kind, Value: value, HasValue: true}
}
