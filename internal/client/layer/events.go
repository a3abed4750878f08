package layer

// EventKind enumerates the lifecycle events a Client reports.
type EventKind int

const (
	EventConnecting EventKind = iota
	EventConnected
	EventDisconnected
	EventConnectionLost
	EventError
	// EventAuthenticationChallenge means the session token was refused;
	// Nonce carries a fresh nonce to re-authenticate with.
	EventAuthenticationChallenge
)

func (k EventKind) String() string {
	switch k {
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventConnectionLost:
		return "connection_lost"
	case EventError:
		return "error"
	case EventAuthenticationChallenge:
		return "authentication_challenge"
	default:
		return "unknown"
	}
}

// Event is a single client lifecycle event.
type Event struct {
	Kind  EventKind
	Err   error
	Nonce string
}

// Observer receives client events. Implementations must not block.
type Observer interface {
	ClientEvent(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) ClientEvent(ev Event) { f(ev) }
