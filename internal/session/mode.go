package session

// Mode is the session's transfer state. Exactly one mode is active at a
// time and only the owning goroutine changes it.
type Mode int32

const (
	// ModeIdle interprets every chunk as control text.
	ModeIdle Mode = iota
	// ModeAwaitingAck has sent FILE_START and waits for the peer's answer.
	ModeAwaitingAck
	// ModeReceiving treats every byte as payload until the declared size.
	ModeReceiving
	// ModeSendPending is streaming an outbound payload.
	ModeSendPending
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeAwaitingAck:
		return "awaiting-ack"
	case ModeReceiving:
		return "receiving"
	case ModeSendPending:
		return "send-pending"
	default:
		return "unknown"
	}
}

// Direction of a transfer relative to this side of the session.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)
