package relay

// FrameType tags the relay wire frames. The relay never inspects payloads; it
// binds ids and forwards frames between them.
type FrameType string

const (
	// FrameOpen acknowledges a successful id registration.
	FrameOpen FrameType = "OPEN"
	// FrameConnect asks the relay to introduce the sender to Dst.
	FrameConnect FrameType = "CONNECT"
	// FrameAccept confirms a CONNECT back to the dialer.
	FrameAccept FrameType = "ACCEPT"
	FrameData   FrameType = "DATA"
	FrameClose  FrameType = "CLOSE"
	FrameError  FrameType = "ERROR"
)

const (
	ErrUnavailableID   = "unavailable-id"
	ErrPeerUnavailable = "peer-unavailable"
)

type Frame struct {
	Type  FrameType `json:"type"`
	Src   string    `json:"src,omitempty"`
	Dst   string    `json:"dst,omitempty"`
	Error string    `json:"error,omitempty"`
	// Payload is opaque to the relay; JSON base64-encodes it on the wire.
	Payload []byte `json:"payload,omitempty"`
}
