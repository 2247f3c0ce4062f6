package streamsocket

// Protocol captures everything that differs between the equities and
// crypto streaming-socket variants: URL construction, authentication,
// and frame shapes. The connector's state machine, heartbeat, and
// reconnection logic are shared.
type Protocol interface {
	// BuildURL returns the endpoint to dial for the given symbols. The
	// crypto protocol bakes the initial subscription into the URL; the
	// equities protocol dials a fixed endpoint and subscribes via frames.
	BuildURL(baseURL string, symbols []string) string

	// RequiresAuth reports whether an auth frame must be sent (and
	// acknowledged) before subscribing.
	RequiresAuth() bool
	// AuthFrame builds the authentication frame.
	AuthFrame(apiKey string) []byte
	// IsAuthSuccess reports whether an inbound raw message is the
	// auth-success acknowledgement.
	IsAuthSuccess(raw []byte) bool

	// SubscribeFrames builds the frames to send once connected (and
	// authenticated, if required) to subscribe to the given symbols.
	// The crypto protocol returns nil since its subscription is already
	// encoded in the URL.
	SubscribeFrames(symbols []string) [][]byte
	// AddSymbolFrame / RemoveSymbolFrame build dynamic (un)subscribe
	// control frames for a single symbol on a live connection.
	AddSymbolFrame(symbol string) []byte
	RemoveSymbolFrame(symbol string) []byte

	// IsStatusMessage reports whether a raw inbound message is a
	// connection-status message (not a tick) that should be logged
	// rather than handed to the normalizer.
	IsStatusMessage(raw []byte) bool

	// IsPing / PongFrame support responding to inbound vendor pings.
	IsPing(raw []byte) bool
	PongFrame(raw []byte) []byte
}
