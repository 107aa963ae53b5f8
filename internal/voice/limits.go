package voice

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit; audio chunks included).
	maxFrameBytes = 256 << 10 // 256 KiB

	// Max command text length (runes).
	maxCommandChars = 4000

	// Max total bytes buffered per audio stream before appends are refused.
	maxStreamBytes = 8 << 20 // 8 MiB
)

const (
	// Heartbeat defaults (can be overridden by env in gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
)
