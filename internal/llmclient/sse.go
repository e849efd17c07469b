// File: internal/llmclient/sse.go
package llmclient

import (
	"strings"
)

const (
	// streamChunkBuffer is the channel depth for streamed content chunks.
	streamChunkBuffer = 100
	// maxStreamLineBytes bounds a single SSE line; generous because a frame
	// can carry a large content delta.
	maxStreamLineBytes = 1024 * 1024
)

// sseDataLine extracts the payload of a server-sent-event data line. Returns
// false for comments, blank keep-alives, and non-data fields.
func sseDataLine(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "" {
		return "", false
	}
	return data, true
}
