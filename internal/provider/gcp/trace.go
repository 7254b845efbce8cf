package gcp

import (
	"fmt"
	"strings"
)

// extractTraceID normalizes the two trace representations seen in this
// pipeline to the bare trace id:
//
//	response header: "TRACE_ID/SPAN_ID;o=1"
//	log entry trace: "projects/<project>/traces/TRACE_ID"
func extractTraceID(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("gcp: empty trace reference")
	}
	if strings.HasPrefix(raw, "projects/") {
		parts := strings.Split(raw, "/")
		return parts[len(parts)-1], nil
	}
	raw, _, _ = strings.Cut(raw, ";")
	id, _, _ := strings.Cut(raw, "/")
	if id == "" {
		return "", fmt.Errorf("gcp: malformed trace reference %q", raw)
	}
	return id, nil
}

// cpuForMemory returns the Cloud Run cpu limit paired with a memory size.
// Cloud Run requires more cpu as memory grows.
func cpuForMemory(memoryMB int) string {
	switch {
	case memoryMB <= 2048:
		return "1"
	case memoryMB <= 4096:
		return "2"
	default:
		return "4"
	}
}
