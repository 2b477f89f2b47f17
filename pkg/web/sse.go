package web

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sync"
)

// sseWriter writes server-sent events to a streaming response.
type sseWriter struct {
	w  *bufio.Writer
	mu sync.Mutex
}

func newSSEWriter(w *bufio.Writer) *sseWriter {
	return &sseWriter{w: w}
}

// Send writes one event with a JSON payload and flushes it.
func (sw *sseWriter) Send(event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if _, err := fmt.Fprintf(sw.w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", b); err != nil {
		return err
	}
	return sw.w.Flush()
}

func jsonBytes(v any) ([]byte, error) {
	return json.Marshal(v)
}
