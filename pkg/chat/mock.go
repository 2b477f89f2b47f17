package chat

import (
	"context"
	"strings"
)

// Echo is a Generator that repeats the last user message word by word.
type Echo struct {
	Prefix string
}

// Stream implements Generator.
func (e Echo) Stream(ctx context.Context, history []Message, fn func(delta string) error) error {
	var last string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			last = history[i].Text
			break
		}
	}
	words := strings.Fields(e.Prefix + last)
	for i, w := range words {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			w = " " + w
		}
		if err := fn(w); err != nil {
			return err
		}
	}
	return nil
}
