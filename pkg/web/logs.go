package web

import (
	"context"
	"log/slog"
	"strings"
)

// LogHandler returns a slog.Handler that passes records to next and
// mirrors those at Info or above to the dashboard log. Records from the
// broadcast hubs are not mirrored.
func (s *Server) LogHandler(next slog.Handler) slog.Handler {
	return &teeHandler{next: next, server: s}
}

type teeHandler struct {
	next   slog.Handler
	server *Server
	prefix string
	skip   bool
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.skip && r.Level >= slog.LevelInfo {
		var b strings.Builder
		b.WriteString(h.prefix)
		b.WriteString(r.Message)
		r.Attrs(func(a slog.Attr) bool {
			b.WriteString(" ")
			b.WriteString(a.String())
			return true
		})
		h.server.AddLog(strings.ToLower(r.Level.String()), b.String())
	}
	return h.next.Handle(ctx, r)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.next = h.next.WithAttrs(attrs)
	for _, a := range attrs {
		if a.Key != "component" {
			continue
		}
		if v := a.Value.String(); v == "hub" {
			out.skip = true
		} else {
			out.prefix = "[" + v + "] "
		}
	}
	return &out
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	out := *h
	out.next = h.next.WithGroup(name)
	return &out
}
