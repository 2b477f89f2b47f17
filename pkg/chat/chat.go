// Package chat is the text conversation that runs beside the live voice
// session. It keeps an in-memory history and streams model replies as
// deltas.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-voicechat/internal/log"
)

// Roles
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ErrEmpty is returned when sending blank text.
var ErrEmpty = errors.New("chat: empty message")

// Message is one entry in the conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Error     string    `json:"error,omitempty"`
}

func newMessage(role, text string) Message {
	return Message{ID: uuid.NewString(), Role: role, Text: text, CreatedAt: time.Now()}
}

// Generator streams a model reply to history. It calls fn with each text
// delta in order and stops early if fn returns an error.
type Generator interface {
	Stream(ctx context.Context, history []Message, fn func(delta string) error) error
}

// Conversation is a goroutine-safe chat history bound to a generator.
// Sends are serialized so replies never interleave.
type Conversation struct {
	gen    Generator
	logger *slog.Logger

	sendMu sync.Mutex

	mu      sync.RWMutex
	history []Message
}

// NewConversation creates an empty conversation.
func NewConversation(gen Generator, logger *slog.Logger) *Conversation {
	return &Conversation{
		gen:    gen,
		logger: log.Component(log.Or(logger), "chat"),
	}
}

// Send appends text as a user message, streams the reply through onDelta
// and appends it. A failed reply is kept with its error and partial text.
func (c *Conversation) Send(ctx context.Context, text string, onDelta func(delta string) error) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmpty
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.append(newMessage(RoleUser, text))

	var reply strings.Builder
	err := c.gen.Stream(ctx, c.History(), func(delta string) error {
		reply.WriteString(delta)
		if onDelta != nil {
			return onDelta(delta)
		}
		return nil
	})

	msg := newMessage(RoleModel, reply.String())
	if err != nil {
		msg.Error = err.Error()
		c.logger.Warn("reply failed", "error", err)
	}
	c.append(msg)
	return msg, err
}

func (c *Conversation) append(m Message) {
	c.mu.Lock()
	c.history = append(c.history, m)
	c.mu.Unlock()
}

// History returns a copy of the conversation, oldest first.
func (c *Conversation) History() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Message(nil), c.history...)
}

// Clear drops the history.
func (c *Conversation) Clear() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}
