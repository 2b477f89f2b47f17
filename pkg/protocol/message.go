// Package protocol defines the WebSocket messages exchanged with a remote
// media device: a browser tab or thin client that lends its microphone,
// camera and speaker to the server-side session.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Device → Server messages
	TypeHello MessageType = "hello" // Device capabilities
	TypeFrame MessageType = "frame" // Camera frame
	TypeMic   MessageType = "mic"   // Microphone audio

	// Server → Device messages
	TypeSpeak      MessageType = "speak"      // Audio to play
	TypeState      MessageType = "state"      // Session state snapshot
	TypeConfig     MessageType = "config"     // Capture settings
	TypeTranscript MessageType = "transcript" // Transcript update

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Device → Server Message Types
// =============================================================================

// HelloData announces what a device can do.
type HelloData struct {
	Name       string `json:"name"`
	Microphone bool   `json:"microphone"`
	Camera     bool   `json:"camera"`
	Speaker    bool   `json:"speaker"`
	SampleRate int    `json:"sample_rate,omitempty"` // Preferred playback rate
}

// FrameData contains a camera frame
type FrameData struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`
}

// AudioData carries mono PCM16 audio in either direction: "mic" from the
// device, "speak" to it.
type AudioData struct {
	Format     string `json:"format"` // "pcm16"
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Data       string `json:"data"` // base64
}

// =============================================================================
// Server → Device Message Types
// =============================================================================

// StateData mirrors the session state shown on the device.
type StateData struct {
	Status           string  `json:"status"`
	Mode             string  `json:"mode"`
	InputTranscript  string  `json:"input_transcript,omitempty"`
	OutputTranscript string  `json:"output_transcript,omitempty"`
	Language         string  `json:"language,omitempty"`
	Level            float64 `json:"level"`
	Error            string  `json:"error,omitempty"`
}

// TranscriptData is one transcript line.
type TranscriptData struct {
	Role string `json:"role"` // "user", "model"
	Text string `json:"text"`
}

// ConfigUpdate contains configuration changes
type ConfigUpdate struct {
	Camera *CameraConfig `json:"camera,omitempty"`
	Audio  *AudioConfig  `json:"audio,omitempty"`
}

// CameraConfig contains camera settings
type CameraConfig struct {
	Enabled    bool `json:"enabled"`
	Width      int  `json:"width,omitempty"`
	Height     int  `json:"height,omitempty"`
	Quality    int  `json:"quality,omitempty"`
	IntervalMs int  `json:"interval_ms,omitempty"`
}

// AudioConfig contains audio settings
type AudioConfig struct {
	MicEnabled     bool `json:"mic_enabled"`
	SpeakerEnabled bool `json:"speaker_enabled"`
	MicSampleRate  int  `json:"mic_sample_rate,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
