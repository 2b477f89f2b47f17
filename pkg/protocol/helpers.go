package protocol

import (
	"encoding/base64"
	"fmt"
	"time"
)

// NewHelloMessage announces a device.
func NewHelloMessage(h HelloData) (*Message, error) {
	return NewMessage(TypeHello, h)
}

// NewFrameMessage wraps one JPEG camera frame.
func NewFrameMessage(width, height int, jpeg []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpeg),
		FrameID: frameID,
	})
}

// NewMicMessage wraps captured PCM16 audio.
func NewMicMessage(pcm []byte, sampleRate int) (*Message, error) {
	return NewMessage(TypeMic, newAudioData(pcm, sampleRate))
}

// NewSpeakMessage wraps PCM16 audio for the device to play.
func NewSpeakMessage(pcm []byte, sampleRate int) (*Message, error) {
	return NewMessage(TypeSpeak, newAudioData(pcm, sampleRate))
}

func newAudioData(pcm []byte, sampleRate int) AudioData {
	return AudioData{
		Format:     "pcm16",
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(pcm),
	}
}

// NewStateMessage mirrors the session state to the device.
func NewStateMessage(state StateData) (*Message, error) {
	return NewMessage(TypeState, state)
}

// NewTranscriptMessage sends one transcript line.
func NewTranscriptMessage(role, text string) (*Message, error) {
	return NewMessage(TypeTranscript, TranscriptData{Role: role, Text: text})
}

// NewConfigMessage pushes capture settings. Either part may be nil.
func NewConfigMessage(camera *CameraConfig, audio *AudioConfig) (*Message, error) {
	return NewMessage(TypeConfig, ConfigUpdate{Camera: camera, Audio: audio})
}

// NewPingMessage stamps a ping with the current time.
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: time.Now().UnixMilli()})
}

// NewPongMessage answers a ping.
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// Decode unmarshals the payload of m into a new T.
func Decode[T any](m *Message) (*T, error) {
	var v T
	if err := m.ParseData(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.Type, err)
	}
	return &v, nil
}

// Bytes returns the decoded JPEG.
func (f *FrameData) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// Bytes returns the decoded PCM16 samples.
func (a *AudioData) Bytes() ([]byte, error) {
	if a.Format != "" && a.Format != "pcm16" {
		return nil, fmt.Errorf("unsupported audio format %q", a.Format)
	}
	return base64.StdEncoding.DecodeString(a.Data)
}
