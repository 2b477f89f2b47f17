package voice

// Status is the user-visible session status.
type Status string

const (
	// StatusIdle means no session: before the first connect and after close.
	StatusIdle Status = "idle"
	// StatusConnecting means devices are being opened and the remote dialed.
	StatusConnecting Status = "connecting"
	// StatusListening means the session is open and the model is not speaking.
	StatusListening Status = "listening"
	// StatusSpeaking means model audio is scheduled or playing.
	StatusSpeaking Status = "speaking"
	// StatusError is terminal until the next Connect.
	StatusError Status = "error"
)

// State is a snapshot of the session for display.
type State struct {
	SessionID        string  `json:"session_id,omitempty"`
	Provider         string  `json:"provider"`
	Status           Status  `json:"status"`
	Mode             Mode    `json:"mode"`
	InputTranscript  string  `json:"input_transcript"`
	OutputTranscript string  `json:"output_transcript"`
	Language         string  `json:"language,omitempty"`
	Level            float64 `json:"level"`
	Playing          int     `json:"playing"`
	Error            string  `json:"error,omitempty"`
}
