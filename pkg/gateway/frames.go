package gateway

// Frame type tags. The field names and tags below are part of the client
// compatibility surface; do not rename them.
const (
	// inbound
	FrameInit  = "init"
	FrameText  = "text"
	FrameAudio = "audio"

	// outbound
	FrameStatus              = "status"
	FrameTextResponse        = "text_response"
	FrameAudioResponse       = "audio_response"
	FrameTranscriptionResult = "transcription_result"
	FrameError               = "error"
)

// InboundFrame is one client message. Audio carries base64-encoded binary.
type InboundFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	PersonaID      string `json:"persona_id,omitempty"`
	Text           string `json:"text,omitempty"`
	Audio          string `json:"audio,omitempty"`
}

// OutboundFrame is one server message.
type OutboundFrame struct {
	Type           string `json:"type"`
	Message        string `json:"message,omitempty"`
	Text           string `json:"text,omitempty"`
	Audio          string `json:"audio,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}
