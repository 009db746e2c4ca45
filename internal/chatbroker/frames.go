package chatbroker

// Frame type tags, matching the wire contract exactly.
const (
	FrameTypeMessage = "message"
	FrameTypeCancel  = "cancel"
	FrameTypeDelta   = "delta"
	FrameTypeEnd     = "end"
	FrameTypeError   = "error"
	FrameTypeBusy    = "busy"
)

// InboundFrame is a client -> server frame. Only the fields relevant to
// Type are meaningful; a "cancel" frame carries none.
type InboundFrame struct {
	Type            string `json:"type"`
	Content         string `json:"content,omitempty"`
	ReasoningEffort string `json:"reasoning_effort,omitempty"`
	Verbosity       string `json:"verbosity,omitempty"`
	UserLevel       int    `json:"user_level,omitempty"`
	UseRAG          bool   `json:"use_rag,omitempty"`
}

// OutboundCitation is the wire shape of one citation in an "end" frame.
type OutboundCitation struct {
	Source  string `json:"source"`
	Page    *int   `json:"page,omitempty"`
	ChunkID string `json:"chunk_id"`
}

// OutboundFrame is a server -> client frame. Fields are omitted per Type:
// "delta" carries Text, "end" carries Citations, "error" carries
// Code/Message, "busy" carries neither.
type OutboundFrame struct {
	Type      string             `json:"type"`
	Text      string             `json:"text,omitempty"`
	Citations []OutboundCitation `json:"citations,omitempty"`
	Code      string             `json:"code,omitempty"`
	Message   string             `json:"message,omitempty"`
}
