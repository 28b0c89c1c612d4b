package relay

// Inbound message types. Each WebSocket text frame is a JSON object whose
// "type" field selects the handler; remaining fields are per-type.
const (
	msgAuth              = "auth"
	msgUpdateLanguage    = "updateLanguage"
	msgStartTranscribe   = "startTranscription"
	msgAudioChunk        = "audioChunk"
	msgAudioComplete     = "audioComplete"
	msgStopTranscription = "stopTranscription"
	msgPing              = "ping"
)

// envelope carries only the discriminator; the raw frame is re-parsed into
// the per-type shape once the type is known.
type envelope struct {
	Type string `json:"type"`
}

type authMessage struct {
	Email          string `json:"email"`
	ActivationCode string `json:"activationCode"`
	ClientType     string `json:"clientType,omitempty"`
	Language       string `json:"language,omitempty"`
}

type updateLanguageMessage struct {
	Language string `json:"language"`
}

type startTranscriptionMessage struct {
	Language    string `json:"language,omitempty"`
	AudioFormat string `json:"audioFormat,omitempty"`
	ClientType  string `json:"clientType,omitempty"`
}

type audioChunkMessage struct {
	Audio    string `json:"audio"` // base64
	MimeType string `json:"mimeType,omitempty"`
}

type audioCompleteMessage struct {
	Audio    string `json:"audio"` // base64, the full payload
	MimeType string `json:"mimeType,omitempty"`
	Language string `json:"language,omitempty"`
}

// Outbound message shapes.

type connectionReply struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	Status       string `json:"status"`
}

type authUserSummary struct {
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Email         string `json:"email"`
	DaysRemaining int    `json:"daysRemaining"`
}

type authReply struct {
	Type     string           `json:"type"`
	Status   string           `json:"status"` // success or error
	User     *authUserSummary `json:"user,omitempty"`
	Language string           `json:"language,omitempty"`
	Message  string           `json:"message,omitempty"`
}

type languageUpdatedReply struct {
	Type     string `json:"type"`
	Language string `json:"language"`
}

type transcriptionStartedReply struct {
	Type       string `json:"type"`
	Language   string `json:"language"`
	ClientType string `json:"clientType"`
}

type audioChunkReceivedReply struct {
	Type       string `json:"type"`
	ChunkIndex int    `json:"chunkIndex"`
	TotalSize  int64  `json:"totalSize"`
}

type transcriptionResultReply struct {
	Type       string   `json:"type"`
	Transcript string   `json:"transcript"`
	IsFinal    bool     `json:"isFinal"`
	Source     string   `json:"source"`
	Language   string   `json:"language,omitempty"`
	Confidence *float64 `json:"confidence"`
	Message    string   `json:"message,omitempty"`
}

type transcriptionErrorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
}

type transcriptionStoppedReply struct {
	Type       string `json:"type"`
	ClientType string `json:"clientType"`
}

type errorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type pongReply struct {
	Type string `json:"type"`
}

// Error codes carried on errorReply.
const (
	codeNotAuthenticated    = "NOT_AUTHENTICATED"
	codeUnsupportedLanguage = "UNSUPPORTED_LANGUAGE"
	codeAudioLimitExceeded  = "AUDIO_LIMIT_EXCEEDED"
	codeInvalidAudio        = "INVALID_AUDIO"
	codeRateLimited         = "RATE_LIMITED"
)

const transcriptSource = "deepgram"
