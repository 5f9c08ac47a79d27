package backend

// Message is one entry of the chat-completion message list
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Service-side roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest represents the request body for OpenAI-compatible completion endpoints
type ChatRequest struct {
	Messages        []Message `json:"messages"`
	Model           string    `json:"model"`
	Temperature     *float64  `json:"temperature,omitempty"`
	PresencePenalty *float64  `json:"presence_penalty,omitempty"`
	MaxTokens       int       `json:"max_tokens,omitempty"`
}

// ChatResponse represents the response from OpenAI-compatible completion endpoints
type ChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]interface{} `json:"usage"`
}
