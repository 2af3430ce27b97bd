package aichat

// ChatRequest is the completion payload.
type ChatRequest struct {
	Model            string    `json:"model"`
	Group            string    `json:"group,omitempty"`
	Messages         []Message `json:"messages"`
	Stream           bool      `json:"stream"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
}

// Message holds either a plain string or a list of ContentPart values.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// ContentPart is one element of a multimodal user message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an externally reachable image.
type ImageURL struct {
	URL string `json:"url"`
}

// NewVisionRequest builds a request with a system instruction and a user message mixing text and images.
func NewVisionRequest(model, system, prompt string, imageURLs []string) ChatRequest {
	parts := make([]ContentPart, 0, len(imageURLs)+1)
	parts = append(parts, ContentPart{Type: "text", Text: prompt})
	for _, u := range imageURLs {
		parts = append(parts, ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: u}})
	}

	return ChatRequest{
		Model: model,
		Group: "default",
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: parts},
		},
		Stream:      true,
		Temperature: 0.3,
		TopP:        1,
	}
}
