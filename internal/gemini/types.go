package gemini

// ImageInput is raw image bytes with their MIME type. Name labels reference
// images in the prompt.
type ImageInput struct {
	Name     string
	Data     []byte
	MimeType string
}

type ImageOutput struct {
	Data     []byte
	MimeType string
}

type EditRequest struct {
	Prompt      string
	Image       ImageInput
	References  []ImageInput
	AspectRatio string
}

// Score is the realism grade returned by the text model.
type Score struct {
	Value  float64  `json:"score"`
	Issues []string `json:"issues"`
}

type response struct {
	Text   string
	Images []ImageOutput
}
