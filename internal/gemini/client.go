package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	defaultTextModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image"
)

const systemInstruction = `You are a landscape lighting visualisation assistant.
You edit photographs of houses so they look like real night-time photos with professional landscape lighting.
Never change the architecture, the camera position or the framing of the photo.`

var (
	ErrNoImage     = errors.New("gemini returned no image")
	ErrEmptyPrompt = errors.New("prompt is empty")
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini API %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	switch e.Status {
	case "RESOURCE_EXHAUSTED", "UNAVAILABLE", "INTERNAL", "DEADLINE_EXCEEDED":
		return true
	}
	return false
}

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	ImageModel string
	TextModel  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	genai      *genai.Client
	imageModel string
	textModel  string
	logger     *slog.Logger
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is empty")
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = defaultImageModel
	}
	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = defaultTextModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    strings.TrimSpace(opts.BaseURL),
			APIVersion: apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &Client{
		genai:      gc,
		imageModel: imageModel,
		textModel:  textModel,
		logger:     logger,
	}, nil
}

// EditImage sends the target image (plus any reference images) with the
// prompt and returns the first image in the answer.
func (c *Client) EditImage(ctx context.Context, req EditRequest) (ImageOutput, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return ImageOutput{}, ErrEmptyPrompt
	}
	if len(req.Image.Data) == 0 {
		return ImageOutput{}, errors.New("target image is empty")
	}

	parts := buildEditParts(prompt, req)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction:  genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Temperature:        genai.Ptr[float32](0.4),
		ResponseModalities: []string{string(genai.ModalityImage), string(genai.ModalityText)},
	}
	if req.AspectRatio != "" {
		cfg.ImageConfig = &genai.ImageConfig{AspectRatio: req.AspectRatio}
	}

	resp, err := c.generateContent(ctx, c.imageModel, parts, cfg)
	if err != nil && cfg.ImageConfig != nil && isUnknownFieldError(err, "imageConfig") {
		cfg.ImageConfig = nil
		resp, err = c.generateContent(ctx, c.imageModel, parts, cfg)
	}
	if err != nil {
		return ImageOutput{}, err
	}

	if len(resp.Images) == 0 {
		// The model sometimes answers in text only; ask once more, firmly.
		c.logger.Debug("image model answered without an image", "text", truncate(resp.Text, 200))
		retry := append([]*genai.Part(nil), parts...)
		retry[0] = genai.NewPartFromText(parts[0].Text + "\n\nReturn the edited image only (inlineData). Do not answer with text.")
		resp, err = c.generateContent(ctx, c.imageModel, retry, cfg)
		if err != nil {
			return ImageOutput{}, err
		}
		if len(resp.Images) == 0 {
			return ImageOutput{}, fmt.Errorf("%w: %s", ErrNoImage, truncate(resp.Text, 200))
		}
	}

	return resp.Images[0], nil
}

func buildEditParts(prompt string, req EditRequest) []*genai.Part {
	if len(req.References) == 0 {
		return []*genai.Part{
			genai.NewPartFromText(prompt),
			inlineFrom(req.Image),
		}
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt + "\n\nImage order:\n1) target photo to edit\nThe rest: fixture reference images.")}
	parts = append(parts, genai.NewPartFromText("Image #1 (target/edit):"), inlineFrom(req.Image))
	for i, ref := range req.References {
		label := fmt.Sprintf("Image #%d (reference):", i+2)
		if ref.Name != "" {
			label = fmt.Sprintf("Image #%d (reference: %s):", i+2, ref.Name)
		}
		parts = append(parts, genai.NewPartFromText(label), inlineFrom(ref))
	}
	return parts
}

func inlineFrom(img ImageInput) *genai.Part {
	mime := img.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: img.Data}}
}

const realismPrompt = `Score how much this image looks like a real, unedited night photograph of a house with landscape lighting.
Judge light falloff, shadows, colour temperature, noise and whether any element looks painted, duplicated or invented.
The image was produced for this request:
---
%s
---
Answer with JSON only: {"score": <0-100>, "issues": ["short issue", ...]}`

// ScoreRealism asks the text model to grade img from 0 to 100.
func (c *Client) ScoreRealism(ctx context.Context, img ImageInput, prompt string) (Score, error) {
	if len(img.Data) == 0 {
		return Score{}, errors.New("image is empty")
	}

	parts := []*genai.Part{
		genai.NewPartFromText(fmt.Sprintf(realismPrompt, strings.TrimSpace(prompt))),
		inlineFrom(img),
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}

	resp, err := c.generateContent(ctx, c.textModel, parts, cfg)
	if err != nil && isUnknownFieldError(err, "responseMimeType") {
		cfg.ResponseMIMEType = ""
		resp, err = c.generateContent(ctx, c.textModel, parts, cfg)
	}
	if err != nil {
		return Score{}, err
	}

	return parseScore(resp.Text)
}

var jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)

func parseScore(text string) (Score, error) {
	raw := jsonObjectRegex.FindString(text)
	if raw == "" {
		return Score{}, fmt.Errorf("realism score: no JSON in answer %q", truncate(text, 120))
	}

	var s Score
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Score{}, fmt.Errorf("realism score: %w", err)
	}
	if s.Value < 0 {
		s.Value = 0
	}
	if s.Value > 100 {
		s.Value = 100
	}
	return s, nil
}

func (c *Client) generateContent(ctx context.Context, model string, parts []*genai.Part, cfg *genai.GenerateContentConfig) (response, error) {
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	res, err := c.genai.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return response{}, &APIError{
				StatusCode: apiErr.Code,
				Status:     apiErr.Status,
				Body:       truncate(strings.TrimSpace(apiErr.Message), 500),
			}
		}
		return response{}, fmt.Errorf("request: %w", err)
	}

	out := extractParts(res)
	c.logger.Debug("gemini call", "model", model, "dur_ms", time.Since(start).Milliseconds(), "images", len(out.Images))
	return out, nil
}

func extractParts(res *genai.GenerateContentResponse) response {
	var out response
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return out
	}

	var textBuilder strings.Builder
	for _, p := range res.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		if p.Text != "" {
			textBuilder.WriteString(p.Text)
		}
		if p.InlineData != nil && len(p.InlineData.Data) > 0 && p.InlineData.MIMEType != "" {
			out.Images = append(out.Images, ImageOutput{Data: p.InlineData.Data, MimeType: p.InlineData.MIMEType})
		}
	}
	out.Text = textBuilder.String()
	return out
}

func isUnknownFieldError(err error, field string) bool {
	message := err.Error()
	return strings.Contains(message, "Unknown name") && strings.Contains(message, field)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
