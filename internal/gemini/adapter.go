package gemini

import (
	"context"
	"fmt"

	"nightscape-preview/internal/generation"
	"nightscape-preview/internal/raster"
)

// Generator exposes EditImage as a generation.Generator.
type Generator struct {
	client     *Client
	references []ImageInput
}

func NewGenerator(c *Client, references ...ImageInput) *Generator {
	return &Generator{client: c, references: references}
}

func (g *Generator) Generate(ctx context.Context, req generation.Request) (raster.Image, error) {
	data, format, err := raster.Encode(req.Image, req.Image.Format)
	if err != nil {
		return raster.Image{}, err
	}

	out, err := g.client.EditImage(ctx, EditRequest{
		Prompt:      req.Prompt,
		Image:       ImageInput{Data: data, MimeType: string(format)},
		References:  g.references,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		return raster.Image{}, err
	}

	img, err := raster.Decode(out.Data, out.MimeType)
	if err != nil {
		return raster.Image{}, fmt.Errorf("model image: %w", err)
	}
	img.Quality = req.Image.Quality
	return img, nil
}

// scoreQuality keeps the scoring upload small; the grade does not need a
// lossless copy.
const scoreQuality = 0.8

// Verifier exposes ScoreRealism as a generation.Verifier.
type Verifier struct {
	client *Client
}

func NewVerifier(c *Client) *Verifier {
	return &Verifier{client: c}
}

func (v *Verifier) Verify(ctx context.Context, img raster.Image, prompt string) (generation.Verdict, error) {
	small := img
	small.Quality = scoreQuality
	data, format, err := raster.Encode(small, raster.FormatJPEG)
	if err != nil {
		return generation.Verdict{}, err
	}

	s, err := v.client.ScoreRealism(ctx, ImageInput{Data: data, MimeType: string(format)}, prompt)
	if err != nil {
		return generation.Verdict{}, err
	}
	return generation.Verdict{Score: s.Value, Issues: s.Issues}, nil
}
