package bootstrap

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightscape-preview/internal/config"
	"nightscape-preview/internal/generation"
	"nightscape-preview/internal/pipeline"
	"nightscape-preview/internal/refcache"
)

func TestLoadReferences(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_uplight.png"), []byte("png"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_path.JPG"), []byte("jpg"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	cache := refcache.NewMemory(0)
	refs, err := LoadReferences(context.Background(), cache, dir)
	require.NoError(t, err)

	require.Len(t, refs, 2)
	assert.Equal(t, "a_path", refs[0].Name)
	assert.Equal(t, "image/jpeg", refs[0].MimeType)
	assert.Equal(t, "b_uplight", refs[1].Name)
	assert.Equal(t, []byte("png"), refs[1].Data)

	cached, ok, err := cache.Get(context.Background(), "ref:b_uplight.png")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("png"), cached)
}

func TestLoadReferences_EmptyDir(t *testing.T) {
	refs, err := LoadReferences(context.Background(), refcache.NewMemory(0), "")
	require.NoError(t, err)
	assert.Empty(t, refs)

	_, err = LoadReferences(context.Background(), refcache.NewMemory(0), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestBuild_WithoutGemini(t *testing.T) {
	stack, err := Build(context.Background(), config.Config{CacheMaxEntries: 4}, NewLogger("error"))
	require.NoError(t, err)
	defer stack.Close()

	assert.Nil(t, stack.Gemini)
	require.NotNil(t, stack.Service)

	_, err = stack.Service.Render(context.Background(), pipeline.Request{Image: []byte{0x89}, Mode: pipeline.ModeAI})
	assert.Error(t, err)
}

func TestBuild_AIModeNeedsKey(t *testing.T) {
	stack, err := Build(context.Background(), config.Config{}, NewLogger("info"))
	require.NoError(t, err)
	defer stack.Close()

	img := tinyPNG(t)
	_, err = stack.Service.Render(context.Background(), pipeline.Request{Image: img, Mode: pipeline.ModeAI})
	assert.ErrorIs(t, err, generation.ErrNoGenerator)
}

func TestBuild_WithGemini(t *testing.T) {
	stack, err := Build(context.Background(), config.Config{GeminiAPIKey: "k", GeminiBaseURL: "http://127.0.0.1:1"}, NewLogger("error"))
	require.NoError(t, err)
	defer stack.Close()

	assert.NotNil(t, stack.Gemini)
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}
