package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightscape-preview/internal/fixture"
	"nightscape-preview/internal/generation"
	"nightscape-preview/internal/mediagroup"
	"nightscape-preview/internal/pipeline"
	"nightscape-preview/internal/preview"
	"nightscape-preview/internal/raster"
	"nightscape-preview/internal/session"
)

type sentPhoto struct {
	ChatID  int64
	Mime    string
	Caption string
}

type fakeMessenger struct {
	mu        sync.Mutex
	texts     []string
	photos    []sentPhoto
	keyboards []tgbotapi.InlineKeyboardMarkup
	edits     int
	answers   []string
	downloads []string
	failFile  string
}

func (f *fakeMessenger) SendText(_ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeMessenger) SendTyping(int64) {}

func (f *fakeMessenger) SendPhoto(chatID int64, _ []byte, mimeType string, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, sentPhoto{ChatID: chatID, Mime: mimeType, Caption: caption})
	return nil
}

func (f *fakeMessenger) SendTextWithKeyboard(_ int64, text string, kb tgbotapi.InlineKeyboardMarkup) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.keyboards = append(f.keyboards, kb)
	return 77, nil
}

func (f *fakeMessenger) EditTextWithKeyboard(_ int64, _ int, text string, kb tgbotapi.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits++
	f.texts = append(f.texts, text)
	f.keyboards = append(f.keyboards, kb)
	return nil
}

func (f *fakeMessenger) AnswerCallback(_ string, text string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeMessenger) DownloadFile(_ context.Context, fileID string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, fileID)
	if fileID == f.failFile {
		return nil, "", errors.New("boom")
	}
	return []byte("img:" + fileID), "image/jpeg", nil
}

func (f *fakeMessenger) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fakeRenderer struct {
	mu   sync.Mutex
	reqs []pipeline.Request
	err  error
	resp pipeline.Response
}

func (r *fakeRenderer) Render(_ context.Context, req pipeline.Request) (pipeline.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	if r.err != nil {
		return pipeline.Response{}, r.err
	}
	resp := r.resp
	if resp.Format == "" {
		resp.Format = raster.FormatJPEG
	}
	resp.Data = []byte("out")
	return resp, nil
}

type fixtureSet struct {
	h        *Handler
	tg       *fakeMessenger
	renderer *fakeRenderer
	sessions *session.Store
	wizard   *preview.Store
}

func newFixtureSet() fixtureSet {
	tg := &fakeMessenger{}
	r := &fakeRenderer{}
	sessions := session.NewStore(session.Options{})
	wizard := preview.NewStore()
	h := New(Options{Telegram: tg, Renderer: r, Sessions: sessions, Wizard: wizard})
	return fixtureSet{h: h, tg: tg, renderer: r, sessions: sessions, wizard: wizard}
}

const (
	chatID = int64(10)
	userID = int64(20)
)

func photoUpdate(fileID, caption, group string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:         &tgbotapi.Chat{ID: chatID},
		From:         &tgbotapi.User{ID: userID, UserName: "ana"},
		Photo:        []tgbotapi.PhotoSize{{FileID: fileID + "-small"}, {FileID: fileID}},
		Caption:      caption,
		MediaGroupID: group,
	}}
}

func textUpdate(text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: userID, UserName: "ana"},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: msg}
}

func callbackUpdate(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb1",
		From: &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{
			MessageID: 77,
			Chat:      &tgbotapi.Chat{ID: chatID},
		},
		Data: data,
	}}
}

func TestPhotoWithLayoutCaption(t *testing.T) {
	fs := newFixtureSet()

	err := fs.h.HandleUpdate(context.Background(), photoUpdate("f1", "up 50 70; path 20 85 rot=180", ""))
	require.NoError(t, err)

	require.Len(t, fs.renderer.reqs, 1)
	req := fs.renderer.reqs[0]
	assert.Equal(t, []byte("img:f1"), req.Image)
	assert.Equal(t, "image/jpeg", req.MimeType)
	assert.Equal(t, pipeline.Mode(preview.ModeLocal), req.Mode)
	require.Len(t, req.Placements, 2)
	assert.Equal(t, fixture.Path, req.Placements[1].Type)
	require.NotNil(t, req.Glow.BeamAngleDeg)
	assert.InDelta(t, 30.0, *req.Glow.BeamAngleDeg, 1e-9)
	assert.Zero(t, req.CropTop)
	assert.NotEmpty(t, req.ID)

	require.Len(t, fs.tg.photos, 1)
	assert.Contains(t, fs.tg.photos[0].Caption, "2 fixture(s)")

	m, ok := fs.sessions.LastPlacements(userID)
	require.True(t, ok)
	assert.Len(t, m, 2)
	assert.Equal(t, "f1", fs.wizard.Get(chatID, userID).LastPhotoFileID)
}

func TestPhotoWithoutCaptionReusesLastLayout(t *testing.T) {
	fs := newFixtureSet()

	require.NoError(t, fs.h.HandleUpdate(context.Background(), photoUpdate("f1", "well 40 90", "")))
	require.NoError(t, fs.h.HandleUpdate(context.Background(), photoUpdate("f2", "", "")))

	require.Len(t, fs.renderer.reqs, 2)
	assert.Equal(t, fixture.Well, fs.renderer.reqs[1].Placements[0].Type)
	assert.Equal(t, []byte("img:f2"), fs.renderer.reqs[1].Image)
}

func TestPhotoWithoutAnyLayoutAsksForOne(t *testing.T) {
	fs := newFixtureSet()

	require.NoError(t, fs.h.HandleUpdate(context.Background(), photoUpdate("f1", "", "")))

	assert.Empty(t, fs.renderer.reqs)
	assert.Empty(t, fs.tg.downloads)
	assert.Contains(t, fs.tg.lastText(), "Photo saved")
	assert.Equal(t, "f1", fs.wizard.Get(chatID, userID).LastPhotoFileID)

	require.NoError(t, fs.h.HandleUpdate(context.Background(), textUpdate("up 10 90")))
	require.Len(t, fs.renderer.reqs, 1)
	assert.Equal(t, []byte("img:f1"), fs.renderer.reqs[0].Image)
}

func TestCaptionNoteBecomesCustom(t *testing.T) {
	fs := newFixtureSet()
	require.NoError(t, fs.h.HandleUpdate(context.Background(), photoUpdate("f1", "up 50 70", "")))

	require.NoError(t, fs.h.HandleUpdate(context.Background(), photoUpdate("f2", "make the oak brighter", "")))

	require.Len(t, fs.renderer.reqs, 2)
	assert.Equal(t, "make the oak brighter", fs.renderer.reqs[1].Custom)
	assert.Len(t, fs.renderer.reqs[1].Placements, 1)
}

func TestBadLayoutNamesTheFixture(t *testing.T) {
	fs := newFixtureSet()

	require.NoError(t, fs.h.HandleUpdate(context.Background(), photoUpdate("f1", "up 50 70; path 120 85", "")))

	assert.Empty(t, fs.renderer.reqs)
	assert.Contains(t, fs.tg.lastText(), "Fixture 2")
	assert.Contains(t, fs.tg.lastText(), "horizontalPosition")
}

func TestRenderErrorsAreReported(t *testing.T) {
	fs := newFixtureSet()
	fs.renderer.err = &generation.RetryExhaustedError{Attempts: 3, Last: errors.New("503")}

	require.NoError(t, fs.h.HandleUpdate(context.Background(), photoUpdate("f1", "up 50 70", "")))

	assert.Contains(t, fs.tg.lastText(), "busy")
	assert.Empty(t, fs.tg.photos)
	_, ok := fs.sessions.LastPlacements(userID)
	assert.False(t, ok)
}

func TestDownloadFailure(t *testing.T) {
	fs := newFixtureSet()
	fs.tg.failFile = "f1"

	require.NoError(t, fs.h.HandleUpdate(context.Background(), photoUpdate("f1", "up 50 70", "")))

	assert.Empty(t, fs.renderer.reqs)
	assert.Contains(t, fs.tg.lastText(), "download")
}

func TestMediaGroupRendersEveryPhoto(t *testing.T) {
	fs := newFixtureSet()

	fs.h.HandleMediaGroup(context.Background(), mediagroup.Group{
		ChatID:   chatID,
		UserID:   userID,
		Username: "ana",
		Caption:  "up 50 70",
		FileIDs:  []string{"a", "b", "c"},
	})

	require.Len(t, fs.renderer.reqs, 3)
	assert.Equal(t, []byte("img:b"), fs.renderer.reqs[1].Image)
	require.Len(t, fs.tg.photos, 3)
	assert.Contains(t, fs.tg.photos[2].Caption, "(3/3)")
	assert.Len(t, fs.sessions.Snapshot(userID, "ana"), 3)
}

func TestAlbumPhotosGoThroughAggregator(t *testing.T) {
	fs := newFixtureSet()
	var flushed []mediagroup.Group
	ag := mediagroup.New(mediagroup.Options{OnFlush: func(g mediagroup.Group) { flushed = append(flushed, g) }})
	fs.h.SetMediaGroupAggregator(ag)

	require.NoError(t, fs.h.HandleUpdate(context.Background(), photoUpdate("a", "up 50 70", "g1")))
	require.NoError(t, fs.h.HandleUpdate(context.Background(), photoUpdate("b", "", "g1")))
	assert.Empty(t, fs.renderer.reqs)

	ag.Stop()
	require.Len(t, flushed, 1)
	assert.Equal(t, []string{"a", "b"}, flushed[0].FileIDs)
	assert.Equal(t, "up 50 70", flushed[0].Caption)
}

func TestNightCommandOpensWizard(t *testing.T) {
	fs := newFixtureSet()

	require.NoError(t, fs.h.HandleUpdate(context.Background(), textUpdate("/night ai beam=45 crop=20 amber clean")))

	st := fs.wizard.Get(chatID, userID)
	assert.Equal(t, preview.ModeAI, st.Mode)
	assert.InDelta(t, 45.0, st.BeamAngle, 1e-9)
	assert.InDelta(t, 20.0, st.CropTop, 1e-9)
	assert.Equal(t, "amber", st.Style)
	assert.True(t, st.Clean)
	assert.Empty(t, st.Custom)
	assert.Equal(t, 77, st.MessageID)
	assert.True(t, st.AwaitingPhoto)
	assert.Contains(t, fs.tg.lastText(), "Mode: AI")

	require.NoError(t, fs.h.HandleUpdate(context.Background(), photoUpdate("f1", "up 50 70", "")))
	require.Len(t, fs.renderer.reqs, 1)
	req := fs.renderer.reqs[0]
	assert.Equal(t, pipeline.ModeAI, req.Mode)
	assert.InDelta(t, 20.0, req.CropTop, 1e-9)
	assert.True(t, req.CleanMarkers)
	assert.Equal(t, "amber", req.Style)
}

func TestWizardCallbacks(t *testing.T) {
	fs := newFixtureSet()
	ctx := context.Background()

	require.NoError(t, fs.h.HandleUpdate(ctx, callbackUpdate(userID, cb(userID, "beam"))))
	assert.InDelta(t, 45.0, fs.wizard.Get(chatID, userID).BeamAngle, 1e-9)
	assert.Equal(t, 1, fs.tg.edits)

	require.NoError(t, fs.h.HandleUpdate(ctx, callbackUpdate(userID, cb(userID, "mode", "markers"))))
	require.NoError(t, fs.h.HandleUpdate(ctx, callbackUpdate(userID, cb(userID, "clean"))))
	require.NoError(t, fs.h.HandleUpdate(ctx, callbackUpdate(userID, cb(userID, "intensity"))))
	st := fs.wizard.Get(chatID, userID)
	assert.Equal(t, preview.ModeMarkers, st.Mode)
	assert.True(t, st.Clean)
	assert.InDelta(t, 1.4, st.Intensity, 1e-9)

	require.NoError(t, fs.h.HandleUpdate(ctx, callbackUpdate(userID, cb(userID, "reset"))))
	assert.Equal(t, preview.DefaultState().Mode, fs.wizard.Get(chatID, userID).Mode)
	assert.InDelta(t, 30.0, fs.wizard.Get(chatID, userID).BeamAngle, 1e-9)
}

func TestWizardRejectsOtherUsers(t *testing.T) {
	fs := newFixtureSet()

	require.NoError(t, fs.h.HandleUpdate(context.Background(), callbackUpdate(999, cb(userID, "beam"))))

	assert.InDelta(t, 30.0, fs.wizard.Get(chatID, userID).BeamAngle, 1e-9)
	require.Len(t, fs.tg.answers, 1)
	assert.Contains(t, fs.tg.answers[0], "someone else")
}

func TestWizardRenderReusesLastPhoto(t *testing.T) {
	fs := newFixtureSet()
	ctx := context.Background()

	require.NoError(t, fs.h.HandleUpdate(ctx, photoUpdate("f1", "path 20 85", "")))
	require.NoError(t, fs.h.HandleUpdate(ctx, callbackUpdate(userID, cb(userID, "beam"))))
	require.NoError(t, fs.h.HandleUpdate(ctx, callbackUpdate(userID, cb(userID, "render"))))

	require.Len(t, fs.renderer.reqs, 2)
	assert.Equal(t, []byte("img:f1"), fs.renderer.reqs[1].Image)
	assert.InDelta(t, 45.0, *fs.renderer.reqs[1].Glow.BeamAngleDeg, 1e-9)
}

func TestClearCommand(t *testing.T) {
	fs := newFixtureSet()
	ctx := context.Background()

	require.NoError(t, fs.h.HandleUpdate(ctx, photoUpdate("f1", "up 50 70", "")))
	require.NoError(t, fs.h.HandleUpdate(ctx, textUpdate("/clear")))

	_, ok := fs.sessions.LastPlacements(userID)
	assert.False(t, ok)
	assert.Empty(t, fs.wizard.Get(chatID, userID).LastPhotoFileID)
}

func TestHelpListsFixtureTypes(t *testing.T) {
	fs := newFixtureSet()

	require.NoError(t, fs.h.HandleUpdate(context.Background(), textUpdate("/help")))

	help := fs.tg.lastText()
	for _, typ := range fixture.Types() {
		assert.Contains(t, help, typ.String())
	}
}

func TestLooksLikePlacements(t *testing.T) {
	assert.True(t, looksLikePlacements("up 50 70"))
	assert.True(t, looksLikePlacements("bollard 1 2; well 3 4"))
	assert.True(t, looksLikePlacements("lantern 10% 20%"))
	assert.False(t, looksLikePlacements("make it brighter please"))
	assert.False(t, looksLikePlacements("up"))
	assert.False(t, looksLikePlacements(""))
}

func TestUserMessage(t *testing.T) {
	assert.Contains(t, userMessage(&raster.DecodeError{Err: errors.New("x")}), "JPEG or PNG")
	assert.Contains(t, userMessage(generation.ErrNoGenerator), "not configured")
	assert.Contains(t, userMessage(generation.ErrTimeout), "too long")
	assert.Contains(t, userMessage(errors.New("other")), "Rendering failed")
}
