package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nightscape-preview/internal/fixture"
	"nightscape-preview/internal/glow"
	"nightscape-preview/internal/mediagroup"
	"nightscape-preview/internal/pipeline"
	"nightscape-preview/internal/preview"
	"nightscape-preview/internal/session"
	"nightscape-preview/internal/telegram"
)

// Messenger is the part of the Telegram client the handlers use.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendTyping(chatID int64)
	SendPhoto(chatID int64, data []byte, mimeType string, caption string) error
	SendTextWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(callbackID, text string, alert bool) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, string, error)
}

type Renderer interface {
	Render(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

type Options struct {
	Telegram Messenger
	Renderer Renderer
	Sessions *session.Store
	Wizard   *preview.Store
	Logger   *slog.Logger
}

type Handler struct {
	tg         Messenger
	renderer   Renderer
	sessions   *session.Store
	wizard     *preview.Store
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewStore(session.Options{})
	}
	wizard := opts.Wizard
	if wizard == nil {
		wizard = preview.NewStore()
	}

	return &Handler{
		tg:       opts.Telegram,
		renderer: opts.Renderer,
		sessions: sessions,
		wizard:   wizard,
		logger:   logger,
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	userID := msg.From.ID
	username := msg.From.UserName

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, userID, msg)
	}

	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, userID, username, msg)
	}

	if msg.Text != "" {
		return h.handleText(ctx, chatID, userID, username, msg.Text)
	}

	return nil
}

func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if err := h.processPhotos(ctx, group.ChatID, group.UserID, group.Username, group.Caption, group.FileIDs); err != nil {
		h.logger.Error("media group processing failed", "err", err)
	}
}

const helpText = "🌙 Night preview\n\n" +
	"Send a daytime photo of the house with the fixtures in the caption:\n" +
	"  up 50 70; path 20 85 rot=180 len=1.5; well 40 90 label=Old_Oak\n" +
	"Positions are percent from the left and from the top.\n" +
	"A photo without a caption reuses your last layout.\n\n" +
	"Commands:\n" +
	"/night [ai|markers] [beam=45] [intensity=1.4] [crop=20] [amber|neutral|moonlight] - settings\n" +
	"/help - this text\n" +
	"/clear - forget your last layouts"

func (h *Handler) handleCommand(ctx context.Context, chatID int64, userID int64, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return h.tg.SendText(chatID, helpText)
	case "help":
		var b strings.Builder
		b.WriteString(helpText)
		b.WriteString("\n\nFixture types:\n")
		for _, o := range preview.FixtureCatalog() {
			b.WriteString(fmt.Sprintf("%s - %s\n", o.Key, o.Name))
		}
		return h.tg.SendText(chatID, strings.TrimSpace(b.String()))
	case "clear":
		h.sessions.Clear(userID)
		h.wizard.Reset(chatID, userID)
		return h.tg.SendText(chatID, "✅ Layouts and settings cleared.")
	case "night":
		return h.startWizard(chatID, userID, msg.CommandArguments())
	case "cancel":
		h.wizard.Update(chatID, userID, func(st *preview.UIState) { st.AwaitingPhoto = false })
		return h.tg.SendText(chatID, "OK.")
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. See /help.")
	}
}

// handleText renders the last photo again when the text is a fixture layout.
func (h *Handler) handleText(ctx context.Context, chatID int64, userID int64, username string, text string) error {
	text = strings.TrimSpace(text)
	if !looksLikePlacements(text) {
		return h.tg.SendText(chatID, "📷 Send a photo with the fixture layout in the caption. See /help.")
	}

	st := h.wizard.Get(chatID, userID)
	if st.LastPhotoFileID == "" {
		return h.tg.SendText(chatID, "📷 Send the photo first, then the layout.")
	}
	return h.processPhotos(ctx, chatID, userID, username, text, []string{st.LastPhotoFileID})
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, userID int64, username string, msg *tgbotapi.Message) error {
	photo := msg.Photo[len(msg.Photo)-1]
	fileID := photo.FileID

	if msg.MediaGroupID != "" && h.aggregator != nil {
		if h.aggregator.Add(mediagroup.Item{
			ChatID:       chatID,
			UserID:       userID,
			Username:     username,
			MediaGroupID: msg.MediaGroupID,
			Caption:      msg.Caption,
			FileID:       fileID,
		}) {
			return nil
		}
	}

	return h.processPhotos(ctx, chatID, userID, username, msg.Caption, []string{fileID})
}

type downloaded struct {
	Data []byte
	Mime string
}

func (h *Handler) processPhotos(ctx context.Context, chatID int64, userID int64, username, caption string, fileIDs []string) error {
	placements, note, err := h.resolvePlacements(userID, caption)
	if err != nil {
		return h.tg.SendText(chatID, userMessage(err))
	}
	if len(placements) == 0 {
		h.wizard.Update(chatID, userID, func(st *preview.UIState) {
			st.LastPhotoFileID = fileIDs[len(fileIDs)-1]
			st.AwaitingPhoto = false
		})
		return h.tg.SendText(chatID, "📝 Photo saved. Now send the fixture layout, e.g. up 50 70; path 20 85")
	}

	h.tg.SendTyping(chatID)

	downloads := make([]downloaded, len(fileIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, fileID := range fileIDs {
		eg.Go(func() error {
			data, mimeType, err := h.tg.DownloadFile(egCtx, fileID)
			if err != nil {
				return err
			}
			downloads[i] = downloaded{Data: data, Mime: mimeType}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		h.logger.Error("photo download failed", "err", err)
		return h.tg.SendText(chatID, "❌ Could not download the photo.")
	}

	st := h.wizard.Update(chatID, userID, func(st *preview.UIState) {
		st.LastPhotoFileID = fileIDs[len(fileIDs)-1]
		st.LastCaption = strings.TrimSpace(caption)
		st.AwaitingPhoto = false
		if note != "" {
			st.Custom = note
		}
	})
	if st.Mode == preview.ModeAI {
		_ = h.tg.SendText(chatID, "🎨 Generating the night photo, this can take a minute...")
	}

	for i, d := range downloads {
		req := requestFromState(st, placements, d)
		resp, err := h.renderer.Render(ctx, req)
		if err != nil {
			h.logger.Error("render failed", "req_id", req.ID, "err", err)
			return h.tg.SendText(chatID, userMessage(err))
		}

		h.sessions.Append(userID, username, session.Render{
			Mode:       string(req.Mode),
			Placements: placements,
			Score:      resp.Score,
		})

		if err := h.tg.SendPhoto(chatID, resp.Data, string(resp.Format), renderCaption(st, resp, len(placements), i, len(downloads))); err != nil {
			return err
		}
	}
	return nil
}

// resolvePlacements parses a layout caption. Any other caption is a note for
// the AI prompt and the user's last layout is reused.
func (h *Handler) resolvePlacements(userID int64, caption string) (fixture.SpatialMap, string, error) {
	caption = strings.TrimSpace(caption)
	if looksLikePlacements(caption) {
		m, err := fixture.ParseCaption(caption)
		return m, "", err
	}
	m, _ := h.sessions.LastPlacements(userID)
	return m, caption, nil
}

func requestFromState(st preview.UIState, m fixture.SpatialMap, d downloaded) pipeline.Request {
	beam := st.BeamAngle
	intensity := st.Intensity

	req := pipeline.Request{
		ID:           uuid.NewString(),
		Image:        d.Data,
		MimeType:     d.Mime,
		Placements:   m,
		Mode:         pipeline.Mode(st.Mode),
		Glow:         glow.Options{BeamAngleDeg: &beam, Intensity: &intensity},
		CleanMarkers: st.Clean,
		Style:        st.Style,
		Custom:       st.Custom,
	}
	if st.Mode == preview.ModeAI {
		req.CropTop = st.CropTop
	}
	return req
}

func renderCaption(st preview.UIState, resp pipeline.Response, fixtures, index, total int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("✅ %s preview, %d fixture(s), beam %s°, intensity %s",
		modeName(st.Mode), fixtures, formatNumber(st.BeamAngle), formatNumber(st.Intensity)))
	if total > 1 {
		b.WriteString(fmt.Sprintf(" (%d/%d)", index+1, total))
	}
	if resp.Verified {
		b.WriteString(fmt.Sprintf("\nRealism: %s/100", formatNumber(resp.Score)))
		if !resp.Accepted {
			b.WriteString(" (best of the attempts)")
		}
	}
	return b.String()
}
