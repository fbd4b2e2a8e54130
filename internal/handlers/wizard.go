package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"nightscape-preview/internal/preview"
)

const wizardCallbackPrefix = "nw"

func (h *Handler) startWizard(chatID int64, userID int64, args string) error {
	current := h.wizard.Get(chatID, userID)
	defaults := current.PromptOptions()
	defaults.Markers = !current.Clean

	mode, rest := wizardModeFromArgs(args)
	opts := preview.ParseArgs(rest, defaults)
	st := h.wizard.Update(chatID, userID, func(st *preview.UIState) {
		st.Apply(opts)
		if mode != "" {
			st.Mode = mode
		}
		st.Menu = "main"
		st.AwaitingPhoto = st.LastPhotoFileID == ""
	})

	msgID, err := h.tg.SendTextWithKeyboard(chatID, wizardText(st), wizardKeyboard(userID, st))
	if err != nil {
		return err
	}
	h.wizard.Update(chatID, userID, func(st *preview.UIState) { st.MessageID = msgID })
	return nil
}

// wizardModeFromArgs picks the render mode out of /night arguments and
// returns the remaining words. "markers" stays in the rest since it also
// turns marker labels on.
func wizardModeFromArgs(args string) (string, string) {
	mode := ""
	var rest []string
	for _, tok := range strings.Fields(args) {
		switch strings.ToLower(tok) {
		case preview.ModeAI, preview.ModeLocal:
			mode = strings.ToLower(tok)
			continue
		case "markers", "marked", "numbered":
			if mode == "" {
				mode = preview.ModeMarkers
			}
		}
		rest = append(rest, tok)
	}
	return mode, strings.Join(rest, " ")
}

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.From == nil {
		return nil
	}
	data := strings.TrimSpace(q.Data)
	if !strings.HasPrefix(data, wizardCallbackPrefix+":") {
		return nil
	}

	parts := strings.Split(data, ":")
	if len(parts) < 3 {
		return nil
	}

	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}
	if ownerID != q.From.ID {
		_ = h.tg.AnswerCallback(q.ID, "This menu belongs to someone else.", true)
		return nil
	}

	action := parts[2]
	args := parts[3:]
	chatID := q.Message.Chat.ID
	msgID := q.Message.MessageID

	updated := h.wizard.Update(chatID, ownerID, func(st *preview.UIState) {
		st.MessageID = msgID

		switch action {
		case "menu":
			if len(args) >= 1 {
				st.Menu = args[0]
			}
		case "mode":
			if len(args) >= 1 {
				switch args[0] {
				case preview.ModeLocal, preview.ModeMarkers, preview.ModeAI:
					st.Mode = args[0]
				}
			}
			st.Menu = "main"
		case "beam":
			st.BeamAngle = preview.Cycle(preview.BeamAngles, st.BeamAngle)
		case "intensity":
			st.Intensity = preview.Cycle(preview.Intensities, st.Intensity)
		case "crop":
			st.CropTop = preview.Cycle(preview.CropTops, st.CropTop)
		case "clean":
			st.Clean = !st.Clean
		case "style":
			if len(args) >= 1 {
				st.Style = args[0]
			}
			st.Menu = "main"
		case "note_clear":
			st.Custom = ""
		case "reset":
			lastPhoto := st.LastPhotoFileID
			lastCaption := st.LastCaption
			*st = preview.DefaultState()
			st.LastPhotoFileID = lastPhoto
			st.LastCaption = lastCaption
			st.MessageID = msgID
		case "close":
			st.AwaitingPhoto = false
			st.Menu = "main"
		}
	})

	switch action {
	case "render":
		_ = h.tg.AnswerCallback(q.ID, "Rendering…", false)
		if strings.TrimSpace(updated.LastPhotoFileID) == "" {
			h.wizard.Update(chatID, ownerID, func(st *preview.UIState) { st.AwaitingPhoto = true })
			_ = h.tg.SendText(chatID, "📷 Send a photo of the house with the fixture layout in the caption.")
		} else if err := h.processPhotos(ctx, chatID, ownerID, q.From.UserName, updated.LastCaption, []string{updated.LastPhotoFileID}); err != nil {
			return err
		}
	case "close":
		_ = h.tg.AnswerCallback(q.ID, "Closed", false)
		return nil
	default:
		_ = h.tg.AnswerCallback(q.ID, "OK", false)
	}

	return h.renderWizard(chatID, ownerID, msgID, true)
}

func (h *Handler) renderWizard(chatID int64, userID int64, messageID int, edit bool) error {
	st := h.wizard.Get(chatID, userID)
	if messageID == 0 {
		messageID = st.MessageID
	}

	text := wizardText(st)
	kb := wizardKeyboard(userID, st)

	if edit && messageID != 0 {
		if err := h.tg.EditTextWithKeyboard(chatID, messageID, text, kb); err == nil {
			return nil
		}
	}

	msgID, err := h.tg.SendTextWithKeyboard(chatID, text, kb)
	if err != nil {
		return err
	}
	h.wizard.Update(chatID, userID, func(st *preview.UIState) { st.MessageID = msgID })
	return nil
}

func wizardText(st preview.UIState) string {
	style := "Warm white"
	for _, o := range preview.LightStyles() {
		if o.Key == st.Style {
			style = o.Name
			break
		}
	}

	var b strings.Builder
	b.WriteString("🌙 Night preview settings\n\n")
	b.WriteString(fmt.Sprintf("Mode: %s\n", modeName(st.Mode)))
	b.WriteString(fmt.Sprintf("Beam: %s°, intensity: %s\n", formatNumber(st.BeamAngle), formatNumber(st.Intensity)))
	if st.Mode == preview.ModeAI {
		b.WriteString(fmt.Sprintf("Light colour: %s\n", style))
		b.WriteString(fmt.Sprintf("Crop top: %s%%\n", formatNumber(st.CropTop)))
	}
	if st.Mode != preview.ModeLocal {
		b.WriteString(fmt.Sprintf("Marker labels: %s\n", onOff(!st.Clean)))
	}
	if strings.TrimSpace(st.Custom) != "" {
		b.WriteString("Note: " + truncateLine(st.Custom, 80) + "\n")
	}
	if strings.TrimSpace(st.LastPhotoFileID) == "" {
		b.WriteString("Photo: (none)\n")
	} else {
		b.WriteString("Photo: saved ✅\n")
	}
	if st.AwaitingPhoto {
		b.WriteString("\n📷 Send a photo with the fixture layout in the caption.\n")
	} else if strings.TrimSpace(st.LastPhotoFileID) != "" {
		b.WriteString("\n🎨 Press Render to light the saved photo again.\n")
	}

	return strings.TrimSpace(b.String())
}

func wizardKeyboard(ownerID int64, st preview.UIState) tgbotapi.InlineKeyboardMarkup {
	if st.Menu == "style" {
		return styleKeyboard(ownerID, st)
	}
	return mainKeyboard(ownerID, st)
}

func mainKeyboard(ownerID int64, st preview.UIState) tgbotapi.InlineKeyboardMarkup {
	var modeRow []tgbotapi.InlineKeyboardButton
	for _, m := range []string{preview.ModeLocal, preview.ModeMarkers, preview.ModeAI} {
		label := modeName(m)
		if st.Mode == m {
			label = "✅ " + label
		}
		modeRow = append(modeRow, tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, "mode", m)))
	}

	rows := [][]tgbotapi.InlineKeyboardButton{
		modeRow,
		{
			tgbotapi.NewInlineKeyboardButtonData("Beam "+formatNumber(st.BeamAngle)+"°", cb(ownerID, "beam")),
			tgbotapi.NewInlineKeyboardButtonData("Intensity "+formatNumber(st.Intensity), cb(ownerID, "intensity")),
		},
	}

	if st.Mode == preview.ModeAI {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Colour", cb(ownerID, "menu", "style")),
			tgbotapi.NewInlineKeyboardButtonData("Crop "+formatNumber(st.CropTop)+"%", cb(ownerID, "crop")),
		})
	}
	if st.Mode != preview.ModeLocal {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Labels: "+onOff(!st.Clean), cb(ownerID, "clean")),
		})
	}
	if strings.TrimSpace(st.Custom) != "" {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Clear note", cb(ownerID, "note_clear")),
		})
	}

	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("🎨 Render", cb(ownerID, "render")),
		tgbotapi.NewInlineKeyboardButtonData("Reset", cb(ownerID, "reset")),
		tgbotapi.NewInlineKeyboardButtonData("Close", cb(ownerID, "close")),
	})

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func styleKeyboard(ownerID int64, st preview.UIState) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, o := range preview.LightStyles() {
		label := o.Name
		if o.Key == st.Style {
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, "style", o.Key)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", cb(ownerID, "menu", "main")),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func cb(ownerID int64, parts ...string) string {
	all := append([]string{wizardCallbackPrefix, strconv.FormatInt(ownerID, 10)}, parts...)
	return strings.Join(all, ":")
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func truncateLine(s string, max int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
