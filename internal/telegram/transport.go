// Package telegram binds the engine to the Telegram Bot API: a
// domain.Transport implementation over the bot client, the inbound update
// router, and the mapping between Telegram messages and content units.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/veilchat/anonbot/internal/domain"
)

// Transport implements domain.Transport over the Telegram Bot API.
type Transport struct {
	api    *tgbotapi.BotAPI
	client *http.Client
}

// NewTransport wraps an authorized bot client.
func NewTransport(api *tgbotapi.BotAPI) *Transport {
	return &Transport{
		api:    api,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Send delivers a content unit, selecting the platform message type by the
// content's kind tag. Media kinds forward by platform file id; the bytes
// never pass through this process.
func (t *Transport) Send(ctx context.Context, userID int64, content domain.Content) (int, error) {
	var msg tgbotapi.Chattable

	switch content.Kind {
	case domain.KindText:
		msg = tgbotapi.NewMessage(userID, content.Text)
	case domain.KindPhoto:
		c := tgbotapi.NewPhoto(userID, tgbotapi.FileID(content.File.FileID))
		c.Caption = content.Text
		msg = c
	case domain.KindVideo:
		c := tgbotapi.NewVideo(userID, tgbotapi.FileID(content.File.FileID))
		c.Caption = content.Text
		msg = c
	case domain.KindVoice:
		msg = tgbotapi.NewVoice(userID, tgbotapi.FileID(content.File.FileID))
	case domain.KindAudio:
		c := tgbotapi.NewAudio(userID, tgbotapi.FileID(content.File.FileID))
		c.Caption = content.Text
		msg = c
	case domain.KindSticker:
		msg = tgbotapi.NewSticker(userID, tgbotapi.FileID(content.File.FileID))
	case domain.KindAnimation:
		c := tgbotapi.NewAnimation(userID, tgbotapi.FileID(content.File.FileID))
		c.Caption = content.Text
		msg = c
	case domain.KindVideoNote:
		msg = tgbotapi.NewVideoNote(userID, 0, tgbotapi.FileID(content.File.FileID))
	case domain.KindDocument:
		c := tgbotapi.NewDocument(userID, tgbotapi.FileID(content.File.FileID))
		c.Caption = content.Text
		msg = c
	default:
		return 0, fmt.Errorf("telegram: cannot send kind %q", content.Kind)
	}

	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram: send to %d: %w", userID, err)
	}
	return sent.MessageID, nil
}

// Edit replaces the text of a previously sent message.
func (t *Transport) Edit(ctx context.Context, userID int64, messageID int, text string) error {
	if _, err := t.api.Send(tgbotapi.NewEditMessageText(userID, messageID, text)); err != nil {
		return fmt.Errorf("telegram: edit %d/%d: %w", userID, messageID, err)
	}
	return nil
}

// Delete removes a message from the user's chat.
func (t *Transport) Delete(ctx context.Context, userID int64, messageID int) error {
	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(userID, messageID)); err != nil {
		return fmt.Errorf("telegram: delete %d/%d: %w", userID, messageID, err)
	}
	return nil
}

// Pin pins a message in the user's chat.
func (t *Transport) Pin(ctx context.Context, userID int64, messageID int) error {
	cfg := tgbotapi.PinChatMessageConfig{
		ChatID:              userID,
		MessageID:           messageID,
		DisableNotification: false,
	}
	if _, err := t.api.Request(cfg); err != nil {
		return fmt.Errorf("telegram: pin %d/%d: %w", userID, messageID, err)
	}
	return nil
}

// UnpinAll removes every pin in the user's chat.
func (t *Transport) UnpinAll(ctx context.Context, userID int64) error {
	if _, err := t.api.Request(tgbotapi.UnpinAllChatMessagesConfig{ChatID: userID}); err != nil {
		return fmt.Errorf("telegram: unpin all %d: %w", userID, err)
	}
	return nil
}

// Download fetches a platform file and returns its bytes and the MIME type
// reported by the file server.
func (t *Transport) Download(ctx context.Context, ref domain.FileRef) ([]byte, string, error) {
	url, err := t.api.GetFileDirectURL(ref.FileID)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: resolve file %s: %w", ref.FileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: download %s: %w", ref.FileID, err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: download %s: %w", ref.FileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("telegram: download %s: status %d", ref.FileID, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: download %s: %w", ref.FileID, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
