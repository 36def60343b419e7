package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/veilchat/anonbot/internal/domain"
)

// contentFrom maps an inbound Telegram message to a content unit. Kinds the
// relay cannot forward (locations, contacts, polls, dice, ...) come back as
// KindUnsupported, which the relay turns into a sender-only notice.
func contentFrom(msg *tgbotapi.Message) domain.Content {
	c := domain.Content{SourceID: msg.MessageID}

	switch {
	case msg.Text != "":
		c.Kind = domain.KindText
		c.Text = msg.Text

	case len(msg.Photo) > 0:
		// Telegram sends every resolution; the last entry is the largest.
		largest := msg.Photo[len(msg.Photo)-1]
		c.Kind = domain.KindPhoto
		c.Text = msg.Caption
		c.File = domain.FileRef{FileID: largest.FileID}

	case msg.Video != nil:
		c.Kind = domain.KindVideo
		c.Text = msg.Caption
		c.File = domain.FileRef{
			FileID:   msg.Video.FileID,
			FileName: msg.Video.FileName,
			MimeType: msg.Video.MimeType,
		}

	case msg.Voice != nil:
		c.Kind = domain.KindVoice
		c.File = domain.FileRef{
			FileID:   msg.Voice.FileID,
			MimeType: msg.Voice.MimeType,
		}

	case msg.Audio != nil:
		c.Kind = domain.KindAudio
		c.Text = msg.Caption
		c.File = domain.FileRef{
			FileID:   msg.Audio.FileID,
			FileName: msg.Audio.FileName,
			MimeType: msg.Audio.MimeType,
		}

	case msg.Sticker != nil:
		c.Kind = domain.KindSticker
		c.File = domain.FileRef{FileID: msg.Sticker.FileID}

	case msg.Animation != nil:
		c.Kind = domain.KindAnimation
		c.Text = msg.Caption
		c.File = domain.FileRef{
			FileID:   msg.Animation.FileID,
			FileName: msg.Animation.FileName,
			MimeType: msg.Animation.MimeType,
		}

	case msg.VideoNote != nil:
		c.Kind = domain.KindVideoNote
		c.File = domain.FileRef{FileID: msg.VideoNote.FileID}

	case msg.Document != nil:
		c.Kind = domain.KindDocument
		c.Text = msg.Caption
		c.File = domain.FileRef{
			FileID:   msg.Document.FileID,
			FileName: msg.Document.FileName,
			MimeType: msg.Document.MimeType,
		}

	default:
		c.Kind = domain.KindUnsupported
	}
	return c
}
