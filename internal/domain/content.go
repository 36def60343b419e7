package domain

// ContentKind is the type discriminator of a relayed content unit. Dispatch
// is always on the kind tag, never on field presence.
type ContentKind string

const (
	KindText        ContentKind = "text"
	KindPhoto       ContentKind = "photo"
	KindVideo       ContentKind = "video"
	KindVoice       ContentKind = "voice"
	KindAudio       ContentKind = "audio"
	KindSticker     ContentKind = "sticker"
	KindAnimation   ContentKind = "animation"
	KindVideoNote   ContentKind = "video_note"
	KindDocument    ContentKind = "document"
	KindUnsupported ContentKind = "unsupported"
)

// Media reports whether the kind carries a platform file reference.
func (k ContentKind) Media() bool {
	switch k {
	case KindPhoto, KindVideo, KindVoice, KindAudio, KindSticker,
		KindAnimation, KindVideoNote, KindDocument:
		return true
	}
	return false
}

// FileRef points at a platform-hosted file.
type FileRef struct {
	FileID   string
	FileName string // original name when the platform provides one
	MimeType string // platform-declared MIME type, may be empty
}

// Content is one inbound or outbound content unit: a tagged union over the
// supported kinds. Text holds the message body for KindText and the caption
// for media kinds. SourceID is the platform id of the sender's original
// message when known.
type Content struct {
	Kind     ContentKind
	Text     string
	File     FileRef
	SourceID int
}

// TextContent builds a plain text content unit.
func TextContent(text string) Content {
	return Content{Kind: KindText, Text: text}
}
