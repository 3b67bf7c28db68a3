package telegram

import "strings"

// Update is one inbound webhook delivery. Only the message-shaped fields the
// bot dispatches on are decoded; everything else in the payload is ignored.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      *Chat  `json:"chat,omitempty"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
	Caption   string `json:"caption,omitempty"`

	// Attachments (subset).
	Document *Document   `json:"document,omitempty"`
	Photo    []PhotoSize `json:"photo,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"` // private|group|supergroup|channel
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
}

func (m *Message) TextOrCaption() string {
	if m == nil {
		return ""
	}
	if strings.TrimSpace(m.Text) != "" {
		return m.Text
	}
	return m.Caption
}

func (m *Message) HasDocument() bool {
	return m != nil && m.Document != nil && strings.TrimSpace(m.Document.FileID) != ""
}

func (m *Message) HasPhoto() bool {
	if m == nil {
		return false
	}
	for _, p := range m.Photo {
		if strings.TrimSpace(p.FileID) != "" {
			return true
		}
	}
	return false
}

// BestPhoto returns the highest-resolution variant. Telegram orders the photo
// array smallest first, so the last entry with a file id wins.
func (m *Message) BestPhoto() (PhotoSize, bool) {
	if m == nil {
		return PhotoSize{}, false
	}
	var best PhotoSize
	found := false
	for i := range m.Photo {
		if strings.TrimSpace(m.Photo[i].FileID) == "" {
			continue
		}
		best = m.Photo[i]
		found = true
	}
	return best, found
}
