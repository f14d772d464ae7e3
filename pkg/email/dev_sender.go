package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DevSender writes each message to dir as an HTML body, a JSON metadata
// file and any attachments, instead of sending it.
type DevSender struct {
	dir string
	now func() time.Time
}

func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir, now: time.Now}
}

type devMetadata struct {
	MessageID   string   `json:"message_id"`
	Timestamp   string   `json:"timestamp"`
	To          string   `json:"to"`
	Subject     string   `json:"subject"`
	Tag         string   `json:"tag,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

func (d *DevSender) Send(_ context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create directory: %v", ErrFailedToSendEmail, err)
	}

	now := d.now()
	messageID := "dev-" + uuid.NewString()
	identifier := msg.Tag
	if identifier == "" {
		identifier = msg.Subject
	}
	base := fmt.Sprintf("%s_%s_%s", now.Format("2006_01_02_150405"), sanitizeFilename(identifier), messageID[4:12])

	if err := os.WriteFile(filepath.Join(d.dir, base+".html"), []byte(msg.HTMLBody), 0o644); err != nil {
		return "", fmt.Errorf("%w: write body: %v", ErrFailedToSendEmail, err)
	}

	meta := devMetadata{
		MessageID: messageID,
		Timestamp: now.Format(time.RFC3339),
		To:        msg.To,
		Subject:   msg.Subject,
		Tag:       msg.Tag,
	}
	for _, a := range msg.Attachments {
		name := base + "_" + sanitizeFilename(a.Name)
		if err := os.WriteFile(filepath.Join(d.dir, name), a.Content, 0o644); err != nil {
			return "", fmt.Errorf("%w: write attachment: %v", ErrFailedToSendEmail, err)
		}
		meta.Attachments = append(meta.Attachments, name)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: marshal metadata: %v", ErrFailedToSendEmail, err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write metadata: %v", ErrFailedToSendEmail, err)
	}

	return messageID, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = unsafeFilenameChars.ReplaceAllString(s, "")
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}

// NewSender picks Postmark when tokens are configured and the DevSender
// otherwise.
func NewSender(cfg Config) (Sender, error) {
	if cfg.UsePostmark() {
		return NewPostmarkClient(cfg)
	}
	return NewDevSender(cfg.DevDir), nil
}
