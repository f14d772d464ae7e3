package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"

	"github.com/mrz1836/postmark"
)

type postmarkClient struct {
	client *postmark.Client
	config Config
}

// NewPostmarkClient creates a Postmark-backed Sender.
func NewPostmarkClient(cfg Config) (Sender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(cfg.SenderEmail); err != nil {
		return nil, fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(cfg.SupportEmail); err != nil {
		return nil, fmt.Errorf("%w: SupportEmail must be a valid email address", ErrInvalidConfig)
	}

	return &postmarkClient{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config: cfg,
	}, nil
}

// MustNewPostmarkClient is NewPostmarkClient that panics on invalid config.
func MustNewPostmarkClient(cfg Config) Sender {
	client, err := NewPostmarkClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Send delivers msg through Postmark's transactional API. Replies go to the
// support mailbox.
func (c *postmarkClient) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	attachments := make([]postmark.Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		attachments = append(attachments, postmark.Attachment{
			Name:        a.Name,
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			ContentType: a.ContentType,
		})
	}

	resp, err := c.client.SendEmail(ctx, postmark.Email{
		From:          c.config.SenderEmail,
		ReplyTo:       c.config.SupportEmail,
		To:            msg.To,
		Subject:       msg.Subject,
		Tag:           msg.Tag,
		HTMLBody:      msg.HTMLBody,
		TextBody:      msg.TextBody,
		Attachments:   attachments,
		MessageStream: c.config.MessageStream,
		TrackOpens:    true,
	})
	if err != nil {
		return "", errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return "", errors.Join(
			ErrFailedToSendEmail,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return resp.MessageID, nil
}
