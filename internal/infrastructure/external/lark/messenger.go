package lark

import (
	"context"
	"encoding/json"
	"fmt"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/jd-approval/internal/application/port"
)

// createMessageFunc is the single IM call the messenger needs
type createMessageFunc func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error)

// Messenger implements port.MessageSender with Lark direct messages
type Messenger struct {
	create createMessageFunc
	logger *zap.Logger
}

// NewMessenger creates a new Lark message sender adapter
func NewMessenger(client *SDKClient, logger *zap.Logger) *Messenger {
	im := client.GetClient().Im
	return &Messenger{
		create: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
			return im.Message.Create(ctx, req)
		},
		logger: logger,
	}
}

// SendText sends a plain text message to the user behind openID
func (m *Messenger) SendText(ctx context.Context, openID string, text string) error {
	if openID == "" {
		return fmt.Errorf("openID cannot be empty")
	}
	if text == "" {
		return fmt.Errorf("text cannot be empty")
	}

	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to encode text content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeOpenId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(openID).
			MsgType(larkim.MsgTypeText).
			Content(string(content)).
			Build()).
		Build()

	resp, err := m.create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", openID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", openID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	m.logger.Info("Message sent successfully",
		zap.String("message_id", messageID),
		zap.String("receive_id", openID))

	return nil
}

// LogMessenger stands in for Lark when no app credentials are configured.
// Every message is written to the log and reported as delivered.
type LogMessenger struct {
	logger *zap.Logger
}

// NewLogMessenger creates a log-only message sender
func NewLogMessenger(logger *zap.Logger) *LogMessenger {
	return &LogMessenger{logger: logger}
}

// SendText logs the message
func (m *LogMessenger) SendText(ctx context.Context, openID string, text string) error {
	m.logger.Info("Lark disabled, message not sent",
		zap.String("receive_id", openID),
		zap.String("text", text))
	return nil
}

// Verify interface compliance
var (
	_ port.MessageSender = (*Messenger)(nil)
	_ port.MessageSender = (*LogMessenger)(nil)
)
