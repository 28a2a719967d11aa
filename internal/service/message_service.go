package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"exchange-service/internal/apperror"
	"exchange-service/internal/models"
	"exchange-service/internal/session"
	"exchange-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMessageMaxLength caps chat messages when no limit is configured
const DefaultMessageMaxLength = 500

// MessageService handles the chat inside a negotiation
type MessageService struct {
	negotiations *NegotiationService
	repo         Repository
	publisher    Publisher
	maxLength    int
	logger       *zap.Logger
}

// NewMessageService creates a new message service
func NewMessageService(negotiations *NegotiationService, maxLength int) *MessageService {
	if maxLength <= 0 {
		maxLength = DefaultMessageMaxLength
	}
	return &MessageService{
		negotiations: negotiations,
		repo:         negotiations.repo,
		publisher:    negotiations.publisher,
		maxLength:    maxLength,
		logger:       util.GetLogger(),
	}
}

// SendMessageRequest represents a chat message to send
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage stores a message from one participant of an open negotiation
func (s *MessageService) SendMessage(ctx context.Context, sess session.Session, requestID int64, req *SendMessageRequest) (*models.Message, error) {
	ctx, span := util.StartSpan(ctx, "MessageService.SendMessage")
	defer span.End()

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "message cannot be empty")
	}
	if utf8.RuneCountInString(content) > s.maxLength {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "message is limited to %d characters", s.maxLength)
	}

	r, product, err := s.negotiations.participantRequest(ctx, sess, requestID)
	if err != nil {
		return nil, err
	}
	if !r.Status.IsActive() {
		return nil, apperror.Newf(apperror.ErrCodeConflict, "messages cannot be sent while the negotiation is %s", r.Status)
	}

	msg := &models.Message{
		RequestID:  r.ID,
		SenderID:   sess.UserID,
		SenderName: sess.UserName,
		Content:    content,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	util.MessagesSentTotal.Inc()
	s.logger.Debug("Message sent",
		zap.Int64("request_id", r.ID),
		zap.Int64("message_id", msg.ID))

	event := &models.MessageSentEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeMessageSent,
			Timestamp: time.Now(),
		},
		RequestID: r.ID,
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
	}
	if err := s.publisher.PublishMessageSent(ctx, product.ID, event); err != nil {
		s.logger.Error("Failed to publish MessageSent event", zap.Error(err))
	}

	return msg, nil
}
