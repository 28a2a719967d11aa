package store

import (
	"context"

	"exchange-service/internal/models"
)

// CreateMessage stores a chat message
func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO messages (request_id, sender_id, sender_name, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, sent_at`

	row := s.db.QueryRowxContext(ctx, query, m.RequestID, m.SenderID, m.SenderName, m.Content)
	return translate(row.Scan(&m.ID, &m.SentAt))
}

// GetMessagesByRequestID retrieves a negotiation's chat, oldest first
func (s *Store) GetMessagesByRequestID(ctx context.Context, requestID int64) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.SelectContext(ctx, &messages,
		"SELECT id, request_id, sender_id, sender_name, content, sent_at FROM messages WHERE request_id = $1 ORDER BY sent_at, id",
		requestID)
	return messages, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
