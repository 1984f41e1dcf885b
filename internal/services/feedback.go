package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/store"
	"github.com/autofi/recommender/pkg/models"
)

const (
	feedbackSelectQuery = `SELECT "Feedback" FROM "ChatMessages" WHERE "Id" = $1`
	feedbackUpdateQuery = `UPDATE "ChatMessages" SET "Feedback" = $1 WHERE "Id" = $2`
)

// FeedbackService stores the per-message vote. Votes toggle: casting
// the vote a message already carries clears it back to NOTVOTED.
type FeedbackService struct {
	db     store.Querier
	logger *logrus.Logger
}

func NewFeedbackService(db store.Querier, logger *logrus.Logger) *FeedbackService {
	return &FeedbackService{db: db, logger: logger}
}

// Submit applies one vote and returns the stored state after toggling.
func (s *FeedbackService) Submit(ctx context.Context, messageID int, vote models.FeedbackVote) (models.FeedbackVote, error) {
	var current *string
	err := s.db.QueryRow(ctx, feedbackSelectQuery, messageID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", &models.MessageNotFoundError{MessageID: messageID}
	}
	if err != nil {
		return "", fmt.Errorf("failed to load message feedback: %w", err)
	}

	existing := models.VoteNotVoted
	if current != nil && *current != "" {
		existing = models.FeedbackVote(*current)
	}

	next := vote
	if existing == vote {
		next = models.VoteNotVoted
	}

	if _, err := s.db.Exec(ctx, feedbackUpdateQuery, string(next), messageID); err != nil {
		return "", fmt.Errorf("failed to store message feedback: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"message_id": messageID,
		"vote":       next,
	}).Debug("Stored message feedback")
	return next, nil
}
