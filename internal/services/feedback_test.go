package services

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofi/recommender/pkg/models"
)

func testFeedbackService(t *testing.T) (*FeedbackService, pgxmock.PgxPoolIface) {
	t.Helper()
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)
	return NewFeedbackService(mockDB, testLogger()), mockDB
}

func expectFeedback(mockDB pgxmock.PgxPoolIface, messageID int, current *string, next models.FeedbackVote) {
	mockDB.ExpectQuery(`SELECT "Feedback" FROM "ChatMessages"`).
		WithArgs(messageID).
		WillReturnRows(pgxmock.NewRows([]string{"Feedback"}).AddRow(current))
	mockDB.ExpectExec(`UPDATE "ChatMessages" SET "Feedback"`).
		WithArgs(string(next), messageID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func TestSubmitStoresNewVote(t *testing.T) {
	s, mockDB := testFeedbackService(t)

	expectFeedback(mockDB, 11, nil, models.VoteUpvoted)

	next, err := s.Submit(context.Background(), 11, models.VoteUpvoted)
	require.NoError(t, err)
	assert.Equal(t, models.VoteUpvoted, next)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestSubmitTogglesSameVote(t *testing.T) {
	s, mockDB := testFeedbackService(t)

	current := string(models.VoteUpvoted)
	expectFeedback(mockDB, 11, &current, models.VoteNotVoted)

	next, err := s.Submit(context.Background(), 11, models.VoteUpvoted)
	require.NoError(t, err)
	assert.Equal(t, models.VoteNotVoted, next)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestSubmitReplacesOppositeVote(t *testing.T) {
	s, mockDB := testFeedbackService(t)

	current := string(models.VoteUpvoted)
	expectFeedback(mockDB, 11, &current, models.VoteDownvoted)

	next, err := s.Submit(context.Background(), 11, models.VoteDownvoted)
	require.NoError(t, err)
	assert.Equal(t, models.VoteDownvoted, next)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestSubmitUnknownMessage(t *testing.T) {
	s, mockDB := testFeedbackService(t)

	mockDB.ExpectQuery(`SELECT "Feedback" FROM "ChatMessages"`).
		WithArgs(404).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Submit(context.Background(), 404, models.VoteDownvoted)

	var notFound *models.MessageNotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}
