package store

import (
	"context"
	"sort"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestUserExists(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	s := NewUserStore(mockDB, testLogger())

	mockDB.ExpectQuery(`FROM "Users"`).
		WithArgs(42).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := s.UserExists(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, exists)

	mockDB.ExpectQuery(`FROM "Users"`).
		WithArgs(999).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err = s.UserExists(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestInteractionsForAppliesWeights(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	s := NewUserStore(mockDB, testLogger())

	rows := pgxmock.NewRows([]string{"VehicleId", "InteractionType", "Count"}).
		AddRow(1, "view", 3).
		AddRow(1, "favorite-added", 1).
		AddRow(2, "contacted-seller", 2).
		AddRow(3, "unknown-event", 4)

	mockDB.ExpectQuery(`FROM "UserInteractions"`).
		WithArgs(7).
		WillReturnRows(rows)

	interactions, err := s.InteractionsFor(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, interactions, 3)

	sort.Slice(interactions, func(i, j int) bool {
		return interactions[i].VehicleID < interactions[j].VehicleID
	})

	// view 3x1.0 + favorite 1x5.0
	assert.Equal(t, 8.0, interactions[0].Weight)
	// contacted-seller 2x4.0
	assert.Equal(t, 8.0, interactions[1].Weight)
	// unknown types fall back to view weight
	assert.Equal(t, 4.0, interactions[2].Weight)

	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestInteractionsSummary(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	s := NewUserStore(mockDB, testLogger())

	rows := pgxmock.NewRows([]string{"UserId", "VehicleId", "InteractionType", "Count"}).
		AddRow(1, 10, "view", 2).
		AddRow(2, 10, "share", 1)

	mockDB.ExpectQuery(`FROM "UserInteractions"`).WillReturnRows(rows)

	summary, err := s.InteractionsSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, 1, summary[0].UserID)
	assert.Equal(t, "share", summary[1].InteractionType)

	assert.NoError(t, mockDB.ExpectationsWereMet())
}
