package services

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testUser() *models.AuthUser {
	return &models.AuthUser{
		UserID: 7,
		Name:   "alice",
		Email:  "alice@example.com",
	}
}
