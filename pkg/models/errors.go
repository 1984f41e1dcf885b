package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the recommendation and assistant paths. Handlers
// map these to HTTP statuses; everything below the HTTP boundary
// returns them as plain error values.
var (
	ErrModelLoading = errors.New("model is loading, try again later")
	ErrUnsafeQuery  = errors.New("unsafe query detected")
)

type UserNotFoundError struct {
	UserID int
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %d not found", e.UserID)
}

type VehicleNotFoundError struct {
	VehicleID int
}

func (e *VehicleNotFoundError) Error() string {
	return fmt.Sprintf("vehicle %d not found", e.VehicleID)
}

// InsufficientDataError is returned when a user has no interactions at
// all, so neither the collaborative nor the content signal exists.
type InsufficientDataError struct {
	UserID int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("not enough interaction data to recommend for user %d", e.UserID)
}

type ModelNotAvailableError struct {
	Name string
}

func (e *ModelNotAvailableError) Error() string {
	return fmt.Sprintf("model %q is not available", e.Name)
}

type MessageNotFoundError struct {
	MessageID int
}

func (e *MessageNotFoundError) Error() string {
	return fmt.Sprintf("chat message %d not found", e.MessageID)
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }

func ftoa(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
