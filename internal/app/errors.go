package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthenticated      = errors.New("not signed in")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrMessageEmpty         = errors.New("message content is empty")
	ErrUnsupportedUpload    = errors.New("unsupported upload")
	ErrInference            = errors.New("inference failed")
)

func inferenceError(err error) error {
	return fmt.Errorf("%w: %w", ErrInference, err)
}
