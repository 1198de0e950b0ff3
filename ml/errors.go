package ml

import "errors"

var (
	// ErrConfiguration construction was given neither training data nor a restore locator
	ErrConfiguration = errors.New("model configuration error")
	// ErrNotFound the restore locator does not resolve to an artifact
	ErrNotFound = errors.New("model artifact not found")
	// ErrTraining the classifier rejected the training data
	ErrTraining = errors.New("model training failed")
	// ErrState the operation needs a fitted or restored classifier
	ErrState = errors.New("model not trained")
	// ErrPersistence the artifact could not be written or decoded
	ErrPersistence = errors.New("model persistence failed")
	// ErrInvalidRequest a prediction request lacks a required numeric feature
	ErrInvalidRequest = errors.New("invalid prediction request")
)
