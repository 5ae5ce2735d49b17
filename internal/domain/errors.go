package domain

import "errors"

var (
	ErrAlreadyClassified = errors.New("connection already classified")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrMissingIdentity   = errors.New("producer id and display name are required")
	ErrNotProducer       = errors.New("connection is not a producer")
	ErrProducerMismatch  = errors.New("producer id does not match joined identity")
	ErrTrackerStopped    = errors.New("presence tracker stopped")
)
