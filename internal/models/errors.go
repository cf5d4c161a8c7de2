package models

import "errors"

var (
	// ErrBusy is returned when a send is attempted while a stream is in progress.
	ErrBusy = errors.New("a response is still streaming")
	// ErrEmptyPrompt is returned for blank patient input.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrInvalidTransition is returned when the lifecycle forbids an operation.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrNoSession is returned when no session is open.
	ErrNoSession = errors.New("no intake session is open")
	// ErrSessionExpired is returned when a resume token has expired.
	ErrSessionExpired = errors.New("paused session has expired")
	// ErrSessionNotFound is returned when the backend no longer knows the session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRateLimited is returned when the backend rejects a request with 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotConnected is returned when sending on a closed notification channel.
	ErrNotConnected = errors.New("notification channel is not connected")
	// ErrRetryExhausted is returned once a retry policy allows no more attempts.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
	// ErrAlreadyRunning is returned when another client holds the profile lock.
	ErrAlreadyRunning = errors.New("another client is running for this profile")
	// ErrNotAuthenticated is returned by operations that need a bearer token.
	ErrNotAuthenticated = errors.New("not signed in")
)
