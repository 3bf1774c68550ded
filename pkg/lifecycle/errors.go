package lifecycle

import "errors"

var (
	// ErrInstallFailed is returned when every install attempt failed.
	ErrInstallFailed = errors.New("worker install failed")

	// ErrActivateFailed is returned when Activate failed; the version stays waiting.
	ErrActivateFailed = errors.New("worker activation failed")

	// ErrNotActive is returned by Claim from a version that is not activating or active.
	ErrNotActive = errors.New("worker is not active")

	// ErrUnknownClient is returned for client IDs that were never attached or already detached.
	ErrUnknownClient = errors.New("unknown client")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)
