package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/herdsync/internal/backend"
)

var (
	// ErrSyncInProgress is returned by Sync while another pass is running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNotSynced is returned for a synced-record mutation whose dedup key
	// is not in the server cache.
	ErrNotSynced = errors.New("record is not in the server cache")

	// ErrNotPending is returned for a pending-record mutation whose local id
	// is not queued.
	ErrNotPending = errors.New("record is not pending")
)

// SyncError reports why a sync pass stopped early.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected pass.
	RunID string

	// LocalID is the pending record being pushed when the pass stopped,
	// 0 when not applicable.
	LocalID int64

	// Err is the underlying cause.
	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeUnauthenticated means the backend refused the credentials or
	// no token was available.
	ErrCodeUnauthenticated SyncErrorCode = "UNAUTHENTICATED"

	// ErrCodeCanceled means the caller's context ended mid-pass.
	ErrCodeCanceled SyncErrorCode = "CANCELED"

	// ErrCodeLeaseLost means the pass could not renew its sync lease,
	// usually because it outlived the lease and another process took over.
	ErrCodeLeaseLost SyncErrorCode = "LEASE_LOST"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s (run=%s", e.Code, e.Message, e.RunID)
	if e.LocalID != 0 {
		msg += fmt.Sprintf(", local_id=%d", e.LocalID)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is, or wraps, an authentication failure.
func IsAuthError(err error) bool {
	var se *SyncError
	if errors.As(err, &se) && se.Code == ErrCodeUnauthenticated {
		return true
	}
	return backend.IsAuthError(err)
}

// IsBusy reports whether err is ErrSyncInProgress.
func IsBusy(err error) bool {
	return errors.Is(err, ErrSyncInProgress)
}

func newAuthError(runID string, localID int64, err error) *SyncError {
	return &SyncError{
		Code:    ErrCodeUnauthenticated,
		Message: "backend rejected credentials",
		RunID:   runID,
		LocalID: localID,
		Err:     err,
	}
}

func newCanceledError(runID string, err error) *SyncError {
	return &SyncError{
		Code:    ErrCodeCanceled,
		Message: "sync canceled",
		RunID:   runID,
		Err:     err,
	}
}

func newLeaseLostError(runID string, err error) *SyncError {
	return &SyncError{
		Code:    ErrCodeLeaseLost,
		Message: "sync lease lost",
		RunID:   runID,
		Err:     err,
	}
}
