package audit

import "errors"

// Ledger errors.
var (
	// ErrImmutabilityViolation is returned by any code path that attempts
	// to mutate a persisted ledger entry, including bulk operations.
	ErrImmutabilityViolation = errors.New("audit log entries are immutable")

	ErrEntryNotFound = errors.New("audit log entry not found")

	// ErrIntegrityMismatch means a stored entry's hash does not match its
	// fields: the entry was tampered with after creation.
	ErrIntegrityMismatch = errors.New("audit entry integrity hash mismatch")
)
