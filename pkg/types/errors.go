package types

import "errors"

// Failure taxonomy shared by the indexing and query pipelines.
var (
	// ErrUnreadableSource marks a book file that cannot be parsed
	// (corrupt archive, missing internal structure, bad encoding).
	// The file is counted as failed and the run continues.
	ErrUnreadableSource = errors.New("unreadable source")

	// ErrTokenLimitExceeded is the typed form of the embedding oracle's
	// context-length rejection. The adaptive client handles it by retrying
	// at a smaller token ceiling; it escalates to a failure only once all
	// ceilings are exhausted.
	ErrTokenLimitExceeded = errors.New("token limit exceeded")

	// ErrServiceUnavailable marks transient oracle or network failures.
	// Callers retry with backoff before treating it as hard.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrLedgerCorrupt means the index ledger cannot be decoded. The work
	// set cannot be determined safely, so the run aborts.
	ErrLedgerCorrupt = errors.New("index ledger corrupt")

	// ErrIndexLocked means another indexing run holds the lock file.
	ErrIndexLocked = errors.New("index locked by another run")
)
