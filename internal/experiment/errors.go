package experiment

import "errors"

// Integrity errors. They signal a broken configuration or a programming error and are
// never recovered from locally.
var (
	ErrStageNotFound   = errors.New("stage not found")
	ErrKindMismatch    = errors.New("stage kind mismatch")
	ErrUnknownKind     = errors.New("unknown stage kind")
	ErrIdentityChanged = errors.New("edit changed participant identity")
	ErrInvalidProgress = errors.New("invalid progress record")
	ErrStageNotReached = errors.New("stage not reached yet")
	ErrFinished        = errors.New("participant has finished all stages")
	ErrInvalidAnswer   = errors.New("invalid answer")
	ErrInvalidMessage  = errors.New("invalid message")
)
