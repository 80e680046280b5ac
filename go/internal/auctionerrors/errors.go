package auctionerrors

import "errors"

// Admission rejections. All are terminal for the bid that caused them; the
// client's optimistic mirror must roll back on any of these.
var (
	ErrGameNotFound   = errors.New("game not found")
	ErrGameNotOpen    = errors.New("game not open for clicks")
	ErrGameExpired    = errors.New("game already expired")
	ErrDuplicateClick = errors.New("duplicate in-flight click")
)

// ErrConflict is returned once bounded retries of the conditional update are
// exhausted. Transient at the storage layer, generic failure to callers.
var ErrConflict = errors.New("concurrent update conflict")
