package state

import "errors"

// ErrDeltaValidation is returned when a sync delta does not consistently
// extend the local view. The round aborts before any mutation; the caller
// decides whether to resynchronize from an earlier checkpoint.
var ErrDeltaValidation = errors.New("sync delta failed validation")

// ErrNoteNotConsumable is returned when local execution selects a note
// that is not in a consumable state.
var ErrNoteNotConsumable = errors.New("note is not consumable")

// ErrAccountExists is returned when adding an account that is already
// tracked.
var ErrAccountExists = errors.New("account already tracked")

// ErrNoteExists is returned when importing a note that is already tracked.
var ErrNoteExists = errors.New("note already tracked")
