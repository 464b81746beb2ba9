package shared

import "errors"

// ErrActorMissing indicates a mutating request without an authenticated actor.
var ErrActorMissing = errors.New("actor identity missing")
