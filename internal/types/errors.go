package types

import "errors"

// ErrCharacterNotFound is returned when a character ID resolves to nothing.
var ErrCharacterNotFound = errors.New("character not found")
