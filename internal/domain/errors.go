package domain

import "errors"

// ErrNotFound is returned by docstore, store, and backup functions when the
// requested resource does not exist.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when a document or payload fails its schema
// (e.g. missing title, end date before start date).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrUnauthenticated is returned by mutating store operations when the
// context carries no authenticated identity.
// Handlers should map this to HTTP 401.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden is returned when an authenticated identity is not on the
// whitelist. Handlers should map this to HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrParentNotFound is returned by the embedded-array protocol when the
// parent document holding the array does not exist. It matches ErrNotFound
// under errors.Is.
var ErrParentNotFound error = parentNotFound{}

// ErrConflict is returned when a write carried a version precondition and
// another writer changed the document first.
// Handlers should map this to HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrMalformedImport is returned when a backup payload cannot be parsed or
// does not match the envelope schema. Nothing has been written when it is
// returned. Handlers should map this to HTTP 400.
var ErrMalformedImport = errors.New("malformed import payload")

type parentNotFound struct{}

func (parentNotFound) Error() string        { return "parent not found" }
func (parentNotFound) Is(target error) bool { return target == ErrNotFound }
