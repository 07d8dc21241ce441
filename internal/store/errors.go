package store

import "fmt"

// Error is a persistence failure with a user-facing message.
type Error struct {
	Message string
	Err     error // parent sentinel or underlying cause
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err != ErrNotFound && e.Err != ErrAlreadyExists {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Sentinel errors. The specific ones unwrap to the generic ones, so
// errors.Is(ErrAuthorNotFound, ErrNotFound) holds.
var (
	ErrNotFound      = &Error{Message: "resource not found"}
	ErrAlreadyExists = &Error{Message: "resource already exists"}

	ErrAuthorNotFound = &Error{Message: "author not found", Err: ErrNotFound}
	ErrBookNotFound   = &Error{Message: "book not found", Err: ErrNotFound}
	ErrUserNotFound   = &Error{Message: "user not found", Err: ErrNotFound}

	ErrAuthorExists = &Error{Message: "author already exists", Err: ErrAlreadyExists}
	ErrUserExists   = &Error{Message: "username already taken", Err: ErrAlreadyExists}
)
