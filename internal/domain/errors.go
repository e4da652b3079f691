package domain

import "errors"

var (
	// ErrValidation marks a caller mistake in the request payload. Wrap it
	// with the concrete complaint.
	ErrValidation = errors.New("invalid input")

	ErrItemNotFound    = errors.New("item not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrCommentNotFound = errors.New("comment not found")

	ErrDuplicateVote     = errors.New("duplicated vote")
	ErrInsufficientKarma = errors.New("not enough karma")

	ErrInvalidParent      = errors.New("parent comment does not exist")
	ErrEditWindowExpired  = errors.New("edit window expired")
	ErrForbidden          = errors.New("operation not allowed for this user")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("wrong username or password")
	ErrSubmittedRecently  = errors.New("submitted a story too recently")
)
