package console

import "errors"

var (
	// ErrNotVerified rejects a mint attempt before any remote call is
	// made: only verified trees are mintable.
	ErrNotVerified = errors.New("verify the capture before minting a token")

	ErrTreeNotFound   = errors.New("tree not found")
	ErrInvalidStatus  = errors.New("status must be verified or rejected")
	ErrLoadInProgress = errors.New("session load already running")
	ErrNotLoggedIn    = errors.New("no operator session")
)
