package session

import "errors"

var (
	ErrNoAccount            = errors.New("no account signed in")
	ErrAlreadySignedIn      = errors.New("already signed in")
	ErrTransitionInProgress = errors.New("sign-in or sign-out already in progress")
)
