package session

import (
	"context"

	"github.com/jrsteele09/go-session-broker/identity"
)

// Attempt is one way of obtaining a token.
type Attempt func(ctx context.Context) (identity.Token, error)

// Source records which attempt produced a token.
type Source int

const (
	SourceNone Source = iota
	SourceSilent
	SourceInteractive
)

func (s Source) String() string {
	switch s {
	case SourceSilent:
		return "silent"
	case SourceInteractive:
		return "interactive"
	default:
		return "none"
	}
}

// Outcome is the result of running a Renewal. Failures are values here; they
// become an error only through Err.
type Outcome struct {
	Token          identity.Token
	Source         Source
	SilentErr      error
	InteractiveErr error
}

// Err returns nil when a token was obtained, and otherwise the failure of the
// last attempt that ran.
func (o Outcome) Err() error {
	if o.Source != SourceNone {
		return nil
	}
	if o.InteractiveErr != nil {
		return o.InteractiveErr
	}
	return o.SilentErr
}

// Renewal pairs a cheap non-interactive attempt with an interactive one.
// Silent always runs first; Interactive runs only when Silent fails. Both are
// required.
type Renewal struct {
	Silent      Attempt
	Interactive Attempt
	// OnFallback, if set, observes the silent failure before the interactive
	// attempt starts.
	OnFallback func(silentErr error)
}

func (r Renewal) Run(ctx context.Context) Outcome {
	tok, err := r.Silent(ctx)
	if err == nil {
		return Outcome{Token: tok, Source: SourceSilent}
	}

	out := Outcome{SilentErr: err}
	if r.OnFallback != nil {
		r.OnFallback(err)
	}

	tok, err = r.Interactive(ctx)
	if err != nil {
		out.InteractiveErr = err
		return out
	}
	out.Token = tok
	out.Source = SourceInteractive
	return out
}
