package identity

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/jrsteele09/go-session-broker/internal/errors"
	"golang.org/x/oauth2"
)

var (
	ErrInteractionFailed   = errors.New("interaction failed")
	ErrSilentRenewalFailed = errors.New("silent renewal failed")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// Classify wraps err under kind. Transport failures additionally match
// ErrProviderUnavailable, and OAuth error responses are reduced to their
// error code and description.
func Classify(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", kind, err)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode != "" {
			if retrieveErr.ErrorDescription != "" {
				return fmt.Errorf("%w: %s: %s", kind, retrieveErr.ErrorCode, retrieveErr.ErrorDescription)
			}
			return fmt.Errorf("%w: %s", kind, retrieveErr.ErrorCode)
		}
		return fmt.Errorf("%w: %w", kind, err)
	}

	if IsTransport(err) {
		return fmt.Errorf("%w: %w: %w", kind, ErrProviderUnavailable, err)
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// IsTransport reports whether err is a network level failure talking to the
// provider.
func IsTransport(err error) bool {
	if errors.Is(err, ErrProviderUnavailable) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
