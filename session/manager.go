// Package session owns the authentication state of the process: who is signed
// in, whether a sign-in or sign-out is in flight, and the last error any
// operation reported. Token acquisition runs the silent-then-interactive
// renewal protocol against the identity client.
package session

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/jrsteele09/go-session-broker/identity"
	"github.com/jrsteele09/go-session-broker/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultDisplayName is shown when the account carries no name.
const DefaultDisplayName = "User"

// State is a consistent snapshot of the session.
type State struct {
	Status          Status            `json:"status"`
	Account         *identity.Account `json:"account,omitempty"`
	IsAuthenticated bool              `json:"isAuthenticated"`
	IsLoading       bool              `json:"isLoading"`
	LastError       string            `json:"lastError,omitempty"`
}

// Manager is the session state machine. Construct one per process at the
// composition root and share it.
//
// State changes only when an operation starts (entering SigningIn or
// SigningOut) and when it resolves, always under the lock, so readers never
// see an account without IsAuthenticated or the reverse.
type Manager struct {
	client      identity.Client
	scopes      []string
	displayName string
	log         zerolog.Logger

	mu        sync.RWMutex
	status    Status
	account   *identity.Account
	lastError string

	// interactive coalesces concurrent interactive renewals for the same
	// account and scopes into one prompt.
	interactive singleflight.Group
}

type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithDefaultDisplayName overrides DefaultDisplayName.
func WithDefaultDisplayName(name string) Option {
	return func(m *Manager) { m.displayName = name }
}

// NewManager returns a Manager in the Uninitialized state. scopes are
// requested by AcquireToken when the caller names none.
func NewManager(client identity.Client, scopes []string, opts ...Option) *Manager {
	m := &Manager{
		client:      client,
		scopes:      slices.Clone(scopes),
		displayName: DefaultDisplayName,
		log:         log.With().Str("component", "session").Logger(),
		status:      Uninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize loads the account the identity client has cached, if any. It
// never fails: a cache error leaves the session signed out with LastError
// set. Calling it while a sign-in or sign-out is in flight does nothing.
func (m *Manager) Initialize() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status.Transient() {
		m.log.Debug().Stringer("status", m.status).Msg("Initialize skipped, transition in progress")
		return
	}

	account, err := m.client.CachedAccount()
	if err != nil {
		m.log.Err(err).Msg("Failed to read cached account")
		m.lastError = err.Error()
		account = nil
	}

	if account == nil {
		m.account = nil
		m.status = SignedOut
		return
	}
	m.account = utils.Ptr(*account)
	m.status = SignedIn
	m.log.Info().Str("account_id", account.ID).Msg("Restored cached account")
}

// SignIn runs the interactive sign-in. On failure the session returns to
// SignedOut, the error is recorded and returned.
func (m *Manager) SignIn(ctx context.Context) (identity.Account, error) {
	m.mu.Lock()
	switch {
	case m.status.Transient():
		m.mu.Unlock()
		return identity.Account{}, ErrTransitionInProgress
	case m.status == SignedIn:
		m.mu.Unlock()
		return identity.Account{}, ErrAlreadySignedIn
	}
	m.status = SigningIn
	m.lastError = ""
	m.mu.Unlock()

	account, err := m.client.SignInInteractive(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.log.Err(err).Msg("Sign-in failed")
		m.lastError = err.Error()
		m.account = nil
		m.status = SignedOut
		return identity.Account{}, err
	}
	m.account = utils.Ptr(account)
	m.status = SignedIn
	m.log.Info().Str("account_id", account.ID).Msg("Signed in")
	return account, nil
}

// SignOut ends the provider session and clears the local one. The local
// session is cleared whatever the provider reports; a provider failure is
// recorded and returned.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	if m.status.Transient() {
		m.mu.Unlock()
		return ErrTransitionInProgress
	}
	m.status = SigningOut
	m.lastError = ""
	m.mu.Unlock()

	err := m.client.SignOutInteractive(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = nil
	m.status = SignedOut
	if err != nil {
		m.log.Err(err).Msg("Remote sign-out failed, local session cleared")
		m.lastError = err.Error()
		return err
	}
	m.log.Info().Msg("Signed out")
	return nil
}

// AcquireToken returns a token for scopes, or for the configured scopes when
// none are given. Silent renewal is attempted on every call; only when it
// fails is the interactive flow started. A failure is recorded and returned
// but never signs the session out.
func (m *Manager) AcquireToken(ctx context.Context, scopes ...string) (identity.Token, error) {
	if len(scopes) == 0 {
		scopes = m.scopes
	}

	m.mu.RLock()
	var account identity.Account
	hasAccount := m.account != nil
	if hasAccount {
		account = *m.account
	}
	m.mu.RUnlock()

	if !hasAccount {
		m.recordError(ErrNoAccount)
		return identity.Token{}, ErrNoAccount
	}

	renewal := Renewal{
		Silent: func(ctx context.Context) (identity.Token, error) {
			return m.client.AcquireTokenSilent(ctx, account, scopes)
		},
		Interactive: func(ctx context.Context) (identity.Token, error) {
			return m.acquireInteractive(ctx, account, scopes)
		},
		OnFallback: func(err error) {
			m.log.Warn().Err(err).Str("account_id", account.ID).Msg("Silent token renewal failed, trying interactive")
		},
	}

	outcome := renewal.Run(ctx)
	if err := outcome.Err(); err != nil {
		m.log.Err(err).Str("account_id", account.ID).Msg("Token acquisition failed")
		m.recordError(err)
		return identity.Token{}, err
	}
	m.log.Debug().Stringer("source", outcome.Source).Strs("scopes", scopes).Msg("Token acquired")
	return outcome.Token, nil
}

// acquireInteractive shares one in-flight interactive renewal between
// concurrent callers for the same account and scopes. The shared flow is
// detached from every caller's cancellation and bounded by the identity
// client's interactive timeout; each caller stops waiting when its own
// context ends.
func (m *Manager) acquireInteractive(ctx context.Context, account identity.Account, scopes []string) (identity.Token, error) {
	key := account.ID + "\x00" + scopeKey(scopes)
	flowCtx := context.WithoutCancel(ctx)
	results := m.interactive.DoChan(key, func() (any, error) {
		return m.client.AcquireTokenInteractive(flowCtx, account, scopes)
	})

	select {
	case res := <-results:
		if res.Shared {
			m.log.Debug().Str("account_id", account.ID).Msg("Joined in-flight interactive renewal")
		}
		if res.Err != nil {
			return identity.Token{}, res.Err
		}
		return res.Val.(identity.Token), nil
	case <-ctx.Done():
		return identity.Token{}, identity.Classify(identity.ErrInteractionFailed, ctx.Err())
	}
}

// ClearError forgets the last recorded error.
func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = ""
}

func (m *Manager) recordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = err.Error()
}

// State returns a snapshot of the session.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := State{
		Status:          m.status,
		IsAuthenticated: m.account != nil,
		IsLoading:       m.status.Transient(),
		LastError:       m.lastError,
	}
	if m.account != nil {
		st.Account = utils.Ptr(*m.account)
	}
	return st
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Account returns the signed-in account, or nil.
func (m *Manager) Account() *identity.Account {
	return m.State().Account
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.account != nil
}

func (m *Manager) IsLoading() bool {
	return m.Status().Transient()
}

func (m *Manager) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// DisplayName returns the account's name, or the generic label.
func (m *Manager) DisplayName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.account != nil && m.account.Name != "" {
		return m.account.Name
	}
	return m.displayName
}

// Email returns the account's username, then its mail address, then "".
func (m *Manager) Email() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.account == nil {
		return ""
	}
	if m.account.Username != "" {
		return m.account.Username
	}
	return m.account.Mail
}

func scopeKey(scopes []string) string {
	sorted := slices.Clone(scopes)
	slices.Sort(sorted)
	return strings.Join(sorted, " ")
}
