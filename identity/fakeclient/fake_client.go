// Package fakeclient provides a scriptable identity.Client for tests.
package fakeclient

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-session-broker/identity"
)

var _ identity.Client = (*FakeClient)(nil)

// FakeClient records every call and returns the scripted results. Hooks, when
// set, take precedence over the scripted values.
type FakeClient struct {
	lock sync.Mutex

	Cached        *identity.Account
	CachedErr     error
	SignInAccount identity.Account
	SignInErr     error
	SignOutErr    error
	SilentToken   identity.Token
	SilentErr     error
	InteractToken identity.Token
	InteractErr   error

	OnSignIn   func(ctx context.Context) (identity.Account, error)
	OnSignOut  func(ctx context.Context) error
	OnSilent   func(ctx context.Context, account identity.Account, scopes []string) (identity.Token, error)
	OnInteract func(ctx context.Context, account identity.Account, scopes []string) (identity.Token, error)

	calls []string
}

func New() *FakeClient {
	return &FakeClient{}
}

func (f *FakeClient) SignInInteractive(ctx context.Context) (identity.Account, error) {
	f.lock.Lock()
	f.calls = append(f.calls, "SignInInteractive")
	hook, account, err := f.OnSignIn, f.SignInAccount, f.SignInErr
	f.lock.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return account, err
}

func (f *FakeClient) SignOutInteractive(ctx context.Context) error {
	f.lock.Lock()
	f.calls = append(f.calls, "SignOutInteractive")
	hook, err := f.OnSignOut, f.SignOutErr
	f.lock.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return err
}

func (f *FakeClient) CachedAccount() (*identity.Account, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls = append(f.calls, "CachedAccount")
	if f.Cached == nil {
		return nil, f.CachedErr
	}
	account := *f.Cached
	return &account, f.CachedErr
}

func (f *FakeClient) AcquireTokenSilent(ctx context.Context, account identity.Account, scopes []string) (identity.Token, error) {
	f.lock.Lock()
	f.calls = append(f.calls, "AcquireTokenSilent")
	hook, tok, err := f.OnSilent, f.SilentToken, f.SilentErr
	f.lock.Unlock()
	if hook != nil {
		return hook(ctx, account, scopes)
	}
	return tok, err
}

func (f *FakeClient) AcquireTokenInteractive(ctx context.Context, account identity.Account, scopes []string) (identity.Token, error) {
	f.lock.Lock()
	f.calls = append(f.calls, "AcquireTokenInteractive")
	hook, tok, err := f.OnInteract, f.InteractToken, f.InteractErr
	f.lock.Unlock()
	if hook != nil {
		return hook(ctx, account, scopes)
	}
	return tok, err
}

// Calls returns the names of the operations invoked so far, in order.
func (f *FakeClient) Calls() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many times the named operation was invoked.
func (f *FakeClient) Count(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls.
func (f *FakeClient) Reset() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls = nil
}
