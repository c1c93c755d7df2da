package provider

import (
	"context"
	"net/url"
	"os/exec"
	"runtime"

	"github.com/rs/zerolog"
)

// Query parameters carrying credentials. They are masked whenever a URL is
// logged.
var sensitiveParams = []string{"id_token_hint"}

// Opener presents a provider URL to the user.
type Opener interface {
	Open(ctx context.Context, rawURL string) error
}

type OpenerFunc func(ctx context.Context, rawURL string) error

func (f OpenerFunc) Open(ctx context.Context, rawURL string) error {
	return f(ctx, rawURL)
}

// BrowserOpener launches the platform's default browser. The URL is logged,
// with credentials masked, so it can be opened by hand when no browser is
// available.
//
// A browser that fails to start is logged and not reported as an error: the
// flow keeps waiting for the user to open the logged URL and only fails once
// the interactive timeout passes.
type BrowserOpener struct {
	Log zerolog.Logger
	// Launch replaces the platform browser command when set.
	Launch func(ctx context.Context, rawURL string) error
}

func (b BrowserOpener) Open(ctx context.Context, rawURL string) error {
	b.Log.Info().Str("url", redactURL(rawURL)).Msg("Open the following URL in a browser to continue")

	launch := b.Launch
	if launch == nil {
		launch = launchBrowser
	}
	if err := launch(ctx, rawURL); err != nil {
		b.Log.Warn().Err(err).Msg("Could not launch a browser")
	}
	return nil
}

func launchBrowser(ctx context.Context, rawURL string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", rawURL)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", rawURL)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// redactURL masks the credential parameters and any userinfo password.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<unparseable URL>"
	}
	q := u.Query()
	masked := false
	for _, key := range sensitiveParams {
		if q.Has(key) {
			q.Set(key, "REDACTED")
			masked = true
		}
	}
	if masked {
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}
