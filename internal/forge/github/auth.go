package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cli/browser"
	"github.com/shurcooL/githubv4"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

// keyringService namespaces this tool's secrets in the OS secret store,
// separate from any other tool that might use the same keyring backend.
const keyringService = "stk:github"

// deviceFlowClientID is the OAuth App client ID used for the device
// authorization flow. It is not secret; GitHub OAuth Apps authenticate
// the user, not the app.
const deviceFlowClientID = "Iv1.a1b2c3d4e5f6a7b8"

var deviceFlowEndpoint = oauth2.Endpoint{
	AuthURL:       "https://github.com/login/oauth/authorize",
	TokenURL:      "https://github.com/login/oauth/access_token",
	DeviceAuthURL: "https://github.com/login/device/code",
}

// loadToken returns the access token stored for host, or ErrNotLoggedIn
// if the user has never authenticated.
func loadToken(host string) (string, error) {
	token, err := keyring.Get(keyringService, host)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotLoggedIn
		}
		return "", fmt.Errorf("read token from secret store: %w", err)
	}
	return token, nil
}

// saveToken persists the access token for host.
func saveToken(host, token string) error {
	return keyring.Set(keyringService, host, token)
}

// ClearToken removes the stored token for host, e.g. on logout.
func ClearToken(host string) error {
	if err := keyring.Delete(keyringService, host); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete token from secret store: %w", err)
	}
	return nil
}

// ErrNotLoggedIn means no GitHub token has been saved yet.
var ErrNotLoggedIn = errors.New("not logged in to GitHub; run login first")

// Login runs the OAuth device authorization flow against host, printing
// the verification URL and code to out and attempting to open the
// browser automatically, then saves the resulting token.
func Login(ctx context.Context, host string, out io.Writer) error {
	if host == "" {
		host = DefaultHost
	}

	endpoint := deviceFlowEndpoint
	if host != DefaultHost {
		endpoint = oauth2.Endpoint{
			AuthURL:       "https://" + host + "/login/oauth/authorize",
			TokenURL:      "https://" + host + "/login/oauth/access_token",
			DeviceAuthURL: "https://" + host + "/login/device/code",
		}
	}

	cfg := oauth2.Config{
		ClientID:    deviceFlowClientID,
		Endpoint:    endpoint,
		Scopes:      []string{"repo"},
		RedirectURL: "http://127.0.0.1/callback",
	}

	resp, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return fmt.Errorf("start device authorization: %w", err)
	}

	fmt.Fprintf(out, "First, visit %s\n", resp.VerificationURI)
	fmt.Fprintf(out, "Then enter this code: %s\n", resp.UserCode)
	if err := browser.OpenURL(resp.VerificationURI); err != nil {
		fmt.Fprintln(out, "(could not open a browser automatically; visit the URL above)")
	}

	token, err := cfg.DeviceAccessToken(ctx, resp,
		oauth2.SetAuthURLParam("grant_type", "urn:ietf:params:oauth:grant-type:device_code"))
	if err != nil {
		return fmt.Errorf("wait for device authorization: %w", err)
	}

	return saveToken(host, strings.TrimSpace(token.AccessToken))
}

// CheckAuth verifies the stored token is accepted by GitHub's API.
func (r *Repository) CheckAuth(ctx context.Context) error {
	return checkViewer(ctx, r.client)
}

// CheckLogin verifies the token stored for host is accepted by GitHub's
// API, without resolving any particular repository. It's used by the
// auth status command, which has no repository to open yet.
func CheckLogin(ctx context.Context, host string) error {
	token, err := loadToken(host)
	if err != nil {
		return err
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	var client *githubv4.Client
	if host == DefaultHost {
		client = githubv4.NewClient(httpClient)
	} else {
		client = githubv4.NewEnterpriseClient("https://"+host+"/api/graphql", httpClient)
	}
	return checkViewer(ctx, client)
}

func checkViewer(ctx context.Context, client *githubv4.Client) error {
	var q struct {
		Viewer struct {
			Login githubv4.String `graphql:"login"`
		} `graphql:"viewer"`
	}
	if err := client.Query(ctx, &q, nil); err != nil {
		return fmt.Errorf("verify GitHub credentials: %w", err)
	}
	return nil
}
