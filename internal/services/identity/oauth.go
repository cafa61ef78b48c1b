package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
	"github.com/louisbranch/taskflow/internal/platform/id"
	"github.com/louisbranch/taskflow/internal/platform/timeouts"
	"github.com/louisbranch/taskflow/internal/services/identity/storage"
)

const maxUserInfoBytes = 1 << 20

// OAuthProvider is one authorization-code provider.
type OAuthProvider struct {
	Name        string
	Config      *oauth2.Config
	UserInfoURL string
	// HTTPClient is used for the token exchange and userinfo fetch.
	HTTPClient *http.Client
}

// OAuthProfile is the subset of provider userinfo used for account linking.
type OAuthProfile struct {
	Subject string
	Email   string
	Name    string
}

// OAuthResult is the session issued by a completed OAuth redirect.
type OAuthResult struct {
	Session  Session
	ReturnTo string
}

// StartOAuth records a state with a PKCE verifier and returns the provider
// authorization URL.
func (s *Service) StartOAuth(ctx context.Context, providerName string, returnTo string) (string, error) {
	provider, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	state, err := id.NewToken(oauthStateBytes)
	if err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()
	now := s.now().UTC()
	if err := s.store.PutOAuthState(ctx, storage.OAuthState{
		State:        state,
		Provider:     provider.Name,
		CodeVerifier: verifier,
		ReturnTo:     sanitizeReturnTo(returnTo),
		CreatedAt:    now,
		ExpiresAt:    now.Add(defaultOAuthTTL),
	}); err != nil {
		return "", apperrors.Wrap(apperrors.CodeUnavailable, "store oauth state", err)
	}
	return provider.Config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier)), nil
}

// CompleteOAuth validates state, exchanges code, and links or creates the
// account for the provider profile.
func (s *Service) CompleteOAuth(ctx context.Context, providerName string, code string, state string) (OAuthResult, error) {
	provider, err := s.provider(providerName)
	if err != nil {
		return OAuthResult{}, err
	}
	record, err := s.store.ConsumeOAuthState(ctx, state, s.now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return OAuthResult{}, apperrors.New(apperrors.CodeOAuthStateInvalid, "oauth state is invalid or expired")
		}
		return OAuthResult{}, apperrors.Wrap(apperrors.CodeUnavailable, "consume oauth state", err)
	}
	if record.Provider != provider.Name {
		return OAuthResult{}, apperrors.New(apperrors.CodeOAuthStateInvalid, "oauth state provider mismatch")
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, timeouts.OAuthExchange)
	defer cancel()
	if provider.HTTPClient != nil {
		exchangeCtx = context.WithValue(exchangeCtx, oauth2.HTTPClient, provider.HTTPClient)
	}
	token, err := provider.Config.Exchange(exchangeCtx, strings.TrimSpace(code), oauth2.VerifierOption(record.CodeVerifier))
	if err != nil {
		return OAuthResult{}, apperrors.Wrap(apperrors.CodeOAuthExchangeFailed, "exchange authorization code", err)
	}
	profile, err := fetchProfile(exchangeCtx, provider, token)
	if err != nil {
		return OAuthResult{}, apperrors.Wrap(apperrors.CodeOAuthExchangeFailed, "fetch provider profile", err)
	}

	account, err := s.linkAccount(ctx, provider.Name, profile)
	if err != nil {
		return OAuthResult{}, err
	}
	session, err := s.issue(ctx, accountIdentity(account))
	if err != nil {
		return OAuthResult{}, err
	}
	return OAuthResult{Session: session, ReturnTo: record.ReturnTo}, nil
}

// linkAccount resolves the account for a provider profile: by existing link,
// then by email, else a new password-less account.
func (s *Service) linkAccount(ctx context.Context, providerName string, profile OAuthProfile) (storage.Account, error) {
	link, err := s.store.GetProviderLink(ctx, providerName, profile.Subject)
	switch {
	case err == nil:
		account, err := s.store.GetAccount(ctx, link.AccountID)
		if err != nil {
			return storage.Account{}, apperrors.Wrap(apperrors.CodeUnavailable, "load linked account", err)
		}
		return account, nil
	case !errors.Is(err, storage.ErrNotFound):
		return storage.Account{}, apperrors.Wrap(apperrors.CodeUnavailable, "load provider link", err)
	}

	email, err := ValidateEmail(profile.Email)
	if err != nil {
		return storage.Account{}, apperrors.Wrap(apperrors.CodeOAuthExchangeFailed, "provider returned no usable email", err)
	}
	account, err := s.store.GetAccountByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		accountID, idErr := s.newID()
		if idErr != nil {
			return storage.Account{}, fmt.Errorf("generate account id: %w", idErr)
		}
		now := s.now().UTC()
		account = storage.Account{
			ID:          accountID,
			Email:       email,
			DisplayName: strings.TrimSpace(profile.Name),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err = s.store.CreateAccount(ctx, account)
	}
	if err != nil {
		return storage.Account{}, apperrors.Wrap(apperrors.CodeUnavailable, "resolve oauth account", err)
	}
	if err := s.store.PutProviderLink(ctx, storage.ProviderLink{
		Provider:  providerName,
		Subject:   profile.Subject,
		AccountID: account.ID,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return storage.Account{}, apperrors.Wrap(apperrors.CodeUnavailable, "store provider link", err)
	}
	return account, nil
}

func (s *Service) provider(name string) (*OAuthProvider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	provider, ok := s.providers[name]
	if !ok || provider.Config == nil {
		return nil, apperrors.WithMetadata(apperrors.CodeOAuthProviderUnknown, "oauth provider is not configured", map[string]string{"Provider": name})
	}
	return provider, nil
}

func fetchProfile(ctx context.Context, provider *OAuthProvider, token *oauth2.Token) (OAuthProfile, error) {
	if strings.TrimSpace(provider.UserInfoURL) == "" {
		return OAuthProfile{}, errors.New("userinfo url is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.UserInfoURL, nil)
	if err != nil {
		return OAuthProfile{}, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := provider.Config.Client(ctx, token).Do(req)
	if err != nil {
		return OAuthProfile{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return OAuthProfile{}, fmt.Errorf("userinfo status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&payload); err != nil {
		return OAuthProfile{}, fmt.Errorf("decode userinfo: %w", err)
	}
	profile := OAuthProfile{
		Subject: firstString(payload, "sub", "id"),
		Email:   firstString(payload, "email"),
		Name:    firstString(payload, "name", "login"),
	}
	if profile.Subject == "" {
		return OAuthProfile{}, errors.New("userinfo is missing a subject")
	}
	return profile, nil
}

// firstString returns the first non-empty value among keys. Numeric ids are
// formatted without exponent.
func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		switch value := payload[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(value, 'f', -1, 64)
		}
	}
	return ""
}

// sanitizeReturnTo keeps only same-origin absolute paths.
func sanitizeReturnTo(value string) string {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "/") || strings.HasPrefix(value, "//") {
		return ""
	}
	return value
}
