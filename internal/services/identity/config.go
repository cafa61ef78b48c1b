package identity

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/louisbranch/taskflow/internal/platform/config"
)

// Config holds identity settings read from the environment.
type Config struct {
	SessionSecret string        `env:"TASKFLOW_SESSION_SECRET"`
	SessionIssuer string        `env:"TASKFLOW_SESSION_ISSUER" envDefault:"taskflow"`
	SessionTTL    time.Duration `env:"TASKFLOW_SESSION_TTL"    envDefault:"720h"`

	PasswordResetURL string `env:"TASKFLOW_PASSWORD_RESET_URL" envDefault:"http://localhost:8080/reset-password"`
	SMTPAddr         string `env:"TASKFLOW_SMTP_ADDR"`
	SMTPFrom         string `env:"TASKFLOW_SMTP_FROM"`
	SMTPUsername     string `env:"TASKFLOW_SMTP_USERNAME"`
	SMTPPassword     string `env:"TASKFLOW_SMTP_PASSWORD"`

	OAuthRedirectBase  string `env:"TASKFLOW_OAUTH_REDIRECT_BASE" envDefault:"http://localhost:8080"`
	GoogleClientID     string `env:"TASKFLOW_OAUTH_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"TASKFLOW_OAUTH_GOOGLE_CLIENT_SECRET"`
	GitHubClientID     string `env:"TASKFLOW_OAUTH_GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"TASKFLOW_OAUTH_GITHUB_CLIENT_SECRET"`
}

// LoadConfigFromEnv reads identity configuration and requires a session
// secret.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := config.RequireValues(map[string]string{
		"TASKFLOW_SESSION_SECRET": cfg.SessionSecret,
	}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SessionKey decodes the session secret. Hex values (as printed by
// session-key) are decoded; anything else is used as raw bytes.
func (c Config) SessionKey() ([]byte, error) {
	secret := strings.TrimSpace(c.SessionSecret)
	if decoded, err := hex.DecodeString(secret); err == nil && len(decoded) >= MinSessionKeyBytes {
		return decoded, nil
	}
	if len(secret) < MinSessionKeyBytes {
		return nil, fmt.Errorf("TASKFLOW_SESSION_SECRET must be at least %d bytes", MinSessionKeyBytes)
	}
	return []byte(secret), nil
}

// Signer builds the session signer described by c.
func (c Config) Signer() (*SessionSigner, error) {
	key, err := c.SessionKey()
	if err != nil {
		return nil, err
	}
	return NewSessionSigner(key, c.SessionIssuer, c.SessionTTL)
}

// Mailer returns an SMTP mailer when a relay is configured, otherwise a log
// mailer.
func (c Config) Mailer() Mailer {
	if strings.TrimSpace(c.SMTPAddr) == "" {
		return LogMailer{}
	}
	return SMTPMailer{
		Addr:     c.SMTPAddr,
		From:     c.SMTPFrom,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
	}
}

// Providers returns the OAuth providers with client credentials present.
func (c Config) Providers() []*OAuthProvider {
	base := strings.TrimRight(strings.TrimSpace(c.OAuthRedirectBase), "/")
	var providers []*OAuthProvider
	if c.GoogleClientID != "" && c.GoogleClientSecret != "" {
		providers = append(providers, &OAuthProvider{
			Name: "google",
			Config: &oauth2.Config{
				ClientID:     c.GoogleClientID,
				ClientSecret: c.GoogleClientSecret,
				Endpoint:     endpoints.Google,
				RedirectURL:  base + "/api/auth/oauth/google/callback",
				Scopes:       []string{"openid", "email", "profile"},
			},
			UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
			HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		})
	}
	if c.GitHubClientID != "" && c.GitHubClientSecret != "" {
		providers = append(providers, &OAuthProvider{
			Name: "github",
			Config: &oauth2.Config{
				ClientID:     c.GitHubClientID,
				ClientSecret: c.GitHubClientSecret,
				Endpoint:     endpoints.GitHub,
				RedirectURL:  base + "/api/auth/oauth/github/callback",
				Scopes:       []string{"read:user", "user:email"},
			},
			UserInfoURL: "https://api.github.com/user",
			HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		})
	}
	return providers
}
