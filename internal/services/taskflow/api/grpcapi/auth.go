package grpcapi

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
	"github.com/louisbranch/taskflow/internal/platform/errors/i18n"
	"github.com/louisbranch/taskflow/internal/services/identity"
	"github.com/louisbranch/taskflow/internal/services/taskflow/api/grpcapi/sharedlistv1"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

// ServiceActorIDPrefix marks identities asserted by a trusted service.
const ServiceActorIDPrefix = "service:"

// Authenticator resolves session tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (identity.Identity, error)
}

// AuthConfig configures caller resolution.
type AuthConfig struct {
	Sessions Authenticator
	// ServiceToken enables the actor-email header for callers presenting it.
	// Empty disables service actors.
	ServiceToken string
}

// UnaryAuthInterceptor attaches the caller identity to every unary call
// except health checks.
func UnaryAuthInterceptor(cfg AuthConfig) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return handler(ctx, req)
		}
		actor, err := cfg.resolve(ctx)
		if err != nil {
			return nil, apperrors.HandleError(err, localeFrom(ctx))
		}
		return handler(identity.WithIdentity(ctx, actor), req)
	}
}

// StreamAuthInterceptor attaches the caller identity to every stream except
// health watches.
func StreamAuthInterceptor(cfg AuthConfig) grpc.StreamServerInterceptor {
	return func(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return handler(srv, stream)
		}
		ctx := stream.Context()
		actor, err := cfg.resolve(ctx)
		if err != nil {
			return apperrors.HandleError(err, localeFrom(ctx))
		}
		return handler(srv, &identityStream{ServerStream: stream, ctx: identity.WithIdentity(ctx, actor)})
	}
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context {
	return s.ctx
}

func (cfg AuthConfig) resolve(ctx context.Context) (identity.Identity, error) {
	if presented := sharedlistv1.IncomingValue(ctx, sharedlistv1.ServiceTokenHeader); presented != "" {
		expected := strings.TrimSpace(cfg.ServiceToken)
		if expected == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			return identity.Identity{}, apperrors.New(apperrors.CodeAuthSessionInvalid, "service token rejected")
		}
		email, err := identity.ValidateEmail(sharedlistv1.IncomingValue(ctx, sharedlistv1.ActorEmailHeader))
		if err != nil {
			return identity.Identity{}, apperrors.New(apperrors.CodeAuthSessionInvalid, "service actor email is invalid")
		}
		return identity.Identity{
			ID:          ServiceActorIDPrefix + email,
			Kind:        identity.KindAccount,
			Email:       email,
			DisplayName: email,
		}, nil
	}

	header := sharedlistv1.IncomingValue(ctx, sharedlistv1.AuthorizationHeader)
	token, ok := bearerToken(header)
	if !ok || cfg.Sessions == nil {
		return identity.Identity{}, apperrors.New(apperrors.CodeAuthSessionInvalid, "session token is required")
	}
	return cfg.Sessions.Authenticate(ctx, token)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func localeFrom(ctx context.Context) string {
	return i18n.ForAcceptLanguage(sharedlistv1.IncomingValue(ctx, sharedlistv1.LocaleHeader)).Locale()
}
