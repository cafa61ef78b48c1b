package sharedlistv1

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const (
	// AuthorizationHeader carries "Bearer <session token>".
	AuthorizationHeader = "authorization"
	// ActorEmailHeader names the account a trusted service acts as.
	ActorEmailHeader = "x-taskflow-actor-email"
	// ServiceTokenHeader carries the shared service secret that makes
	// ActorEmailHeader trusted.
	ServiceTokenHeader = "x-taskflow-service-token"
	// LocaleHeader selects the language of error messages.
	LocaleHeader = "accept-language"
)

// WithSessionToken returns a context that authenticates calls with a session
// token.
func WithSessionToken(ctx context.Context, token string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, AuthorizationHeader, "Bearer "+token)
}

// WithServiceActor returns a context that acts as email on behalf of a
// trusted service.
func WithServiceActor(ctx context.Context, serviceToken string, email string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	serviceToken = strings.TrimSpace(serviceToken)
	email = strings.TrimSpace(email)
	if serviceToken == "" || email == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, ServiceTokenHeader, serviceToken, ActorEmailHeader, email)
}

// ServiceActorUnaryClientInterceptor appends service actor metadata to unary calls.
func ServiceActorUnaryClientInterceptor(serviceToken string, email string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req any,
		reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(WithServiceActor(ctx, serviceToken, email), method, req, reply, cc, opts...)
	}
}

// ServiceActorStreamClientInterceptor appends service actor metadata to stream calls.
func ServiceActorStreamClientInterceptor(serviceToken string, email string) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		return streamer(WithServiceActor(ctx, serviceToken, email), desc, cc, method, opts...)
	}
}

// IncomingValue returns the first value of key in the incoming metadata.
func IncomingValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
