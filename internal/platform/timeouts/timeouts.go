// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second

// StoreCall caps a single realtime store or local store operation issued from
// a transport handler.
const StoreCall = 5 * time.Second

// Generate caps one generative-text request.
const Generate = 20 * time.Second

// OAuthExchange caps the provider token exchange and userinfo fetch.
const OAuthExchange = 10 * time.Second

// GRPCDial caps dialing an internal gRPC server and waiting for its health
// check.
const GRPCDial = 10 * time.Second

// GRPCCall caps one internal gRPC call made on behalf of a tool.
const GRPCCall = 5 * time.Second
