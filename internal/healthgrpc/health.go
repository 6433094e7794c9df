// Package healthgrpc exposes isReady() as a genuine gRPC health check
// alongside the HTTP JSON equivalent in internal/rpcapi, using the
// pre-compiled grpc/health and grpc/health/grpc_health_v1 subpackages that
// ship with google.golang.org/grpc and require no protobuf code
// generation (see DESIGN.md for why this replaces the teacher's
// grpc-gateway approach).
package healthgrpc

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Register attaches a health.Server to server, initially reporting NOT_SERVING
// for the empty service name (whole-server status). Call SetServing once
// startup dependencies (storage, queue store) have completed their
// handshake.
func Register(server *grpc.Server) *health.Server {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, h)
	return h
}

// SetServing flips the whole-server health status to SERVING.
func SetServing(h *health.Server) {
	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}
