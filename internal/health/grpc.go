package health

import (
	"context"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
)

// ServiceName is the service the node reports under in the standard gRPC
// health protocol. The empty service name mirrors it.
const ServiceName = "social.v1.Node"

// GatewayPath is where GatewayHandler answers health checks.
const GatewayPath = "/grpc/healthz"

// NewGRPCServer returns a gRPC server exposing the standard health service
// and reflection. Serving status follows the journal audits: SERVING while
// the checker reports ok, NOT_SERVING once it reports degraded.
func (h *HealthChecker) NewGRPCServer(logger *zap.Logger) *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))

	hs := grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	h.mu.Lock()
	h.grpcHealth = hs
	st := h.last.Status
	h.mu.Unlock()
	setServing(hs, st == "ok")
	return srv
}

func setServing(hs *grpchealth.Server, ok bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if ok {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus("", st)
	hs.SetServingStatus(ServiceName, st)
}

// GatewayHandler exposes the gRPC health service as JSON over HTTP at
// GatewayPath: 200 with {"status":"SERVING"}, 503 otherwise. The optional
// service query parameter selects the service to check.
func GatewayHandler(conn grpc.ClientConnInterface) http.Handler {
	return runtime.NewServeMux(
		runtime.WithMarshalerOption(runtime.MIMEWildcard, &runtime.JSONPb{
			MarshalOptions: protojson.MarshalOptions{
				UseProtoNames:   true,
				EmitUnpopulated: true,
			},
		}),
		runtime.WithHealthEndpointAt(grpc_health_v1.NewHealthClient(conn), GatewayPath),
	)
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
