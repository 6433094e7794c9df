// Package bootstrap wires the scheduler's components into the two runnable
// binaries: the API server (gin HTTP + gRPC health) and the worker (task
// processor + notification consumer).
//
// Grounded on the teacher's internal/bootstrap/server.go dual-server
// graceful-shutdown pattern, rewritten to use golang.org/x/sync/errgroup in
// place of its manual two-channel select (see DESIGN.md).
package bootstrap

import (
	"context"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/aetheric-oss/svc-scheduler/internal/healthgrpc"
	"github.com/aetheric-oss/svc-scheduler/internal/rpcapi"
)

// APIServers bundles the two listeners the API binary runs.
type APIServers struct {
	HTTPAddr string
	GRPCAddr string
	Handler  *rpcapi.Handler
	Log      *zap.Logger
}

// Run starts the HTTP and gRPC health servers concurrently and blocks until
// ctx is cancelled or either server fails, at which point both are shut
// down.
func (s *APIServers) Run(ctx context.Context) error {
	router := gin.New()
	router.Use(gin.Recovery())
	v1 := router.Group("/v1")
	s.Handler.Register(v1)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	httpServer := &http.Server{Addr: s.HTTPAddr, Handler: router}

	grpcServer := grpc.NewServer()
	healthSrv := healthgrpc.Register(grpcServer)

	grpcLis, err := net.Listen("tcp", s.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Log.Info("http server listening", zap.String("addr", s.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.Log.Info("grpc health server listening", zap.String("addr", s.GRPCAddr))
		return grpcServer.Serve(grpcLis)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.Log.Info("shutting down api servers")
		grpcServer.GracefulStop()
		return httpServer.Shutdown(context.Background())
	})

	healthgrpc.SetServing(healthSrv)
	return g.Wait()
}
