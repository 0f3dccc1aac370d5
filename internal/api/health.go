package api

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/mde-formula-finder/internal/optimizer"
)

// OptimizerService is the health service name that tracks run state.
const OptimizerService = "fuelfit.Optimizer"

func servingStatus(s optimizer.Status) healthpb.HealthCheckResponse_ServingStatus {
	if s == optimizer.StatusRunning {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// NewHealthServer returns a health server whose OptimizerService status is
// SERVING while ctrl has a run active and NOT_SERVING otherwise. The
// overall ("") status is always SERVING. It takes over ctrl's
// OnStatusChange hook.
func NewHealthServer(ctrl *optimizer.Controller) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(OptimizerService, servingStatus(ctrl.Status().Status))
	ctrl.OnStatusChange(func(s optimizer.Status) {
		hs.SetServingStatus(OptimizerService, servingStatus(s))
	})
	return hs
}

// ServeGRPC serves hs on lis until ctx is cancelled, then stops
// gracefully.
func ServeGRPC(ctx context.Context, lis net.Listener, hs *health.Server) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()

	logf("gRPC health listening on %s", lis.Addr())
	err := srv.Serve(lis)
	if ctx.Err() != nil {
		<-stopped
		return nil
	}
	return err
}
