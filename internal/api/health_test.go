package api

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
	"github.com/banshee-data/mde-formula-finder/internal/optimizer"
	"github.com/banshee-data/mde-formula-finder/internal/testutil"
)

func checkStatus(t *testing.T, check func(context.Context, *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error), service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthServerTracksRunState(t *testing.T) {
	t.Parallel()

	ctrl := optimizer.NewController(fuelmodel.DefaultCylinderModel(), nil)
	require.NoError(t, ctrl.SetData(testutil.FuelGrid(testutil.TruthParams)))
	hs := NewHealthServer(ctrl)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, hs.Check, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, hs.Check, OptimizerService))

	require.NoError(t, ctrl.Start(context.Background(), optimizer.Request{
		PopulationSize: 8, F: 0.4, CR: 0.5, StepInterval: "1h",
	}))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, hs.Check, OptimizerService))

	ctrl.Stop()
	testutil.WaitClosed(t, ctrl.Done(), 10*time.Second)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, hs.Check, OptimizerService))

	// A run that ends on its own also flips the status back.
	require.NoError(t, ctrl.Start(context.Background(), optimizer.Request{
		PopulationSize: 8, F: 0.4, CR: 0.5, MaxGenerations: 5,
	}))
	testutil.WaitClosed(t, ctrl.Done(), 10*time.Second)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, hs.Check, OptimizerService))
}

func TestServeGRPC(t *testing.T) {
	t.Parallel()

	ctrl := optimizer.NewController(fuelmodel.DefaultCylinderModel(), nil)
	hs := NewHealthServer(ctrl)
	lis := bufconn.Listen(1 << 20)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ServeGRPC(ctx, lis, hs) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	rpcCtx, rpcCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer rpcCancel()
	resp, err := client.Check(rpcCtx, &healthpb.HealthCheckRequest{Service: OptimizerService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	resp, err = client.Check(rpcCtx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeGRPC did not return after cancel")
	}
}
