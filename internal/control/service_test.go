package control

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/signalsfoundry/sysviz/internal/observability"
	"github.com/signalsfoundry/sysviz/internal/schedule"
	"github.com/signalsfoundry/sysviz/internal/sim"
	"github.com/signalsfoundry/sysviz/model"
)

type harness struct {
	sched    *schedule.FakeEventScheduler
	registry *sim.Registry
	conn     *grpc.ClientConn
	client   *Client
	reg      *prometheus.Registry
}

func newHarness(t *testing.T, mode sim.RendererMode) *harness {
	t.Helper()
	sched := schedule.NewFakeEventScheduler(time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC))
	registry := sim.NewRegistry(sched, sim.WithRenderer(mode))

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewTransportCollector(reg)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	server, _ := NewServer(registry, nil, metrics)
	go func() { _ = server.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
		registry.Close()
	})
	return &harness{sched: sched, registry: registry, conn: conn, client: NewClient(conn), reg: reg}
}

func TestRunAndCompleteOverGRPC(t *testing.T) {
	h := newHarness(t, sim.RendererExternal)
	ctx := context.Background()

	resp, err := h.client.Run(ctx, "caching")
	require.NoError(t, err)
	require.True(t, resp.Fields["accepted"].GetBoolValue())
	snap := resp.Fields["snapshot"].GetStructValue()
	require.True(t, snap.Fields["running"].GetBoolValue())
	require.Equal(t, sim.CaptionStarting, snap.Fields["caption"].GetStringValue())

	resp, err = h.client.Run(ctx, "caching")
	require.NoError(t, err)
	require.False(t, resp.Fields["accepted"].GetBoolValue())

	h.sched.AdvanceBy(sim.LeadIn)
	resp, err = h.client.CompleteStep(ctx, "caching")
	require.NoError(t, err)
	require.True(t, resp.Fields["accepted"].GetBoolValue())
	require.EqualValues(t, 1, resp.Fields["snapshot"].GetStructValue().Fields["doneCount"].GetNumberValue())

	resp, err = h.client.Reset(ctx, "caching")
	require.NoError(t, err)
	require.False(t, resp.Fields["running"].GetBoolValue())
}

func TestConfigureOverGRPC(t *testing.T) {
	h := newHarness(t, sim.RendererInternal)
	ctx := context.Background()

	resp, err := h.client.Configure(ctx, "lb", map[string]interface{}{"algorithm": "least-connections", "speedMs": 300})
	require.NoError(t, err)
	cfg := resp.Fields["lbConfig"].GetStructValue()
	require.Equal(t, string(model.LeastConnections), cfg.Fields["algorithm"].GetStringValue())

	_, err = h.client.Configure(ctx, "lb", map[string]interface{}{"algorithm": "random"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.Run(ctx, "lb")
	require.NoError(t, err)
	_, err = h.client.Configure(ctx, "lb", map[string]interface{}{"speedMs": 800})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestErrorsOverGRPC(t *testing.T) {
	h := newHarness(t, sim.RendererInternal)
	ctx := context.Background()

	_, err := h.client.GetSnapshot(ctx, "queue")
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = h.client.GetSnapshot(ctx, "")
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.ToggleServer(ctx, "s9")
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	resp, err := h.client.ToggleServer(ctx, "s1")
	require.NoError(t, err)
	require.False(t, resp.Fields["healthy"].GetBoolValue())
	require.False(t, h.registry.LoadBalancer().Health()[model.ServerS1])
}

func TestRequestIDEchoed(t *testing.T) {
	h := newHarness(t, sim.RendererInternal)
	ctx := metadata.AppendToOutgoingContext(context.Background(), requestIDMetadataKey, "req-42")

	var header metadata.MD
	_, err := h.client.GetSnapshot(ctx, "caching", grpc.Header(&header))
	require.NoError(t, err)
	require.Equal(t, []string{"req-42"}, header.Get(requestIDMetadataKey))
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, sim.RendererInternal)
	ctx := context.Background()

	resp, err := healthpb.NewHealthClient(h.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	_, err = h.client.GetSnapshot(ctx, "caching")
	require.NoError(t, err)

	families, err := h.reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() != "sysviz_rpc_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "method" && l.GetValue() == "GetSnapshot" {
					found = true
				}
			}
		}
	}
	require.True(t, found, "GetSnapshot not counted")
}
