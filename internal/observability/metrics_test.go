package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/signalsfoundry/sysviz/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewTransportCollector(reg)
	if err != nil {
		t.Fatalf("NewTransportCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/sysviz.v1.SimulatorService/Run"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SimulatorService", "Run", "OK")); got != 1 {
		t.Fatalf("sysviz_rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "sysviz_rpc_request_duration_seconds", map[string]string{
		"service": "SimulatorService",
		"method":  "Run",
	}); count != 1 {
		t.Fatalf("sysviz_rpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewTransportCollector(reg)
	if err != nil {
		t.Fatalf("NewTransportCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/sysviz.v1.SimulatorService/Configure"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SimulatorService", "Configure", "InvalidArgument")); got != 1 {
		t.Fatalf("sysviz_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestObserveHTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewTransportCollector(reg)
	if err != nil {
		t.Fatalf("NewTransportCollector: %v", err)
	}

	collector.ObserveHTTP("/api/sims/:scenario/run", http.MethodPost, http.StatusAccepted, 3*time.Millisecond)
	collector.ObserveHTTP("", http.MethodGet, http.StatusNotFound, time.Millisecond)

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/api/sims/:scenario/run", "POST", "202")); got != 1 {
		t.Fatalf("sysviz_http_requests_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("unmatched", "GET", "404")); got != 1 {
		t.Fatalf("unmatched route counter = %v, want 1", got)
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewTransportCollector(reg)
	if err != nil {
		t.Fatalf("first NewTransportCollector: %v", err)
	}
	second, err := NewTransportCollector(reg)
	if err != nil {
		t.Fatalf("second NewTransportCollector: %v", err)
	}
	if first.RPCRequests != second.RPCRequests {
		t.Fatalf("second registration did not reuse the existing counter")
	}
}

func TestMetricsHandlerExposesSimMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	transport, err := NewTransportCollector(reg)
	if err != nil {
		t.Fatalf("NewTransportCollector: %v", err)
	}
	simMetrics, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	simMetrics.RunStarted(model.ScenarioCaching)
	simMetrics.StepActivated(model.ScenarioCaching, model.LogMiss)
	simMetrics.RunFinished(model.ScenarioCaching, "miss", 6220*time.Millisecond)
	simMetrics.SetCacheHitRate(37.5)
	simMetrics.SetServerCounts(map[model.ServerID]int{model.ServerS2: 4})
	transport.AddStreamClients(2)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	transport.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"sysviz_runs_started_total",
		"sysviz_runs_total",
		"sysviz_steps_total",
		"sysviz_run_duration_seconds",
		"sysviz_cache_hit_rate_percent 37.5",
		`sysviz_lb_server_runs{server="s2"} 4`,
		"sysviz_stream_clients 2",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}

	if count := histogramSampleCount(t, reg, "sysviz_run_duration_seconds", map[string]string{"scenario": "caching"}); count != 1 {
		t.Fatalf("run duration sample_count = %d, want 1", count)
	}
	if got := testutil.ToFloat64(simMetrics.RunsFinished.WithLabelValues("caching", "miss")); got != 1 {
		t.Fatalf("sysviz_runs_total = %v, want 1", got)
	}
}

func TestSimCollectorClampsHitRate(t *testing.T) {
	c, err := NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	c.SetCacheHitRate(140)
	if got := testutil.ToFloat64(c.CacheHitRate); got != 100 {
		t.Fatalf("hit rate = %v, want 100", got)
	}

	var nilCollector *SimCollector
	nilCollector.RunStarted(model.ScenarioCaching)
}

func TestSplitMethod(t *testing.T) {
	cases := map[string][2]string{
		"/sysviz.v1.SimulatorService/Run": {"SimulatorService", "Run"},
		"":                                {"unknown", "unknown"},
		"nomethod":                        {"unknown", "unknown"},
	}
	for in, want := range cases {
		service, method := SplitMethod(in)
		if service != want[0] || method != want[1] {
			t.Fatalf("SplitMethod(%q) = %s/%s, want %s/%s", in, service, method, want[0], want[1])
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
