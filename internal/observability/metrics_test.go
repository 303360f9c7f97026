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
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewNBICollector(reg)
	if err != nil {
		t.Fatalf("NewNBICollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/allocation.v1.AllocationService/ValidateCapacity"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("AllocationService", "ValidateCapacity", "OK")); got != 1 {
		t.Fatalf("allocation_rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "allocation_rpc_duration_seconds", map[string]string{
		"service": "AllocationService",
		"method":  "ValidateCapacity",
	}); count != 1 {
		t.Fatalf("allocation_rpc_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewNBICollector(reg)
	if err != nil {
		t.Fatalf("NewNBICollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/allocation.v1.AllocationService/GetOpportunityReport"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("AllocationService", "GetOpportunityReport", "NotFound")); got != 1 {
		t.Fatalf("allocation_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestNilCollectorInterceptorPassesThrough(t *testing.T) {
	var collector *NBICollector
	resp, err := collector.UnaryServerInterceptor()(context.Background(), nil, nil, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	collector.SetInventoryCounts(1, 2, 3)
}

func TestMetricsHandlerExposesInventoryGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewNBICollector(reg)
	if err != nil {
		t.Fatalf("NewNBICollector: %v", err)
	}
	collector.SetInventoryCounts(4, 2, 3)
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, line := range []string{
		"allocation_inventory_sites 4",
		"allocation_inventory_satellites 2",
		"allocation_inventory_opportunities 3",
		"allocation_rpc_requests_total",
		"allocation_rpc_duration_seconds",
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected %q in /metrics output:\n%s", line, body)
		}
	}
}

func TestCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewNBICollector(reg)
	if err != nil {
		t.Fatalf("first NewNBICollector: %v", err)
	}
	second, err := NewNBICollector(reg)
	if err != nil {
		t.Fatalf("second NewNBICollector: %v", err)
	}
	second.SetInventoryCounts(1, 1, 7)
	if got := testutil.ToFloat64(first.InventoryOpportunities); got != 7 {
		t.Fatalf("shared gauge = %v, want 7", got)
	}
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		in          string
		service, mt string
	}{
		{"/allocation.v1.AllocationService/BatchValidate", "AllocationService", "BatchValidate"},
		{"AllocationService/AnalyzeHealth", "AllocationService", "AnalyzeHealth"},
		{"", "unknown", "unknown"},
		{"/nomethod", "unknown", "unknown"},
	}
	for _, tc := range tests {
		s, m := SplitMethod(tc.in)
		if s != tc.service || m != tc.mt {
			t.Fatalf("SplitMethod(%q) = %s/%s, want %s/%s", tc.in, s, m, tc.service, tc.mt)
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
