package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewMetricProvider_PrometheusHandler(t *testing.T) {
	prev := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	p, err := NewMetricProvider(context.Background(),
		WithServiceName("txengine-test"),
		WithProviderConfig(NewPrometheusConfig()),
	)
	if err != nil {
		t.Fatalf("NewMetricProvider: %v", err)
	}
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	counter, err := otel.Meter("metrics-test").Int64Counter("demo_calls")
	if err != nil {
		t.Fatalf("Int64Counter: %v", err)
	}
	counter.Add(context.Background(), 3)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "demo_calls_total") {
		t.Fatalf("counter missing from scrape:\n%s", body)
	}
}

func TestNewMetricProvider_UnknownProvider(t *testing.T) {
	_, err := NewMetricProvider(context.Background(),
		WithProviderConfig(ProviderCfg{Provider: "statsd"}),
	)
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
