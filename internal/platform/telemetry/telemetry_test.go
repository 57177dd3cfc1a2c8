package telemetry

import (
	"context"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{SampleRatio: 3}
	cfg.applyDefaults()
	if cfg.ServiceName != "dayview-server" || cfg.OTLPEndpoint != "localhost:4317" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.SampleRatio != 1 {
		t.Errorf("expected ratio clamped to 1, got %g", cfg.SampleRatio)
	}
}

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown returned %v", err)
	}

	// propagation is installed even without an exporter
	header := http.Header{}
	header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(header))
	sc := trace.SpanContextFromContext(ctx)
	if sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected trace id to be extracted, got %s", sc.TraceID())
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  sdktrace.SamplingDecision
	}{
		{1, sdktrace.RecordAndSample},
		{0, sdktrace.Drop},
	}
	for _, tt := range tests {
		res := Sampler(tt.ratio).ShouldSample(sdktrace.SamplingParameters{
			ParentContext: context.Background(),
			TraceID:       trace.TraceID{1},
			Name:          "scheduling.DayView",
		})
		if res.Decision != tt.want {
			t.Errorf("ratio %g: expected %v, got %v", tt.ratio, tt.want, res.Decision)
		}
	}
}

func TestNewProvider_RecordsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	cfg := Config{ServiceName: "dayview-test", SampleRatio: 1}
	cfg.applyDefaults()

	tp, err := newProvider(context.Background(), cfg, sdktrace.WithSyncer(exp))
	if err != nil {
		t.Fatalf("newProvider() error: %v", err)
	}
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "scheduling.DayView")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "scheduling.DayView" {
		t.Fatalf("expected one DayView span, got %+v", spans)
	}
	found := false
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == semconv.ServiceNameKey && kv.Value.AsString() == "dayview-test" {
			found = true
		}
	}
	if !found {
		t.Error("expected service.name on the span resource")
	}
}
