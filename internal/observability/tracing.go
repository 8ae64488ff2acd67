package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/sinr-tracker/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracerName is the instrumentation scope used for simulator spans.
const TracerName = "github.com/signalsfoundry/sinr-tracker"

// TracingConfig governs how simulator tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string // used when Exporter == otlp
	SampleRatio float64

	// Scenario and ClockMode describe the simulation run and are attached to
	// the trace resource when set.
	Scenario  string
	ClockMode string
	// Output receives stdout-exporter spans; nil means os.Stdout.
	Output io.Writer
}

// Span attribute keys for simulation runs.
const (
	AttrScenario      = attribute.Key("sim.scenario")
	AttrRunID         = attribute.Key("sim.run_id")
	AttrReceivers     = attribute.Key("sim.receivers")
	AttrEvents        = attribute.Key("sim.events")
	AttrEventsApplied = attribute.Key("sim.events_applied")
	AttrSimSeconds    = attribute.Key("sim.elapsed_seconds")
	AttrClockMode     = attribute.Key("sim.clock_mode")
)

// TracingConfigFromEnv pulls tracing configuration from environment variables,
// using sensible defaults when unset.
func TracingConfigFromEnv() TracingConfig {
	enabled := strings.EqualFold(os.Getenv("SINRSIM_TRACING_ENABLED"), "true")
	exporter := strings.ToLower(os.Getenv("SINRSIM_TRACING_EXPORTER"))
	if exporter == "" {
		exporter = "stdout"
	}
	service := os.Getenv("SINRSIM_TRACING_SERVICE_NAME")
	if service == "" {
		service = "sinrsim"
	}

	ratio := 1.0
	if rawRatio := os.Getenv("SINRSIM_TRACING_SAMPLE_RATIO"); rawRatio != "" {
		if parsed, err := strconv.ParseFloat(rawRatio, 64); err == nil && parsed >= 0 && parsed <= 1 {
			ratio = parsed
		}
	}

	return TracingConfig{
		Enabled:     enabled,
		ServiceName: service,
		Exporter:    exporter,
		Endpoint:    os.Getenv("SINRSIM_OTLP_ENDPOINT"),
		SampleRatio: ratio,
	}
}

// InitTracing wires a tracer provider, exporter, propagators, and sampler based
// on the provided configuration. It returns a shutdown function to flush spans.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Info(ctx, "tracing disabled; using noop tracer provider")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := exporterFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(simulatorResource(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("scenario", cfg.Scenario),
		logging.String("service_name", cfg.ServiceName),
		logging.String("sampler", fmt.Sprintf("parentbased_traceidratio_%0.2f", cfg.SampleRatio)),
	)

	return tp.Shutdown, nil
}

func simulatorResource(cfg TracingConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "sinr-tracker"),
		attribute.String("sim.engine", "discrete-event"),
	}
	if cfg.Scenario != "" {
		attrs = append(attrs, AttrScenario.String(cfg.Scenario))
	}
	if cfg.ClockMode != "" {
		attrs = append(attrs, AttrClockMode.String(cfg.ClockMode))
	}
	return attrs
}

func exporterFromConfig(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		return stdouttrace.New(
			stdouttrace.WithWriter(out),
			stdouttrace.WithPrettyPrint(),
			stdouttrace.WithoutTimestamps(),
		)
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		return otlptrace.New(ctx, client)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// Tracer returns the simulator tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartRunSpan opens the span covering one scenario run.
func StartRunSpan(ctx context.Context, scenario, runID string, receivers, events int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "scenario.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrScenario.String(scenario),
			AttrRunID.String(runID),
			AttrReceivers.Int(receivers),
			AttrEvents.Int(events),
		),
	)
}

// EndRunSpan records the outcome of a run on span and ends it.
func EndRunSpan(span trace.Span, applied int, simElapsed time.Duration, err error) {
	span.SetAttributes(
		AttrEventsApplied.Int(applied),
		AttrSimSeconds.Float64(simElapsed.Seconds()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ShutdownWithTimeout invokes the provided shutdown function with a bounded
// timeout, swallowing errors in the shutdown path.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.String("error", err.Error()))
	}
}
