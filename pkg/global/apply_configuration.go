package global

import (
	"context"
	"net/http"
	// The pprof package does not provide a function for registering
	// its endpoints against an arbitrary mux. Load it to force
	// registration against the default mux, so we can forward
	// traffic to that mux instead.
	_ "net/http/pprof"
	"os"
	"sync/atomic"

	"github.com/buildbarn/bb-splitter/pkg/clock"
	"github.com/buildbarn/bb-splitter/pkg/program"
	"github.com/buildbarn/bb-splitter/pkg/util"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Configuration of options that apply to the process as a whole,
// regardless of which command is executed.
type Configuration struct {
	Logging               *LoggingConfiguration               `json:"logging"`
	Tracing               *TracingConfiguration               `json:"tracing"`
	DiagnosticsHTTPServer *DiagnosticsHTTPServerConfiguration `json:"diagnosticsHttpServer"`
}

// LoggingConfiguration controls the verbosity and format of log
// messages written to stderr.
type LoggingConfiguration struct {
	// Minimum level of messages to log, such as "debug" or "warn".
	// Defaults to "info".
	Level string `json:"level"`
	// Either "text" (default) or "json".
	Format string `json:"format"`
}

// TracingConfiguration enables OpenTelemetry tracing. Finished spans
// are written to the log.
type TracingConfiguration struct {
	Sampler *SamplerConfiguration `json:"sampler"`
}

// SamplerConfiguration decides which traces are sampled. Exactly one
// of the fields must be set. If no sampler is configured, all traces
// are sampled.
type SamplerConfiguration struct {
	Always       *struct{}                              `json:"always"`
	Never        *struct{}                              `json:"never"`
	TraceIDRatio *float64                               `json:"traceIdRatio"`
	ConstantRate *ConstantRateTraceSamplerConfiguration `json:"constantRate"`
}

// ConstantRateTraceSamplerConfiguration contains the parameters of
// NewConstantRateTraceSampler().
type ConstantRateTraceSamplerConfiguration struct {
	TokensPerSecond int64 `json:"tokensPerSecond"`
	MaximumTokens   int64 `json:"maximumTokens"`
	TokensPerSample int64 `json:"tokensPerSample"`
}

// DiagnosticsHTTPServerConfiguration contains the options of a web
// server that exposes metrics and health checks.
type DiagnosticsHTTPServerConfiguration struct {
	ListenAddress    string `json:"listenAddress"`
	EnablePrometheus bool   `json:"enablePrometheus"`
	EnablePprof      bool   `json:"enablePprof"`
}

const (
	stateNotServing int32 = iota
	stateServing
)

// DiagnosticsServer is returned by ApplyConfiguration. It can be used by
// the caller to report whether the application has started up
// successfully.
type DiagnosticsServer struct {
	config *DiagnosticsHTTPServerConfiguration
	state  atomic.Int32
}

// NewDiagnosticsServer creates a DiagnosticsServer that serves
// according to a configuration. A nil configuration yields a server
// that does not listen for connections.
func NewDiagnosticsServer(config *DiagnosticsHTTPServerConfiguration) *DiagnosticsServer {
	return &DiagnosticsServer{config: config}
}

// Handler returns the HTTP handler that serves the endpoints of the
// diagnostics web server.
func (ds *DiagnosticsServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/-/healthy", func(http.ResponseWriter, *http.Request) {})
	router.HandleFunc("/-/ready", func(w http.ResponseWriter, _ *http.Request) {
		if ds.state.Load() == stateServing {
			w.WriteHeader(http.StatusOK)
		} else {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
	if ds.config != nil {
		if ds.config.EnablePrometheus {
			router.Handle("/metrics", promhttp.Handler())
		}
		if ds.config.EnablePprof {
			router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
		}
	}
	return router
}

// Serve the diagnostics web server until the context is canceled. The
// signature of this method is compatible with program.Routine, so
// that it can be launched as a dependency of the routine performing
// the actual work.
func (ds *DiagnosticsServer) Serve(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
	if ds.config == nil {
		<-ctx.Done()
		return nil
	}
	server := &http.Server{
		Addr:    ds.config.ListenAddress,
		Handler: ds.Handler(),
	}
	siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
		<-ctx.Done()
		ds.SetNotServing()
		return server.Close()
	})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return util.StatusWrap(err, "Diagnostics HTTP server failed")
	}
	return nil
}

// SetReady updates the health status to report healthy and ready.
func (ds *DiagnosticsServer) SetReady() {
	ds.state.Store(stateServing)
}

// SetNotServing updates the health status to report healthy but not ready.
func (ds *DiagnosticsServer) SetNotServing() {
	ds.state.Store(stateNotServing)
}

// LifecycleState is returned by ApplyConfiguration. It contains the
// process wide facilities that have been set up.
type LifecycleState struct {
	DiagnosticsServer *DiagnosticsServer
	TracerProvider    trace.TracerProvider
}

// ApplyConfiguration applies configuration options to the running
// process. These configuration options are global, in that they apply
// regardless of the command that is executed.
func ApplyConfiguration(configuration *Configuration) (*LifecycleState, error) {
	if configuration == nil {
		configuration = &Configuration{}
	}

	if err := applyLoggingConfiguration(configuration.Logging); err != nil {
		return nil, util.StatusWrap(err, "Failed to apply logging configuration")
	}

	var tracerProvider trace.TracerProvider = noop.NewTracerProvider()
	if tracingConfiguration := configuration.Tracing; tracingConfiguration != nil {
		sampler, err := newSamplerFromConfiguration(tracingConfiguration.Sampler)
		if err != nil {
			return nil, util.StatusWrap(err, "Failed to create trace sampler")
		}
		// Spans are exported synchronously, so that no spans
		// are lost when the process exits.
		tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
			sdktrace.WithSyncer(NewLoggingSpanExporter(logrus.StandardLogger())))
	}
	otel.SetTracerProvider(tracerProvider)

	return &LifecycleState{
		DiagnosticsServer: NewDiagnosticsServer(configuration.DiagnosticsHTTPServer),
		TracerProvider:    tracerProvider,
	}, nil
}

func applyLoggingConfiguration(configuration *LoggingConfiguration) error {
	logrus.SetOutput(os.Stderr)
	if configuration == nil {
		return nil
	}
	if configuration.Level != "" {
		level, err := logrus.ParseLevel(configuration.Level)
		if err != nil {
			return util.StatusWrapWithCode(err, codes.InvalidArgument, "Invalid log level")
		}
		logrus.SetLevel(level)
	}
	switch configuration.Format {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return status.Errorf(codes.InvalidArgument, "Unknown log format %#v", configuration.Format)
	}
	return nil
}

func newSamplerFromConfiguration(configuration *SamplerConfiguration) (sdktrace.Sampler, error) {
	switch {
	case configuration == nil, configuration.Always != nil:
		return sdktrace.AlwaysSample(), nil
	case configuration.Never != nil:
		return sdktrace.NeverSample(), nil
	case configuration.TraceIDRatio != nil:
		ratio := *configuration.TraceIDRatio
		if ratio < 0 || ratio > 1 {
			return nil, status.Errorf(codes.InvalidArgument, "Trace ID ratio must be in range [0, 1], while %g was provided", ratio)
		}
		return sdktrace.TraceIDRatioBased(ratio), nil
	case configuration.ConstantRate != nil:
		constantRate := configuration.ConstantRate
		if constantRate.TokensPerSecond <= 0 || constantRate.MaximumTokens <= 0 || constantRate.TokensPerSample <= 0 {
			return nil, status.Error(codes.InvalidArgument, "Constant rate sampler parameters must be positive")
		}
		return NewConstantRateTraceSampler(constantRate.TokensPerSecond, constantRate.MaximumTokens, constantRate.TokensPerSample, clock.SystemClock), nil
	default:
		return nil, status.Error(codes.InvalidArgument, "Sampler configuration does not contain a supported sampler")
	}
}
