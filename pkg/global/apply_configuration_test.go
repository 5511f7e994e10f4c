package global_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/buildbarn/bb-splitter/pkg/global"
	"github.com/buildbarn/bb-splitter/pkg/program"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func getStatusCode(t *testing.T, handler http.Handler, path string) int {
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
	return recorder.Code
}

func TestDiagnosticsServer(t *testing.T) {
	t.Run("Prometheus", func(t *testing.T) {
		ds := global.NewDiagnosticsServer(&global.DiagnosticsHTTPServerConfiguration{
			ListenAddress:    ":9980",
			EnablePrometheus: true,
		})
		handler := ds.Handler()

		require.Equal(t, http.StatusOK, getStatusCode(t, handler, "/-/healthy"))
		require.Equal(t, http.StatusServiceUnavailable, getStatusCode(t, handler, "/-/ready"))
		require.Equal(t, http.StatusOK, getStatusCode(t, handler, "/metrics"))
		require.Equal(t, http.StatusNotFound, getStatusCode(t, handler, "/debug/pprof/"))

		ds.SetReady()
		require.Equal(t, http.StatusOK, getStatusCode(t, handler, "/-/ready"))
		ds.SetNotServing()
		require.Equal(t, http.StatusServiceUnavailable, getStatusCode(t, handler, "/-/ready"))
	})

	t.Run("Unconfigured", func(t *testing.T) {
		handler := global.NewDiagnosticsServer(nil).Handler()
		require.Equal(t, http.StatusOK, getStatusCode(t, handler, "/-/healthy"))
		require.Equal(t, http.StatusNotFound, getStatusCode(t, handler, "/metrics"))
	})

	t.Run("Serve", func(t *testing.T) {
		// The web server should shut down once the routine that
		// depends on it has completed.
		ds := global.NewDiagnosticsServer(&global.DiagnosticsHTTPServerConfiguration{
			ListenAddress: "127.0.0.1:0",
		})
		require.NoError(t, program.RunLocal(context.Background(), func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
			dependenciesGroup.Go(ds.Serve)
			ds.SetReady()
			return nil
		}))
		require.Equal(t, http.StatusServiceUnavailable, getStatusCode(t, ds.Handler(), "/-/ready"))
	})
}

func TestApplyConfiguration(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		lifecycleState, err := global.ApplyConfiguration(nil)
		require.NoError(t, err)
		require.NotNil(t, lifecycleState.DiagnosticsServer)
		require.NotNil(t, lifecycleState.TracerProvider)
	})

	t.Run("InvalidLogLevel", func(t *testing.T) {
		_, err := global.ApplyConfiguration(&global.Configuration{
			Logging: &global.LoggingConfiguration{Level: "loud"},
		})
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("InvalidLogFormat", func(t *testing.T) {
		_, err := global.ApplyConfiguration(&global.Configuration{
			Logging: &global.LoggingConfiguration{Level: "info", Format: "xml"},
		})
		require.Equal(t, status.Error(codes.InvalidArgument, "Failed to apply logging configuration: Unknown log format \"xml\"").Error(), err.Error())
	})

	t.Run("InvalidTraceIDRatio", func(t *testing.T) {
		ratio := 1.5
		_, err := global.ApplyConfiguration(&global.Configuration{
			Tracing: &global.TracingConfiguration{
				Sampler: &global.SamplerConfiguration{TraceIDRatio: &ratio},
			},
		})
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("EmptySampler", func(t *testing.T) {
		_, err := global.ApplyConfiguration(&global.Configuration{
			Tracing: &global.TracingConfiguration{
				Sampler: &global.SamplerConfiguration{},
			},
		})
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("Tracing", func(t *testing.T) {
		lifecycleState, err := global.ApplyConfiguration(&global.Configuration{
			Tracing: &global.TracingConfiguration{
				Sampler: &global.SamplerConfiguration{
					ConstantRate: &global.ConstantRateTraceSamplerConfiguration{
						TokensPerSecond: 10,
						MaximumTokens:   10,
						TokensPerSample: 1,
					},
				},
			},
		})
		require.NoError(t, err)
		_, span := lifecycleState.TracerProvider.Tracer("test").Start(t.Context(), "Hello")
		require.True(t, span.SpanContext().IsSampled())
		span.End()
	})
}
