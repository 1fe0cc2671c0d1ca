package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestNewResource_DescribesBudgetwatch(t *testing.T) {
	res, err := NewResource(context.Background(), Config{
		Environment:      "sandbox",
		Timezone:         "America/New_York",
		Schedule:         "0 9 * * *",
		SchedulerEnabled: true,
	})
	require.NoError(t, err)

	set := res.Set()
	value := func(k attribute.Key) string {
		v, ok := set.Value(k)
		require.True(t, ok, "missing %s", k)
		return v.Emit()
	}

	assert.Equal(t, DefaultServiceName, value(semconv.ServiceNameKey))
	assert.Equal(t, "sandbox", value(semconv.DeploymentEnvironmentKey))
	assert.Equal(t, "sandbox", value(ProviderEnvKey))
	assert.Equal(t, "America/New_York", value(SchedulerTZKey))
	assert.Equal(t, "0 9 * * *", value(SchedulerCronKey))
	assert.Equal(t, "true", value(SchedulerEnableKey))
	assert.NotEmpty(t, value(semconv.ServiceInstanceIDKey))
}

func TestNewResource_OmitsUnsetScheduleAttributes(t *testing.T) {
	res, err := NewResource(context.Background(), Config{ServiceName: "budgetwatch-worker"})
	require.NoError(t, err)

	set := res.Set()
	name, _ := set.Value(semconv.ServiceNameKey)
	assert.Equal(t, "budgetwatch-worker", name.AsString())
	_, ok := set.Value(SchedulerTZKey)
	assert.False(t, ok)
	_, ok = set.Value(ProviderEnvKey)
	assert.False(t, ok)
}

func TestViews_JobDurationBuckets(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithView(Views()...))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	h, err := provider.Meter("budgetwatch/batch").Float64Histogram("batch.job.duration")
	require.NoError(t, err)
	h.Record(ctx, 12)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	data, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, latencyBuckets, data.DataPoints[0].Bounds)
}
