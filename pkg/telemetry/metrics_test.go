// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	stderrors "errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jllopis/aixi/pkg/errors"
)

func TestRunMetricsNilSafe(t *testing.T) {
	var m *RunMetrics
	ctx := context.Background()
	m.RecordCycle(ctx)
	m.RecordToolInvocation(ctx, "web_search", true)
	m.RecordTokens(ctx, "ideator", 10, 5)
	m.RecordError(ctx, errors.NewParseFailure("x"), "ideator")
	m.RecordCircuitBreakerState(ctx, "web_search", 2)
}

func TestRunMetricsRecords(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	m, err := NewRunMetrics()
	if err != nil {
		t.Fatalf("NewRunMetrics: %v", err)
	}
	ctx := context.Background()
	m.RecordCycle(ctx)
	m.RecordCycle(ctx)
	m.RecordToolInvocation(ctx, "file_system", false)
	m.RecordTokens(ctx, "judge", 100, 20)
	m.RecordError(ctx, stderrors.New("plain"), "orchestrator")
	m.RecordError(ctx, nil, "orchestrator")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[md.Name] += dp.Value
				}
			}
		}
	}

	want := map[string]int64{
		"aixi.cycles.total":     2,
		"aixi.tool.invocations": 1,
		"aixi.llm.tokens":       120,
		"aixi.errors.total":     1,
	}
	for name, v := range want {
		if totals[name] != v {
			t.Errorf("%s: got %d, want %d", name, totals[name], v)
		}
	}
}
