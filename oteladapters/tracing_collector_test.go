package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/bookhaven/book-lending-go/lending/postgresengine"
	"github.com/bookhaven/book-lending-go/oteladapters"
)

func givenTracingCollector(t *testing.T) (*oteladapters.TracingCollector, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return oteladapters.NewTracingCollector(provider.Tracer("test")), exporter
}

func Test_TracingCollector_RecordsSpan_WithStartAndFinishAttributes(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector(t)

	// act
	_, spanCtx := collector.StartSpan(context.Background(), "lendingstore.borrow_book", map[string]string{
		"operation": "borrow_book",
	})
	collector.FinishSpan(spanCtx, "success", map[string]string{"rows_affected": "1"})

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "lendingstore.borrow_book", span.Name)
	assert.Equal(t, codes.Ok, span.Status.Code)
	assertSpanHasAttribute(t, span, "operation", "borrow_book")
	assertSpanHasAttribute(t, span, "rows_affected", "1")
}

func Test_TracingCollector_MapsStatusStrings_ToSpanStatusCodes(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector(t)

	testCases := []struct {
		status              string
		expectedCode        codes.Code
		expectedDescription string
	}{
		{"ok", codes.Ok, ""},
		{"success", codes.Ok, ""},
		{"completed", codes.Ok, ""},
		{"conflict", codes.Ok, ""},
		{"error", codes.Error, "operation failed"},
		{"failed", codes.Error, "operation failed"},
		{"failure", codes.Error, "operation failed"},
		{"cancelled", codes.Error, "operation cancelled"},
		{"canceled", codes.Error, "operation cancelled"},
		{"timeout", codes.Error, "operation timed out"},
	}

	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			exporter.Reset()

			// act
			_, spanCtx := collector.StartSpan(context.Background(), "test", nil)
			collector.FinishSpan(spanCtx, tc.status, nil)

			// assert
			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tc.expectedCode, spans[0].Status.Code)
			assert.Equal(t, tc.expectedDescription, spans[0].Status.Description)
		})
	}
}

func Test_TracingCollector_KeepsConflictSpansOk_AndMarksOutcome(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector(t)

	// act: a rejected borrow is a correct outcome, not a failure
	_, spanCtx := collector.StartSpan(context.Background(), "lendingstore.borrow_book", nil)
	collector.FinishSpan(spanCtx, "conflict", nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assertSpanHasAttribute(t, spans[0], "outcome", "conflict")
}

func Test_TracingCollector_RecordsUnknownStatus_AsAttribute(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector(t)

	// act
	_, spanCtx := collector.StartSpan(context.Background(), "test", nil)
	collector.FinishSpan(spanCtx, "unknown_status", nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assertSpanHasAttribute(t, spans[0], "status", "unknown_status")
}

func Test_TracingCollector_IgnoresForeignSpanContexts(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector(t)

	// act + assert: a SpanContext not created by this collector is a no-op
	assert.NotPanics(t, func() {
		collector.FinishSpan(&foreignSpanContext{}, "ok", map[string]string{"key": "value"})
	})

	assert.Empty(t, exporter.GetSpans())
}

func Test_TracingCollector_ParentsSpans_FromIncomingContext(t *testing.T) {
	// arrange
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	tracer := provider.Tracer("test")
	collector := oteladapters.NewTracingCollector(tracer)

	parentCtx, parentSpan := tracer.Start(context.Background(), "handle-request")
	defer parentSpan.End()

	// act
	childCtx, childSpanCtx := collector.StartSpan(parentCtx, "lendingstore.borrow_book", nil)
	collector.FinishSpan(childSpanCtx, "ok", nil)

	// assert
	assert.NotEqual(t, parentCtx, childCtx)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, parentSpan.SpanContext().SpanID(), spans[0].Parent.SpanID())
}

func Test_OTelSpanContext_SetStatusAndAddAttribute(t *testing.T) {
	// arrange
	collector, exporter := givenTracingCollector(t)
	_, spanCtx := collector.StartSpan(context.Background(), "test-span", nil)

	// act
	spanCtx.SetStatus("success")
	spanCtx.AddAttribute("test_key", "test_value")
	collector.FinishSpan(spanCtx, "completed", nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assertSpanHasAttribute(t, spans[0], "test_key", "test_value")
}

// foreignSpanContext implements postgresengine.SpanContext but is not an
// OTelSpanContext.
type foreignSpanContext struct{}

func (f *foreignSpanContext) SetStatus(string)         {}
func (f *foreignSpanContext) AddAttribute(_, _ string) {}

var _ postgresengine.SpanContext = (*foreignSpanContext)(nil)

func assertSpanHasAttribute(t *testing.T, span tracetest.SpanStub, key, expectedValue string) {
	t.Helper()

	for _, attr := range span.Attributes {
		if attr.Key == attribute.Key(key) && attr.Value.AsString() == expectedValue {
			return
		}
	}

	assert.Failf(t, "missing span attribute", "expected %s=%s", key, expectedValue)
}
