package postgresengine

import (
	"context"
	"math"
	"time"
)

const (
	metricOperationDuration = "lending_store_operation_duration"
	metricOperationOutcomes = "lending_store_operations"
	metricLendingConflicts  = "lending_store_conflicts"

	labelOperation = "operation"
	labelStatus    = "status"

	statusSuccess  = "success"
	statusError    = "error"
	statusConflict = "conflict"
)

// logQueryWithDuration logs SQL queries with execution time at debug level
// if a logger is configured.
func (s *Store) logQueryWithDuration(ctx context.Context, sqlQuery string, duration time.Duration) {
	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, logMsgSQLExecuted, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if a logger is configured.
func (s *Store) logOperation(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
	}
}

// logError logs error information at the error level if a logger is configured.
func (s *Store) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if s.logger != nil {
		s.logger.Error(msg, allArgs...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	}
}

// observeOperation records duration and outcome metrics and finishes the
// operation span, if collectors are configured.
func (s *Store) observeOperation(operation string, start time.Time, span SpanContext, status string) {
	duration := time.Since(start)

	if s.metricsCollector != nil {
		labels := map[string]string{labelOperation: operation, labelStatus: status}
		s.metricsCollector.RecordDuration(metricOperationDuration, duration, labels)
		s.metricsCollector.IncrementCounter(metricOperationOutcomes, labels)

		if status == statusConflict {
			s.metricsCollector.IncrementCounter(metricLendingConflicts, map[string]string{labelOperation: operation})
		}
	}

	if s.tracingCollector != nil && span != nil {
		s.tracingCollector.FinishSpan(span, status, map[string]string{
			logAttrDurationMSStr: formatMilliseconds(duration),
		})
	}
}

// startOperationSpan opens a tracing span for a public store operation
// if a tracing collector is configured.
func (s *Store) startOperationSpan(ctx context.Context, operation string) (context.Context, SpanContext) {
	if s.tracingCollector == nil {
		return ctx, nil
	}

	return s.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, map[string]string{labelOperation: operation})
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// formatMilliseconds renders a duration as milliseconds for span attributes.
func formatMilliseconds(d time.Duration) string {
	return time.Duration(d.Milliseconds() * int64(time.Millisecond)).String()
}
