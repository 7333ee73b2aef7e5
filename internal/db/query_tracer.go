package db

import (
	"context"
	"regexp"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

type tracedSpanKey struct{}

// queryTracer opens a Sentry span per statement when the caller is already
// inside a transaction.
type queryTracer struct{}

func newQueryTracer() *queryTracer {
	return &queryTracer{}
}

var tablePattern = regexp.MustCompile(`(?i)\b(?:from|into|update)\s+([a-z_][a-z0-9_]*)`)

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	statement := compactStatement(data.SQL)
	span := sentry.StartSpan(
		ctx,
		"db.sql.query",
		sentry.WithDescription(statement),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")
	if operation := statementOperation(statement); operation != "" {
		span.SetData("db.operation", operation)
	}
	if table := statementTable(statement); table != "" {
		span.SetData("db.collection.name", table)
	}

	return context.WithValue(span.Context(), tracedSpanKey{}, span)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, _ := ctx.Value(tracedSpanKey{}).(*sentry.Span)
	if span == nil {
		return
	}

	span.Status = sentry.SpanStatusOK
	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
	}
	if affected := data.CommandTag.RowsAffected(); affected >= 0 {
		span.SetData("db.rows_affected", affected)
	}

	span.Finish()
}

func compactStatement(statement string) string {
	compact := strings.Join(strings.Fields(statement), " ")
	if compact == "" {
		return "sql.query"
	}
	const maxLen = 512
	if len(compact) > maxLen {
		return compact[:maxLen]
	}
	return compact
}

func statementOperation(statement string) string {
	parts := strings.Fields(statement)
	if len(parts) == 0 {
		return ""
	}
	return strings.ToUpper(parts[0])
}

func statementTable(statement string) string {
	match := tablePattern.FindStringSubmatch(statement)
	if len(match) < 2 {
		return ""
	}
	return strings.ToLower(match[1])
}
