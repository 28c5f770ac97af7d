package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"fiskeat/internal/shared"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// CallMetric records metadata for a single outbound call.
type CallMetric struct {
	Operation        string
	Model            string
	Outcome          string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	Timestamp        time.Time
}

// Store handles persistence of metrics to SQLite and mirrors them into Prometheus collectors.
type Store struct {
	db       *sql.DB
	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	s := &Store{
		db:       db,
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fiskeat",
			Name:      "calls_total",
			Help:      "Outbound calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fiskeat",
			Name:      "call_duration_seconds",
			Help:      "Outbound call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fiskeat",
			Name:      "llm_tokens_total",
			Help:      "LLM tokens consumed by kind.",
		}, []string{"kind"}),
	}
	s.registry.MustRegister(s.calls, s.latency, s.tokens)
	return s
}

// Record saves a metric to the database.
func (s *Store) Record(m CallMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	outcome := m.Outcome
	if outcome == "" {
		outcome = OutcomeOK
	}

	s.calls.WithLabelValues(m.Operation, outcome).Inc()
	s.latency.WithLabelValues(m.Operation).Observe(float64(m.LatencyMS) / 1000)
	if m.PromptTokens > 0 {
		s.tokens.WithLabelValues("prompt").Add(float64(m.PromptTokens))
	}
	if m.CompletionTokens > 0 {
		s.tokens.WithLabelValues("completion").Add(float64(m.CompletionTokens))
	}

	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO call_metrics (operation, model, outcome, prompt_tokens, completion_tokens, latency_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.Operation, m.Model, outcome, m.PromptTokens, m.CompletionTokens, m.LatencyMS, ts.UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("failed to insert call metric: %w", err)
	}
	return nil
}

// RecordMeta records metrics directly from shared.CallMeta.
func (s *Store) RecordMeta(meta shared.CallMeta) error {
	return s.Record(MapCall(meta))
}

// Handler exposes the Prometheus collectors.
func (s *Store) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// DailyUsage represents call and token totals for a single day.
type DailyUsage struct {
	Date            string
	TotalPrompt     int
	TotalCompletion int
	TotalCalls      int
	Errors          int
}

const timestampLayout = "2006-01-02 15:04:05"

// GetDailyUsage retrieves usage for the last N days, newest first.
func (s *Store) GetDailyUsage(days int) ([]DailyUsage, error) {
	since := time.Now().UTC().AddDate(0, 0, -days).Format(timestampLayout)
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT substr(timestamp, 1, 10) AS day,
		        COUNT(*),
		        COALESCE(SUM(prompt_tokens), 0),
		        COALESCE(SUM(completion_tokens), 0),
		        COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0)
		   FROM call_metrics
		  WHERE timestamp >= ?
		  GROUP BY day
		  ORDER BY day DESC`, OutcomeError, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	var results []DailyUsage
	for rows.Next() {
		var u DailyUsage
		if err := rows.Scan(&u.Date, &u.TotalCalls, &u.TotalPrompt, &u.TotalCompletion, &u.Errors); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// Cleanup removes records older than the specified number of days.
func (s *Store) Cleanup(olderThanDays int) (int64, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(timestampLayout)
	res, err := s.db.ExecContext(context.Background(), `DELETE FROM call_metrics WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up call metrics: %w", err)
	}
	return res.RowsAffected()
}

// MapCall converts call metadata into a CallMetric.
func MapCall(meta shared.CallMeta) CallMetric {
	outcome := OutcomeOK
	if meta.Err != nil {
		outcome = OutcomeError
	}
	return CallMetric{
		Operation:        meta.Operation,
		Model:            meta.Usage.Model,
		Outcome:          outcome,
		PromptTokens:     meta.Usage.PromptTokens,
		CompletionTokens: meta.Usage.CompletionTokens,
		LatencyMS:        meta.Latency.Milliseconds(),
		Timestamp:        time.Now().UTC(),
	}
}
