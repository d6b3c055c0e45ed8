// Package telemetry provides Prometheus metrics and OpenTelemetry tracing for the tagger.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "product-tagger"

// Stage training outcomes.
const (
	OutcomeTrained = "trained"
	OutcomeSkipped = "skipped"
)

// Metrics holds all tagger Prometheus metrics.
type Metrics struct {
	// Training
	StagesTrained *prometheus.CounterVec
	StageClasses  *prometheus.GaugeVec
	TrainDuration *prometheus.HistogramVec

	// Prediction
	StagePredictDuration *prometheus.HistogramVec
	RowsPredicted        *prometheus.CounterVec

	// Rule engine
	RuleMatchDuration prometheus.Histogram
	RulesMatched      *prometheus.CounterVec

	// Output
	ProductsTagged *prometheus.CounterVec

	// Data preparation
	RowsDropped *prometheus.CounterVec
}

// Provider wraps the tracer, metrics and the registry they are registered on.
// All Record methods are safe to call on a nil *Provider.
type Provider struct {
	Tracer   trace.Tracer
	Metrics  *Metrics
	Registry *prometheus.Registry
}

// NewProvider registers metrics on a fresh registry, so providers can be created per
// command or per test without duplicate registration panics.
func NewProvider() *Provider {
	reg := prometheus.NewRegistry()
	return &Provider{
		Tracer:   otel.Tracer(serviceName),
		Metrics:  initMetrics(promauto.With(reg)),
		Registry: reg,
	}
}

func initMetrics(f promauto.Factory) *Metrics {
	m := &Metrics{}
	initTrainingMetrics(f, m)
	initPredictionMetrics(f, m)
	initRuleEngineMetrics(f, m)
	initOutputMetrics(f, m)
	return m
}

func initTrainingMetrics(f promauto.Factory, m *Metrics) {
	m.StagesTrained = f.NewCounterVec(prometheus.CounterOpts{
		Name: "tagger_stages_trained_total",
		Help: "Classifier stages processed by the cascade trainer, by outcome",
	}, []string{"taxonomy", "stage", "outcome"})

	m.StageClasses = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tagger_stage_classes",
		Help: "Label classes in the most recently trained stage",
	}, []string{"taxonomy", "stage"})

	m.TrainDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tagger_train_duration_seconds",
		Help:    "Time to fit and persist one stage",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"taxonomy", "stage"})
}

func initPredictionMetrics(f promauto.Factory, m *Metrics) {
	m.StagePredictDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tagger_stage_predict_duration_seconds",
		Help:    "Time to predict one batch shard with one stage",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"taxonomy", "stage"})

	m.RowsPredicted = f.NewCounterVec(prometheus.CounterOpts{
		Name: "tagger_rows_predicted_total",
		Help: "Rows scored by classifier stages",
	}, []string{"taxonomy", "stage"})
}

func initRuleEngineMetrics(f promauto.Factory, m *Metrics) {
	m.RuleMatchDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "tagger_rule_match_duration_seconds",
		Help:    "Time spent in rule matching (Aho-Corasick)",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	})

	m.RulesMatched = f.NewCounterVec(prometheus.CounterOpts{
		Name: "tagger_rules_matched_total",
		Help: "Rule matches by taxonomy and rule name",
	}, []string{"taxonomy", "rule"})
}

func initOutputMetrics(f promauto.Factory, m *Metrics) {
	m.ProductsTagged = f.NewCounterVec(prometheus.CounterOpts{
		Name: "tagger_products_tagged_total",
		Help: "Products tagged, by taxonomy and provenance",
	}, []string{"taxonomy", "provenance"})

	m.RowsDropped = f.NewCounterVec(prometheus.CounterOpts{
		Name: "tagger_rows_dropped_total",
		Help: "Input rows dropped during data preparation, by reason",
	}, []string{"reason"})
}

// RecordStageTrained records a trainer outcome for one stage.
func (p *Provider) RecordStageTrained(taxonomy, stage, outcome string, classes int, duration time.Duration) {
	if p == nil {
		return
	}
	p.Metrics.StagesTrained.WithLabelValues(taxonomy, stage, outcome).Inc()
	if outcome == OutcomeTrained {
		p.Metrics.StageClasses.WithLabelValues(taxonomy, stage).Set(float64(classes))
		p.Metrics.TrainDuration.WithLabelValues(taxonomy, stage).Observe(duration.Seconds())
	}
}

// RecordStagePrediction records one stage applied to a shard of rows.
func (p *Provider) RecordStagePrediction(taxonomy, stage string, rows int, duration time.Duration) {
	if p == nil {
		return
	}
	p.Metrics.StagePredictDuration.WithLabelValues(taxonomy, stage).Observe(duration.Seconds())
	p.Metrics.RowsPredicted.WithLabelValues(taxonomy, stage).Add(float64(rows))
}

// RecordRuleMatch records one rule-engine evaluation.
func (p *Provider) RecordRuleMatch(duration time.Duration, matched map[string]string) {
	if p == nil {
		return
	}
	p.Metrics.RuleMatchDuration.Observe(duration.Seconds())
	for taxonomy, rule := range matched {
		p.Metrics.RulesMatched.WithLabelValues(taxonomy, rule).Inc()
	}
}

// RecordTagged records a final assignment.
func (p *Provider) RecordTagged(taxonomy, provenance string) {
	if p == nil {
		return
	}
	p.Metrics.ProductsTagged.WithLabelValues(taxonomy, provenance).Inc()
}

// RecordRowsDropped records rows removed by data preparation.
func (p *Provider) RecordRowsDropped(reason string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.Metrics.RowsDropped.WithLabelValues(reason).Add(float64(n))
}

// WriteTextfile writes the current metrics in the node-exporter textfile format.
func (p *Provider) WriteTextfile(path string) error {
	if p == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, p.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// StartSpan starts a new trace span. The caller ends it. A nil provider uses the
// global tracer.
//
//nolint:spancheck // Caller is responsible for ending the span
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(serviceName)
	if p != nil && p.Tracer != nil {
		tracer = p.Tracer
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
