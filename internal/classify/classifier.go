package classify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flemzord/toolpipe/internal/observability"
)

// Config configures a Classifier. The zero value is usable: default tables,
// no model (Tier 3 uses the keyword fallback).
type Config struct {
	// Rules overrides the Tier 2 table. Nil selects DefaultRules.
	Rules []Rule

	// DeferMarkers overrides the phrases that skip Tier 2.
	DeferMarkers []string

	// MaxRuleRunes is the longest input judged by Tier 2.
	MaxRuleRunes int

	// Model is the Tier 3 backend. Nil means the model is unavailable.
	Model Inferencer

	// ModelTimeout bounds a single Tier 3 call. Defaults to 3s.
	ModelTimeout time.Duration

	// MinConfidence is the lowest model confidence accepted as-is. Lower
	// results degrade to the conversational category. Defaults to 0.5.
	MinConfidence float64

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  trace.Tracer

	// Now overrides time.Now for latency measurement.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = 3 * time.Second
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = noop.NewTracerProvider().Tracer(observability.TracerName)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Classifier runs the three tiers in order. It holds no mutable state and is
// safe for concurrent use.
type Classifier struct {
	cfg   Config
	rules *RuleSet
}

// New creates a Classifier.
func New(cfg Config) *Classifier {
	cfg = cfg.withDefaults()
	return &Classifier{
		cfg:   cfg,
		rules: NewRuleSet(cfg.Rules, cfg.DeferMarkers, cfg.MaxRuleRunes),
	}
}

// emptyResult is returned for input with no letters or digits.
var emptyResult = Result{
	Layer:      LayerModel,
	Category:   CategoryNoToolNeeded,
	Confidence: 0.5,
	MatchType:  MatchEmptyInput,
}

// Classify maps input to a category. It always returns a result: when the
// model tier cannot run the answer degrades to a conversational category.
func (c *Classifier) Classify(ctx context.Context, input string) Result {
	return c.ClassifyTimed(ctx, input).Result
}

// ClassifyTimed is Classify plus the wall-clock latency of the call.
func (c *Classifier) ClassifyTimed(ctx context.Context, input string) Timed {
	start := c.cfg.Now()
	ctx, span := c.cfg.Tracer.Start(ctx, "classify")
	defer span.End()

	res := c.classify(ctx, input)
	elapsed := c.cfg.Now().Sub(start)

	span.SetAttributes(
		attribute.Int("classify.layer", int(res.Layer)),
		attribute.String("classify.category", string(res.Category)),
		attribute.String("classify.match_type", res.MatchType),
	)
	c.cfg.Metrics.ObserveClassification(int(res.Layer), string(res.Category), elapsed)
	c.cfg.Logger.Debug("classified input",
		"layer", int(res.Layer),
		"category", res.Category,
		"tool", res.Tool,
		"confidence", res.Confidence,
		"match_type", res.MatchType,
		"latency", elapsed,
	)
	return Timed{
		Input:     input,
		Result:    res,
		LatencyMS: float64(elapsed.Microseconds()) / 1000,
	}
}

// ClassifyBatch classifies each input in order.
func (c *Classifier) ClassifyBatch(ctx context.Context, inputs []string) []Timed {
	out := make([]Timed, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, c.ClassifyTimed(ctx, in))
	}
	return out
}

func (c *Classifier) classify(ctx context.Context, input string) Result {
	if isBlank(input) {
		return emptyResult
	}
	if res, ok := MatchExact(input); ok {
		return res
	}
	if res, ok := c.rules.Match(input); ok {
		return res
	}
	res, err := c.infer(ctx, input)
	if err != nil {
		c.cfg.Logger.Debug("model tier unavailable, using keyword fallback", "error", err)
		return keywordFallback(input)
	}
	return res
}

func (c *Classifier) infer(ctx context.Context, input string) (Result, error) {
	if c.cfg.Model == nil {
		return Result{}, ErrClassificationUnavailable
	}

	ctx, span := c.cfg.Tracer.Start(ctx, "classify.model")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ModelTimeout)
	defer cancel()

	out, err := c.cfg.Model.Infer(ctx, BuildPrompt(input))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("%w: %w", ErrClassificationUnavailable, err)
	}
	category, confidence, ok := ParseModelOutput(out)
	if !ok {
		return Result{}, fmt.Errorf("%w: unparseable output %q", ErrClassificationUnavailable, truncate(out, 64))
	}
	if confidence < c.cfg.MinConfidence {
		return Result{
			Layer:      LayerModel,
			Category:   CategoryAIChat,
			Confidence: confidence,
			MatchType:  MatchLowConfidence,
		}, nil
	}
	return Result{
		Layer:      LayerModel,
		Category:   category,
		Confidence: confidence,
		MatchType:  MatchModel,
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
