package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	gradingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "arena",
		Subsystem: "ai",
		Name:      "grading_duration_seconds",
		Help:      "Duration of model grading requests",
	}, []string{"model"})

	gradingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arena",
		Subsystem: "ai",
		Name:      "grading_failures_total",
		Help:      "Number of model grading failures",
	}, []string{"model", "reason"})
)

// OpenAIConfig defines configuration options for the OpenAI grader.
type OpenAIConfig struct {
	APIKey         string
	Model          string
	MaxTokens      int
	Temperature    float32
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// OpenAIGrader implements Grader against the OpenAI chat completion API.
type OpenAIGrader struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGrader builds a new grader using the provided configuration.
func NewOpenAIGrader(cfg OpenAIConfig) (*OpenAIGrader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAIGrader{
		client: openai.NewClientWithConfig(openai.DefaultConfig(cfg.APIKey)),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/arena-go-api/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_grader").Logger(),
	}, nil
}

// Grade issues exactly one model call for the submission and parses the
// structured response. The call is bounded by RequestTimeout; the finish
// reason is inspected before any parse attempt so a truncated answer never
// yields a partial record.
func (g *OpenAIGrader) Grade(parent context.Context, input GradingInput) (EvaluationRecord, error) {
	ctx, span := g.tracer.Start(parent, "openai.grade", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.String("repo", input.RepoOwner+"/"+input.RepoName),
		attribute.Int("files", len(input.Files)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: graderSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildGradingPrompt(input),
			},
		},
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, request)
	gradingDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		gradingFailures.WithLabelValues(g.cfg.Model, "call").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return EvaluationRecord{}, fmt.Errorf("openai grade: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		gradingFailures.WithLabelValues(g.cfg.Model, "empty").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return EvaluationRecord{}, err
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		gradingFailures.WithLabelValues(g.cfg.Model, "truncated").Inc()
		span.SetStatus(codes.Error, "truncated")
		return EvaluationRecord{}, fmt.Errorf("prompt of %d files exceeded output budget: %w", len(input.Files), ErrTruncated)
	}

	record, err := ParseEvaluation(strings.TrimSpace(choice.Message.Content))
	if err != nil {
		gradingFailures.WithLabelValues(g.cfg.Model, "malformed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return EvaluationRecord{}, err
	}

	g.logger.Info().
		Str("repo", input.RepoOwner+"/"+input.RepoName).
		Float64("overall_score", record.OverallScore).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("submission graded")

	return record, nil
}

func graderSystemPrompt() string {
	return "You are an expert reviewer grading AI-building challenge submissions. " +
		"Respond with ONLY a JSON object, no markdown and no commentary, shaped exactly as: " +
		`{"summary": string, "scores": {<criterion name>: integer 0-20, ...}, ` +
		`"overallScore": integer 0-100, "keyStrengths": [2-3 strings], "keyImprovements": [2-3 strings]}. ` +
		"Score every rubric criterion on a 0-20 scale. Judge only what the submitted files show."
}

func buildGradingPrompt(input GradingInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Repository\n")
	builder.WriteString(input.RepoOwner)
	builder.WriteString("/")
	builder.WriteString(input.RepoName)

	builder.WriteString("\n\n## Challenge Requirements\n")
	for i, requirement := range input.Requirements {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, requirement))
	}

	builder.WriteString("\n## Evaluation Criteria\n")
	for _, criterion := range input.Criteria {
		builder.WriteString(fmt.Sprintf("- %s (%d%%): %s\n", criterion.Name, criterion.WeightPercent, criterion.Description))
	}

	builder.WriteString("\n## Submitted Files\n")
	for _, file := range input.Files {
		builder.WriteString(fmt.Sprintf("\n=== FILE: %s ===\n", file.Path))
		builder.WriteString(file.Content)
		builder.WriteString("\n")
	}

	builder.WriteString("\nReturn only the JSON object.")
	return builder.String()
}
