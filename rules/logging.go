package rules

import (
	"context"
	"log/slog"
	"time"
)

// EvaluationEvent describes one rule evaluation.
type EvaluationEvent struct {
	Engine   string
	Expr     string
	Rule     string
	Type     string
	Passed   bool
	Duration time.Duration
	Err      error
}

// Outcome classifies the event as "passed", "broken" or "error".
func (e EvaluationEvent) Outcome() string {
	switch {
	case e.Err != nil:
		return "error"
	case e.Passed:
		return "passed"
	default:
		return "broken"
	}
}

// Logger records evaluation events.
type Logger interface {
	LogEvaluation(EvaluationEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(EvaluationEvent)

// LogEvaluation implements Logger.
func (f LoggerFunc) LogEvaluation(event EvaluationEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogEvaluation(EvaluationEvent) {}

// MultiLogger fans every event out to each non-nil logger in order.
func MultiLogger(loggers ...Logger) Logger {
	targets := make([]Logger, 0, len(loggers))
	for _, logger := range loggers {
		if logger != nil {
			targets = append(targets, logger)
		}
	}
	return LoggerFunc(func(event EvaluationEvent) {
		for _, logger := range targets {
			logger.LogEvaluation(event)
		}
	})
}

// NewSlogLogger logs passing and broken evaluations at debug level and failed
// evaluations at warn level.
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return LoggerFunc(func(event EvaluationEvent) {
		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.String("engine", event.Engine),
			slog.String("rule", event.Rule),
			slog.String("type", event.Type),
			slog.String("outcome", event.Outcome()),
			slog.Duration("duration", event.Duration),
		}
		if event.Err != nil {
			level = slog.LevelWarn
			attrs = append(attrs, slog.String("expr", event.Expr), slog.Any("error", event.Err))
		}
		logger.LogAttrs(context.Background(), level, "rule evaluated", attrs...)
	})
}
