// Package events emits structured lifecycle logging and Prometheus metrics
// for every BuildJob stage/attempt transition, per spec §6.7.
package events

import (
	"regexp"
	"time"

	"go.uber.org/zap"
)

// Recorder is the single collaborator the Orchestrator, Gateway, and
// Sandbox log through. Constructed once at process start and injected, like
// every other Builder collaborator.
type Recorder struct {
	log     *zap.Logger
	metrics *Metrics
}

func NewRecorder(log *zap.Logger, metrics *Metrics) *Recorder {
	return &Recorder{log: log, metrics: metrics}
}

// StageStarted logs and counts entry into a BuildJob stage.
func (r *Recorder) StageStarted(jobID, moduleID, correlationID, stage string) {
	r.log.Info("stage started",
		zap.String("job_id", jobID),
		zap.String("module_id", moduleID),
		zap.String("correlation_id", correlationID),
		zap.String("stage", stage),
	)
	r.metrics.stageTransitions.WithLabelValues(stage, "started").Inc()
}

// StageFinished logs and counts a stage's completion, including its
// wall-clock duration and whether it ended in failure.
func (r *Recorder) StageFinished(jobID, moduleID, correlationID, stage string, d time.Duration, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	r.log.Info("stage finished",
		zap.String("job_id", jobID),
		zap.String("module_id", moduleID),
		zap.String("correlation_id", correlationID),
		zap.String("stage", stage),
		zap.String("outcome", outcome),
		zap.Duration("duration", d),
	)
	r.metrics.stageTransitions.WithLabelValues(stage, outcome).Inc()
	r.metrics.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// AttemptClassified logs an attempt's terminal/non-progressing/retryable
// classification, the fact that drives REPAIR vs ATTEST vs FAILED.
func (r *Recorder) AttemptClassified(jobID, moduleID string, attemptNumber int, class string) {
	r.log.Info("attempt classified",
		zap.String("job_id", jobID),
		zap.String("module_id", moduleID),
		zap.Int("attempt", attemptNumber),
		zap.String("class", class),
	)
	r.metrics.attemptClass.WithLabelValues(class).Inc()
}

// ProviderCall logs a single Gateway provider round trip, redacting the
// prompt and raw response — only shape (purpose, provider, outcome,
// latency) is recorded.
func (r *Recorder) ProviderCall(provider, purpose, outcome string, d time.Duration, tokensUsed int) {
	r.log.Info("provider call",
		zap.String("provider", provider),
		zap.String("purpose", purpose),
		zap.String("outcome", outcome),
		zap.Duration("duration", d),
		zap.Int("tokens_used", tokensUsed),
	)
	r.metrics.providerCalls.WithLabelValues(provider, purpose, outcome).Inc()
	r.metrics.providerLatency.WithLabelValues(provider, purpose).Observe(d.Seconds())
}

// Attested logs a successful ATTEST, the terminal good outcome of a
// BuildJob.
func (r *Recorder) Attested(jobID, moduleID, attestationID string, attempts int) {
	r.log.Info("job attested",
		zap.String("job_id", jobID),
		zap.String("module_id", moduleID),
		zap.String("attestation_id", attestationID),
		zap.Int("attempts", attempts),
	)
	r.metrics.jobsCompleted.WithLabelValues("attested").Inc()
}

// Failed logs a BuildJob ending in FAILED or ABORTED.
func (r *Recorder) Failed(jobID, moduleID, reason string, attempts int) {
	r.log.Warn("job failed",
		zap.String("job_id", jobID),
		zap.String("module_id", moduleID),
		zap.String("reason", Redact(reason)),
		zap.Int("attempts", attempts),
	)
	r.metrics.jobsCompleted.WithLabelValues("failed").Inc()
}

// secretLike matches header/URL/body fragments that look like bearer
// tokens, API keys, or basic-auth userinfo, so a failure reason derived
// from an upstream error body never leaks a credential into a log line.
var secretLike = regexp.MustCompile(`(?i)(bearer\s+[a-z0-9._\-]{10,}|sk-[a-z0-9]{10,}|[a-z0-9._%+\-]+:[^@/\s]{6,}@|(api[_-]?key|authorization|secret)["':=\s]+[a-z0-9._\-]{8,})`)

// Redact strips anything resembling a credential out of a string before it
// reaches a log line, the Sandbox's stdout/stderr capture, or a Finding
// message — the one redaction function, applied by Recorder.Failed and by
// DockerRunner's RUNTIME finding, per spec §6.7.
func Redact(s string) string {
	return secretLike.ReplaceAllString(s, "[REDACTED]")
}
