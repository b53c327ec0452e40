package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aura/pkg/agent/invoke"
	"aura/pkg/agent/llm"
	"aura/pkg/agent/middleware/metrics"
	"aura/pkg/config"
	"aura/pkg/logx"
)

// ProbeMessage is the prompt sent by health probes.
const ProbeMessage = "Hello, are you online?"

// Diagnostic step statuses.
const (
	StepOK      = "OK"
	StepMissing = "MISSING"
	StepFail    = "FAIL"
	StepStart   = "START"
	StepSuccess = "SUCCESS"
	StepQuota   = "QUOTA_EXCEEDED"
)

// DiagnosticStep is one logged step of a diagnosis.
type DiagnosticStep struct {
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	Details   string    `json:"details"`
}

// Diagnosis reports whether the configured model answers with the configured keys.
//
//nolint:govet // fieldalignment: readability
type Diagnosis struct {
	EnvAPIKeyPresent bool                 `json:"env_api_key_present"`
	ActiveModelID    string               `json:"active_model_id"`
	Logs             []DiagnosticStep     `json:"logs"`
	Success          bool                 `json:"success"`
	Usage            []metrics.ModelUsage `json:"usage,omitempty"`
	RecentLogs       []logx.LogEntry      `json:"recent_logs,omitempty"`
}

func (d *Diagnosis) log(step, status, details string) {
	d.Logs = append(d.Logs, DiagnosticStep{Timestamp: time.Now().UTC(), Step: step, Status: status, Details: details})
}

// Diagnose checks credentials and sends a probe through the invocation engine,
// recording each step. usage may be nil.
func (s *Service) Diagnose(ctx context.Context, usage *metrics.UsageRecorder) *Diagnosis {
	start := time.Now()
	snap := s.settings.Snapshot()
	d := &Diagnosis{ActiveModelID: snap.ActiveModel()}

	_, d.EnvAPIKeyPresent = snap.Config().FindAPIKey(config.EnvCredentialID)
	status := StepMissing
	if d.EnvAPIKeyPresent {
		status = StepOK
	}
	d.log("Check Env API Key", status, fmt.Sprintf("Present: %t", d.EnvAPIKeyPresent))
	d.log("Load User Config", StepOK, fmt.Sprintf("Active Model: %s (settings v%d)", snap.ActiveModel(), snap.Version))

	creds := snap.Credentials()
	if len(creds) == 0 {
		d.log("Resolve API Key", StepFail, "No API Key found in Settings or Env")
		return d
	}
	d.log("Resolve API Key", StepOK, fmt.Sprintf("%d keys, first: %s", len(creds), creds[0].Masked()))

	step := fmt.Sprintf("Test Invoke (%s)", snap.ActiveModel())
	d.log(step, StepStart, fmt.Sprintf("Sending %q...", ProbeMessage))
	res, err := s.probe(ctx, snap)
	switch {
	case err != nil:
		d.log(step, StepFail, err.Error())
	case res.OK():
		d.Success = true
		d.log(step, StepSuccess, fmt.Sprintf("Model %s key#%d: %s", res.Model, res.CredentialIndex, res.Response.Content))
	default:
		if res.Outcome == invoke.OutcomeRateLimited {
			d.log(step, StepQuota, res.Err().Error())
		} else {
			d.log(step, StepFail, res.Err().Error())
		}
	}
	for i := range res.Errors {
		a := &res.Errors[i]
		d.log("Attempt", a.Kind.String(), a.String())
	}

	if usage != nil {
		d.Usage = usage.Snapshot()
	}
	d.RecentLogs = logx.GetRecentLogEntries("", start)
	return d
}

// Probe sends one short request through the engine. It returns nil when any
// (model, credential) pair answers.
func (s *Service) Probe(ctx context.Context) error {
	res, err := s.probe(ctx, s.settings.Snapshot())
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err //nolint:wrapcheck // ExhaustionError already names every attempt
	}
	return nil
}

func (s *Service) probe(ctx context.Context, snap *config.Snapshot) (invoke.Result, error) {
	req := invoke.NewRequest(snap, []llm.CompletionMessage{llm.NewUserMessage(ProbeMessage)})
	req.Temperature = invoke.Temperature(llm.TemperatureDeterministic)
	req.MaxTokens = 32
	ctx = metrics.WithComponent(ctx, "Probe")
	res, err := s.invoker.Invoke(ctx, req)
	var cfgErr *invoke.ConfigurationError
	if errors.As(err, &cfgErr) {
		return res, fmt.Errorf("probe not attempted: %w", err)
	}
	return res, err
}
