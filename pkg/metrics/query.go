// Package metrics provides services for querying and aggregating metrics data.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// DefaultWindow is the look-back used when a summary is requested without one.
const DefaultWindow = 24 * time.Hour

// ModelSummary is the aggregated LLM usage of one model over a window.
//
//nolint:govet
type ModelSummary struct {
	Model            string `json:"model"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	Requests         int64  `json:"requests"`
	Failures         int64  `json:"failures"`
	Throttles        int64  `json:"throttles"`
}

// UsageSummary is the usage of every model seen in a window.
type UsageSummary struct {
	Models      []ModelSummary   `json:"models"`
	ByComponent map[string]int64 `json:"tokens_by_component"`
	Window      string           `json:"window"`
	TotalTokens int64            `json:"total_tokens"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetUsageSummary aggregates token, request and throttle counters per model over
// the last window. Models appear sorted by name.
func (q *QueryService) GetUsageSummary(ctx context.Context, window time.Duration) (*UsageSummary, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	rng := model.Duration(window).String()
	now := time.Now()
	summary := &UsageSummary{Window: rng, ByComponent: make(map[string]int64)}
	byModel := make(map[string]*ModelSummary)
	entry := func(name string) *ModelSummary {
		s, ok := byModel[name]
		if !ok {
			s = &ModelSummary{Model: name}
			byModel[name] = s
		}
		return s
	}

	// Token counts by model and type.
	tokens, err := q.vector(ctx, fmt.Sprintf(`sum by (model, type) (increase(llm_tokens_total[%s]))`, rng), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	for _, sample := range tokens {
		s := entry(string(sample.Metric["model"]))
		switch sample.Metric["type"] {
		case "prompt":
			s.PromptTokens += int64(sample.Value)
		case "completion":
			s.CompletionTokens += int64(sample.Value)
		}
	}

	// Requests by model and status.
	requests, err := q.vector(ctx, fmt.Sprintf(`sum by (model, status) (increase(llm_requests_total[%s]))`, rng), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	for _, sample := range requests {
		s := entry(string(sample.Metric["model"]))
		n := int64(sample.Value)
		s.Requests += n
		if sample.Metric["status"] != "success" {
			s.Failures += n
		}
	}

	throttles, err := q.vector(ctx, fmt.Sprintf(`sum by (model) (increase(llm_throttle_total[%s]))`, rng), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query throttles: %w", err)
	}
	for _, sample := range throttles {
		entry(string(sample.Metric["model"])).Throttles += int64(sample.Value)
	}

	components, err := q.vector(ctx, fmt.Sprintf(`sum by (component) (increase(llm_tokens_total[%s]))`, rng), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query component tokens: %w", err)
	}
	for _, sample := range components {
		summary.ByComponent[string(sample.Metric["component"])] += int64(sample.Value)
	}

	for _, s := range byModel {
		s.TotalTokens = s.PromptTokens + s.CompletionTokens
		summary.TotalTokens += s.TotalTokens
		summary.Models = append(summary.Models, *s)
	}
	sort.Slice(summary.Models, func(i, j int) bool { return summary.Models[i].Model < summary.Models[j].Model })
	return summary, nil
}

func (q *QueryService) vector(ctx context.Context, query string, ts time.Time) (model.Vector, error) {
	result, _, err := q.queryAPI.Query(ctx, query, ts)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers add the metric name
	}
	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %s", result.Type())
	}
	return vector, nil
}
