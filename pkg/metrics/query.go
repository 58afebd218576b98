// Package metrics provides services for querying and aggregating metrics data.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// ProjectMetrics represents aggregated token and cost totals for a project.
type ProjectMetrics struct {
	ProjectID        string  `json:"project_id"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	client   api.Client
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
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// sumQuery runs an instant query and returns the first sample value, or zero
// when the series has no data yet.
func (q *QueryService) sumQuery(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// collect fills a ProjectMetrics from token and cost series matching the
// given label selector, e.g. `project_id="proj-1", agent_type="IDEATION"`.
func (q *QueryService) collect(ctx context.Context, projectID, selector string) (*ProjectMetrics, error) {
	m := &ProjectMetrics{ProjectID: projectID}

	prompt, err := q.sumQuery(ctx, fmt.Sprintf(`sum(llm_tokens_total{%s, type="prompt"})`, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	m.PromptTokens = int64(prompt)

	completion, err := q.sumQuery(ctx, fmt.Sprintf(`sum(llm_tokens_total{%s, type="completion"})`, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	m.CompletionTokens = int64(completion)
	m.TotalTokens = m.PromptTokens + m.CompletionTokens

	cost, err := q.sumQuery(ctx, fmt.Sprintf(`sum(llm_costs_total{%s})`, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}
	m.TotalCost = cost

	return m, nil
}

// GetProjectMetrics retrieves aggregated token and cost metrics for a project
// across all agents and phases.
func (q *QueryService) GetProjectMetrics(ctx context.Context, projectID string) (*ProjectMetrics, error) {
	return q.collect(ctx, projectID, fmt.Sprintf(`project_id=%q`, projectID))
}

// GetProjectMetricsByAgent retrieves metrics broken down by agent type,
// showing how much each pipeline stage contributed to the project's spend.
func (q *QueryService) GetProjectMetricsByAgent(ctx context.Context, projectID string) (map[string]*ProjectMetrics, error) {
	agentsQuery := fmt.Sprintf(`group by (agent_type) (llm_tokens_total{project_id=%q})`, projectID)
	agentsResult, _, err := q.queryAPI.Query(ctx, agentsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query agent types: %w", err)
	}

	var agentTypes []string
	if vector, ok := agentsResult.(model.Vector); ok {
		for _, sample := range vector {
			if agentType, ok := sample.Metric["agent_type"]; ok {
				agentTypes = append(agentTypes, string(agentType))
			}
		}
	}

	result := make(map[string]*ProjectMetrics)
	for _, agentType := range agentTypes {
		selector := fmt.Sprintf(`project_id=%q, agent_type=%q`, projectID, agentType)
		m, err := q.collect(ctx, projectID, selector)
		if err != nil {
			return nil, fmt.Errorf("failed to query metrics for agent %s: %w", agentType, err)
		}
		result[agentType] = m
	}

	return result, nil
}

// GetProjectMetricsByModel retrieves metrics broken down by model name.
func (q *QueryService) GetProjectMetricsByModel(ctx context.Context, projectID string) (map[string]*ProjectMetrics, error) {
	modelsQuery := fmt.Sprintf(`group by (model) (llm_tokens_total{project_id=%q})`, projectID)
	modelsResult, _, err := q.queryAPI.Query(ctx, modelsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if modelName, ok := sample.Metric["model"]; ok {
				models = append(models, string(modelName))
			}
		}
	}

	result := make(map[string]*ProjectMetrics)
	for _, modelName := range models {
		selector := fmt.Sprintf(`project_id=%q, model=%q`, projectID, modelName)
		m, err := q.collect(ctx, projectID, selector)
		if err != nil {
			return nil, fmt.Errorf("failed to query metrics for model %s: %w", modelName, err)
		}
		result[modelName] = m
	}

	return result, nil
}
