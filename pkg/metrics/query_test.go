package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePrometheus answers instant queries with canned vector values keyed on
// substrings of the PromQL expression.
func fakePrometheus(t *testing.T, answers map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		query := r.Form.Get("query")

		for substr, body := range answers {
			if strings.Contains(query, substr) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":[%s]}}`, body)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
	}))
}

func TestGetProjectMetrics(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		`type="prompt"`:     `{"metric":{},"value":[1700000000,"1200"]}`,
		`type="completion"`: `{"metric":{},"value":[1700000000,"800"]}`,
		"llm_costs_total":   `{"metric":{},"value":[1700000000,"0.125"]}`,
	})
	defer srv.Close()

	svc, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	m, err := svc.GetProjectMetrics(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "proj-1", m.ProjectID)
	assert.Equal(t, int64(1200), m.PromptTokens)
	assert.Equal(t, int64(800), m.CompletionTokens)
	assert.Equal(t, int64(2000), m.TotalTokens)
	assert.InDelta(t, 0.125, m.TotalCost, 1e-9)
}

func TestGetProjectMetricsNoData(t *testing.T) {
	srv := fakePrometheus(t, nil)
	defer srv.Close()

	svc, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	m, err := svc.GetProjectMetrics(context.Background(), "proj-missing")
	require.NoError(t, err)
	assert.Zero(t, m.TotalTokens)
	assert.Zero(t, m.TotalCost)
}

func TestGetProjectMetricsByAgent(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		"group by (agent_type)": `{"metric":{"agent_type":"IDEATION"},"value":[1700000000,"1"]},{"metric":{"agent_type":"REFINEMENT"},"value":[1700000000,"1"]}`,
		`type="prompt"`:         `{"metric":{},"value":[1700000000,"500"]}`,
		`type="completion"`:     `{"metric":{},"value":[1700000000,"300"]}`,
	})
	defer srv.Close()

	svc, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	byAgent, err := svc.GetProjectMetricsByAgent(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, byAgent, 2)
	assert.Contains(t, byAgent, "IDEATION")
	assert.Contains(t, byAgent, "REFINEMENT")
	assert.Equal(t, int64(800), byAgent["IDEATION"].TotalTokens)
}
