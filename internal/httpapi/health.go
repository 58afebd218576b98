package httpapi

import (
	"net/http"

	"draftflow/pkg/agent"
	"draftflow/pkg/cache"
	"draftflow/pkg/version"
)

// HealthResponse reports service liveness plus the state of the moving
// parts operators care about: agent availability, circuit breakers, and
// response cache effectiveness.
type HealthResponse struct {
	Status   string                      `json:"status"`
	Version  string                      `json:"version"`
	Agents   map[agent.Type]agent.Health `json:"agents,omitempty"`
	Breakers map[string]string           `json:"breakers,omitempty"`
	Cache    *cacheHealth                `json:"cache,omitempty"`
}

type cacheHealth struct {
	Stats   cache.Stats `json:"stats"`
	HitRate float64     `json:"hit_rate"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok", Version: version.Version}

		if s.deps.Registry != nil {
			resp.Agents = s.deps.Registry.Health()
			for _, h := range resp.Agents {
				if h.Degraded || !h.Available {
					resp.Status = "degraded"
				}
			}
		}
		if s.deps.Factory != nil {
			resp.Breakers = make(map[string]string)
			for name, state := range s.deps.Factory.BreakerStates() {
				resp.Breakers[name] = state.String()
			}
		}
		if s.deps.Cache != nil {
			stats := s.deps.Cache.GetStats()
			resp.Cache = &cacheHealth{Stats: stats, HitRate: stats.HitRate()}
		}

		writeOK(w, resp)
	}
}
