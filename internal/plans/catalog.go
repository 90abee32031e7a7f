package plans

import (
	"net/http"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/rs/zerolog/log"
)

// Feature keys.
const (
	FeatureManagedAI  = "managed_ai"
	FeatureResearch   = "research"
	FeatureTeamAgents = "team_agents"
	FeatureSSO        = "sso"
)

// DefaultPlans mirrors the rows seeded by the initial migration. The memory
// store is seeded with it.
func DefaultPlans() []store.Plan {
	return []store.Plan{
		{ID: "free", Name: "Free", IsActive: true, Features: []string{}},
		{ID: "pro", Name: "Pro", IsActive: true, Features: []string{FeatureManagedAI, FeatureResearch}},
		{ID: "team", Name: "Team", IsActive: true, RequiresOrganization: true,
			Features: []string{FeatureManagedAI, FeatureResearch, FeatureTeamAgents}},
		{ID: "enterprise", Name: "Enterprise", IsActive: true, RequiresOrganization: true,
			Features: []string{FeatureManagedAI, FeatureResearch, FeatureTeamAgents, FeatureSSO}},
		{ID: "legacy", Name: "Legacy", IsActive: false, Features: []string{FeatureManagedAI}},
	}
}

// HandleList handles GET /api/superadmin/plans.
func HandleList(s store.PlanStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.ListPlans(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list plans")
			apperrors.WriteInternalError(w, r, "Failed to list plans")
			return
		}
		if list == nil {
			list = []store.Plan{}
		}
		apperrors.WriteJSON(w, http.StatusOK, map[string]any{"plans": list})
	}
}
