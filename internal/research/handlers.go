// Package research serves the bridge-facing research job API.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/aliuyar1234/ctlplane/internal/bridge"
	"github.com/aliuyar1234/ctlplane/internal/plans"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/aliuyar1234/ctlplane/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Actions accepted by POST /api/v1/research.
const (
	ActionCreate        = "create"
	ActionPause         = "pause"
	ActionResume        = "resume"
	ActionComplete      = "complete"
	ActionDelete        = "delete"
	ActionSubmitFinding = "submit_finding"
)

// Gate decides whether a user may use a plan feature. *plans.Enforcer satisfies it.
type Gate interface {
	EnforceAccess(ctx context.Context, userID uuid.UUID, feature string) (plans.Decision, error)
}

// FindingInput is the finding carried by submit_finding.
type FindingInput struct {
	Title     string `json:"title" validate:"required,max=300"`
	Content   string `json:"content" validate:"required"`
	SourceURL string `json:"source_url" validate:"omitempty,url"`
}

// ActionRequest is the body of POST /api/v1/research.
type ActionRequest struct {
	Action  string        `json:"action" validate:"required,oneof=create pause resume complete delete submit_finding"`
	JobID   string        `json:"job_id"`
	Title   string        `json:"title" validate:"max=300"`
	Query   string        `json:"query" validate:"max=4000"`
	Finding *FindingInput `json:"finding"`
}

// SyncResponse is returned by an incremental sync. DeletedJobIDs is only
// filled when since is given; a full sync simply omits deleted jobs.
type SyncResponse struct {
	Jobs          []store.ResearchJob     `json:"jobs"`
	Findings      []store.ResearchFinding `json:"findings"`
	DeletedJobIDs []uuid.UUID             `json:"deleted_job_ids"`
	SyncedAt      time.Time               `json:"synced_at"`
}

// HandleGet handles GET /api/v1/research?job_id=|since=|status=
func HandleGet(s store.ResearchStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token := bridge.GetToken(ctx)
		q := r.URL.Query()

		if raw := q.Get("job_id"); raw != "" {
			job, err := ownedJob(ctx, s, token.UserID, raw)
			if err != nil {
				apperrors.WriteErr(w, r, err)
				return
			}
			findings, err := s.ListResearchFindings(ctx, []uuid.UUID{job.ID}, nil)
			if err != nil {
				log.Error().Err(err).Msg("Failed to list research findings")
				apperrors.WriteInternalError(w, r, "Failed to list research findings")
				return
			}
			apperrors.WriteJSON(w, http.StatusOK, map[string]any{"job": job, "findings": nonNil(findings)})
			return
		}

		filter := store.ResearchFilter{UserID: token.UserID, Status: q.Get("status")}
		if filter.Status != "" && !validStatus(filter.Status) {
			apperrors.WriteBadRequest(w, r, "status must be one of: active, paused, completed")
			return
		}
		if raw := q.Get("since"); raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "since must be an RFC 3339 timestamp")
				return
			}
			filter.Since = &since
		}

		syncedAt := time.Now().UTC()
		jobs, err := s.ListResearchJobs(ctx, filter)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list research jobs")
			apperrors.WriteInternalError(w, r, "Failed to list research jobs")
			return
		}

		ids := make([]uuid.UUID, len(jobs))
		for i, j := range jobs {
			ids[i] = j.ID
		}
		var findings []store.ResearchFinding
		if len(ids) > 0 {
			findings, err = s.ListResearchFindings(ctx, ids, filter.Since)
			if err != nil {
				log.Error().Err(err).Msg("Failed to list research findings")
				apperrors.WriteInternalError(w, r, "Failed to list research findings")
				return
			}
		}

		deleted := []uuid.UUID{}
		if filter.Since != nil {
			deleted, err = s.ListDeletedResearchJobs(ctx, token.UserID, *filter.Since)
			if err != nil {
				log.Error().Err(err).Msg("Failed to list deleted research jobs")
				apperrors.WriteInternalError(w, r, "Failed to list deleted research jobs")
				return
			}
			if deleted == nil {
				deleted = []uuid.UUID{}
			}
		}

		if jobs == nil {
			jobs = []store.ResearchJob{}
		}
		apperrors.WriteJSON(w, http.StatusOK, SyncResponse{
			Jobs:          jobs,
			Findings:      nonNil(findings),
			DeletedJobIDs: deleted,
			SyncedAt:      syncedAt,
		})
	}
}

// HandlePost handles POST /api/v1/research
func HandlePost(s store.ResearchStore, gate Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token := bridge.GetToken(ctx)

		var req ActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if err := validation.Struct(req); err != nil {
			apperrors.WriteErr(w, r, apperrors.Validation(err.Error()))
			return
		}

		if req.Action == ActionCreate {
			create(w, r, s, gate, token.UserID, req)
			return
		}

		if req.JobID == "" {
			apperrors.WriteErr(w, r, apperrors.Validation("job_id is required"))
			return
		}
		job, err := ownedJob(ctx, s, token.UserID, req.JobID)
		if err != nil {
			apperrors.WriteErr(w, r, err)
			return
		}

		switch req.Action {
		case ActionPause:
			transition(w, r, s, job, store.ResearchActive, store.ResearchPaused)
		case ActionResume:
			transition(w, r, s, job, store.ResearchPaused, store.ResearchActive)
		case ActionComplete:
			transition(w, r, s, job, "", store.ResearchCompleted)
		case ActionDelete:
			if err := s.DeleteResearchJob(ctx, job.ID); err != nil && !errors.Is(err, store.ErrResearchJobNotFound) {
				log.Error().Err(err).Msg("Failed to delete research job")
				apperrors.WriteInternalError(w, r, "Failed to delete research job")
				return
			}
			apperrors.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
		case ActionSubmitFinding:
			submitFinding(w, r, s, job, req.Finding)
		}
	}
}

func create(w http.ResponseWriter, r *http.Request, s store.ResearchStore, gate Gate, userID uuid.UUID, req ActionRequest) {
	ctx := r.Context()

	req.Title = strings.TrimSpace(req.Title)
	req.Query = strings.TrimSpace(req.Query)
	if req.Title == "" || req.Query == "" {
		apperrors.WriteErr(w, r, apperrors.Validation("title and query are required"))
		return
	}

	d, err := gate.EnforceAccess(ctx, userID, plans.FeatureResearch)
	if err != nil {
		log.Error().Err(err).Msg("Failed to check plan access")
		apperrors.WriteInternalError(w, r, "Failed to check plan access")
		return
	}
	if appErr := d.Error(); appErr != nil {
		apperrors.WriteErr(w, r, appErr)
		return
	}

	job := &store.ResearchJob{UserID: userID, Title: req.Title, Query: req.Query, Status: store.ResearchActive}
	if err := s.CreateResearchJob(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to create research job")
		apperrors.WriteInternalError(w, r, "Failed to create research job")
		return
	}

	log.Info().Str("job_id", job.ID.String()).Str("user_id", userID.String()).Msg("Research job created")
	apperrors.WriteJSON(w, http.StatusCreated, map[string]any{"job": job})
}

// transition moves job to "to". An empty "from" accepts any status except "to".
func transition(w http.ResponseWriter, r *http.Request, s store.ResearchStore, job *store.ResearchJob, from, to string) {
	if job.Status == to || (from != "" && job.Status != from) {
		apperrors.WriteErr(w, r, apperrors.BadRequest(fmt.Sprintf("Cannot change a %s job to %s", job.Status, to)))
		return
	}
	updated, err := s.UpdateResearchJobStatus(r.Context(), job.ID, to)
	if err != nil {
		if errors.Is(err, store.ErrResearchJobNotFound) {
			apperrors.WriteNotFound(w, r, "Research job not found")
			return
		}
		log.Error().Err(err).Msg("Failed to update research job")
		apperrors.WriteInternalError(w, r, "Failed to update research job")
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, map[string]any{"job": updated})
}

func submitFinding(w http.ResponseWriter, r *http.Request, s store.ResearchStore, job *store.ResearchJob, in *FindingInput) {
	if in == nil {
		apperrors.WriteErr(w, r, apperrors.Validation("finding is required"))
		return
	}
	if job.Status == store.ResearchCompleted {
		apperrors.WriteBadRequest(w, r, "Cannot add findings to a completed job")
		return
	}

	f := &store.ResearchFinding{
		JobID:     job.ID,
		Title:     strings.TrimSpace(in.Title),
		Content:   in.Content,
		SourceURL: in.SourceURL,
	}
	if err := s.AddResearchFinding(r.Context(), f); err != nil {
		if errors.Is(err, store.ErrResearchJobNotFound) {
			apperrors.WriteNotFound(w, r, "Research job not found")
			return
		}
		log.Error().Err(err).Msg("Failed to add research finding")
		apperrors.WriteInternalError(w, r, "Failed to add research finding")
		return
	}
	apperrors.WriteJSON(w, http.StatusCreated, map[string]any{"finding": f})
}

// ownedJob loads a job of userID. Jobs of other users are reported as missing.
func ownedJob(ctx context.Context, s store.ResearchStore, userID uuid.UUID, rawID string) (*store.ResearchJob, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, apperrors.BadRequest("Invalid job ID")
	}
	job, err := s.GetResearchJob(ctx, id)
	if errors.Is(err, store.ErrResearchJobNotFound) || (err == nil && job.UserID != userID) {
		return nil, apperrors.NotFound("Research job not found")
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to load research job", err)
	}
	return job, nil
}

func validStatus(s string) bool {
	return s == store.ResearchActive || s == store.ResearchPaused || s == store.ResearchCompleted
}

func nonNil(f []store.ResearchFinding) []store.ResearchFinding {
	if f == nil {
		return []store.ResearchFinding{}
	}
	return f
}
