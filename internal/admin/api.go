// internal/admin/api.go
//
// Admin HTTP surface for the refresh pipeline.
//
// Context
// -------
// All endpoints live under /api/refresh and speak a flat JSON envelope:
//
//	{ "success": true,  ... payload fields ... }
//	{ "success": false, "error": "message" }
//
// Besides the operator endpoints, POST /events/ingestion is the inbound
// edge for the ingestion pipeline: it publishes completion envelopes
// onto the process dispatcher, which the refresh listener subscribes to.
//
// Reads (jobs list, dashboard, QA gate) are open to any authenticated
// admin.  Destructive transitions (publish, reject) additionally pass
// through the role ACL; the caller identity arrives in the X-Admin-User
// header, set by the fronting proxy after authentication.
//
// Notes
// -----
// • Input validation happens here, at the boundary, with
//   go-playground/validator; the stores assume validated input.
// • Publish and reject are audited with the request's parsed UA and
//   geolocation (internal/requestinfo).
// • Oxford commas, two spaces after periods.

package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/refinery/internal/acl"
	"github.com/yanizio/refinery/internal/bus"
	"github.com/yanizio/refinery/internal/metrics"
	"github.com/yanizio/refinery/internal/requestinfo"
	"github.com/yanizio/refinery/internal/refresh"
)

// ACL coordinates for the destructive transitions.
const (
	aclComponent = "refresh"
	aclPublish   = "publish"
	aclReject    = "reject"
)

// API bundles the dependencies of the admin handlers.
type API struct {
	db         *sqlx.DB
	store      *refresh.Store
	gate       *refresh.Gate
	listener   *refresh.Listener
	dispatcher *bus.Dispatcher
	depth      func(r *http.Request) (int, error)
	validate   *validator.Validate
	log        *zap.SugaredLogger
}

// New returns an API.  dispatcher receives inbound ingestion-completion
// events; depthFn reports queue depth for the dashboard and may be nil
// when no queue is attached.
func New(db *sqlx.DB, store *refresh.Store, gate *refresh.Gate,
	listener *refresh.Listener, dispatcher *bus.Dispatcher,
	depthFn func(r *http.Request) (int, error),
	log *zap.SugaredLogger) *API {
	if log == nil {
		log = zap.S()
	}
	return &API{
		db:         db,
		store:      store,
		gate:       gate,
		listener:   listener,
		dispatcher: dispatcher,
		depth:      depthFn,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        log,
	}
}

// Routes mounts every endpoint on a fresh sub-router.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestinfo.Enrich)

	r.Post("/events/ingestion", a.handleIngestionEvent)
	r.Post("/trigger", a.handleTrigger)
	r.Get("/jobs", a.handleListJobs)
	r.Get("/dashboard", a.handleDashboard)
	r.Get("/qa-gate", a.handleQAGate)
	r.Post("/jobs/{id}/publish", a.handlePublish)
	r.Post("/jobs/{id}/reject", a.handleReject)
	return r
}

/*──────────────────────────── Envelope ─────────────────────────────────────*/

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeOK(w http.ResponseWriter, fields map[string]any) {
	out := map[string]any{"success": true}
	for k, v := range fields {
		out[k] = v
	}
	writeJSON(w, http.StatusOK, out)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

/*──────────────────────────── Ingestion events ─────────────────────────────*/

// ingestionEvent mirrors bus.IngestionCompleted with boundary validation;
// subscribers trust the envelope fields.
type ingestionEvent struct {
	JobID                   string              `json:"jobId" validate:"required"`
	Source                  string              `json:"source" validate:"required"`
	Status                  string              `json:"status" validate:"required"`
	AffectedFamilies        []string            `json:"affectedFamilies"`
	AffectedFamiliesToFiles map[string][]string `json:"affectedFamiliesToFiles"`
	AffectedDiagnostics     []string            `json:"affectedDiagnostics"`
}

// handleIngestionEvent is the inbound edge of the event-driven path: the
// ingestion pipeline (or an operator replaying a completed run) POSTs
// its completion envelope here, and the dispatcher fans it out to the
// refresh listener.  Delivery is synchronous, so a 200 means every
// subscriber has already seen the event.
func (a *API) handleIngestionEvent(w http.ResponseWriter, r *http.Request) {
	var ev ingestionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.validate.Struct(&ev); err != nil {
		writeErr(w, http.StatusBadRequest, "jobId, source, and status are required")
		return
	}

	a.dispatcher.Publish(r.Context(), bus.IngestionCompleted{
		JobID:                   ev.JobID,
		Source:                  ev.Source,
		Status:                  ev.Status,
		AffectedFamilies:        ev.AffectedFamilies,
		AffectedFamiliesToFiles: ev.AffectedFamiliesToFiles,
		AffectedDiagnostics:     ev.AffectedDiagnostics,
	})
	a.log.Infow("ingestion event accepted",
		"ingestion_job", ev.JobID, "source", ev.Source, "status", ev.Status,
		"families", len(ev.AffectedFamilies))
	writeOK(w, map[string]any{"delivered": true})
}

/*──────────────────────────── Trigger ──────────────────────────────────────*/

type triggerRequest struct {
	Aliases []string `json:"aliases" validate:"required,min=1,dive,required"`
}

// handleTrigger starts a manual refresh for one or more families.  It
// reuses the listener's machinery, so dedup and resolver fan-out behave
// exactly as they do for ingestion-driven refreshes.
func (a *API) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "aliases must be a non-empty list")
		return
	}

	queued := a.listener.TriggerManual(r.Context(), req.Aliases)
	a.log.Infow("manual refresh triggered",
		"admin", r.Header.Get("X-Admin-User"),
		"families", len(req.Aliases), "queued", queued)
	writeOK(w, map[string]any{"queued": queued})
}

/*──────────────────────────── Jobs list ────────────────────────────────────*/

// listParams is validated at the boundary; the store trusts it.
type listParams struct {
	Status      string `validate:"omitempty"`
	PageType    string `validate:"omitempty"`
	FamilyAlias string `validate:"omitempty,max=190"`
	Limit       int    `validate:"min=1,max=200"`
	Offset      int    `validate:"min=0"`
}

// handleListJobs returns jobs newest-first with optional filters.
// limit defaults to 50 and is clamped to 1–200; offset defaults to 0.
func (a *API) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	p := listParams{
		Status:      q.Get("status"),
		PageType:    q.Get("page_type"),
		FamilyAlias: q.Get("family_alias"),
		Limit:       50,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		p.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "offset must be an integer")
			return
		}
		p.Offset = n
	}

	if p.Status != "" && !refresh.ValidStatus(p.Status) {
		writeErr(w, http.StatusBadRequest, "unknown status '"+p.Status+"'")
		return
	}
	if p.PageType != "" && !refresh.ValidPageType(p.PageType) {
		writeErr(w, http.StatusBadRequest, "unknown page type '"+p.PageType+"'")
		return
	}
	if err := a.validate.Struct(&p); err != nil {
		writeErr(w, http.StatusBadRequest, "limit must be 1-200 and offset >= 0")
		return
	}

	jobs, err := a.store.List(r.Context(), refresh.ListFilter{
		Status:      refresh.Status(p.Status),
		PageType:    refresh.PageType(p.PageType),
		FamilyAlias: p.FamilyAlias,
		Limit:       p.Limit,
		Offset:      p.Offset,
	})
	if err != nil {
		a.log.Errorw("list refresh jobs", "err", err)
		writeErr(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeOK(w, map[string]any{"jobs": jobs, "count": len(jobs)})
}

/*──────────────────────────── Dashboard ────────────────────────────────────*/

// handleDashboard aggregates status counts, the most recent jobs, and
// the live queue depth into one payload for the monitoring view.
func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := a.store.CountsByStatus(r.Context())
	if err != nil {
		a.log.Errorw("dashboard status counts", "err", err)
		writeErr(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	recent, err := a.store.Recent(r.Context(), 20)
	if err != nil {
		a.log.Errorw("dashboard recent jobs", "err", err)
		writeErr(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	payload := map[string]any{
		"counts": counts,
		"recent": recent,
	}
	if a.depth != nil {
		if depth, err := a.depth(r); err == nil {
			payload["queue_depth"] = depth
		}
	}
	writeOK(w, payload)
}

/*──────────────────────────── QA gate ──────────────────────────────────────*/

// handleQAGate runs the protected-field comparison and reports the
// verdict.  Read-only; BLOCK is a 200 with verdict "BLOCK", not an
// HTTP error.
func (a *API) handleQAGate(w http.ResponseWriter, r *http.Request) {
	res, err := a.gate.CheckProtectedFields(r.Context())
	if err != nil {
		a.log.Errorw("qa gate check", "err", err)
		writeErr(w, http.StatusInternalServerError, "qa gate check failed")
		return
	}
	writeOK(w, map[string]any{
		"verdict":        res.Verdict,
		"mutation_count": res.MutationCount,
		"details":        res.Details,
	})
}

/*──────────────────────────── Publish / reject ─────────────────────────────*/

// requireAdmin extracts the caller identity and checks the role ACL.
// It writes the error response itself and returns "" on failure.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request, action string) string {
	admin := r.Header.Get("X-Admin-User")
	if admin == "" {
		writeErr(w, http.StatusUnauthorized, "missing X-Admin-User header")
		return ""
	}

	ok, err := acl.AdminAllowed(r.Context(), a.db.DB, admin, aclComponent, action)
	if err != nil {
		a.log.Errorw("acl lookup", "admin", admin, "action", action, "err", err)
		writeErr(w, http.StatusInternalServerError, "permission check failed")
		return ""
	}
	if !ok {
		writeErr(w, http.StatusForbidden, "admin '"+admin+"' may not "+action)
		return ""
	}
	return admin
}

// jobID parses the {id} route parameter.
func jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}

// handlePublish promotes a draft to published, flips the serving flags,
// and captures a fresh baseline so the next refresh is compared against
// the approved content.
func (a *API) handlePublish(w http.ResponseWriter, r *http.Request) {
	admin := a.requireAdmin(w, r, aclPublish)
	if admin == "" {
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	err := a.store.Publish(r.Context(), id, admin)
	var te *refresh.TransitionError
	switch {
	case errors.Is(err, refresh.ErrNotFound):
		writeErr(w, http.StatusNotFound, "job not found")
		return
	case errors.As(err, &te):
		writeErr(w, http.StatusConflict, te.Error())
		return
	case err != nil:
		a.log.Errorw("publish refresh job", "job", id, "err", err)
		writeErr(w, http.StatusInternalServerError, "publish failed")
		return
	}

	metrics.RefreshPublishTotal.Inc()
	a.audit(r, "published", id, admin, "")

	// Baseline capture is best-effort: the publish already committed, and
	// the gate skips pages with no snapshot rather than blocking.
	if job, err := a.store.ByID(r.Context(), id); err == nil {
		if err := a.gate.CaptureBaseline(r.Context(), job.FamilyID, job.PageType); err != nil {
			a.log.Warnw("baseline capture after publish", "job", id, "err", err)
		}
	}

	writeOK(w, map[string]any{"id": id, "status": refresh.StatusPublished})
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// handleReject moves a draft to failed with the operator's reason.
func (a *API) handleReject(w http.ResponseWriter, r *http.Request) {
	admin := a.requireAdmin(w, r, aclReject)
	if admin == "" {
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "reason is required")
		return
	}

	err := a.store.Reject(r.Context(), id, req.Reason)
	var te *refresh.TransitionError
	switch {
	case errors.Is(err, refresh.ErrNotFound):
		writeErr(w, http.StatusNotFound, "job not found")
		return
	case errors.As(err, &te):
		writeErr(w, http.StatusConflict, te.Error())
		return
	case err != nil:
		a.log.Errorw("reject refresh job", "job", id, "err", err)
		writeErr(w, http.StatusInternalServerError, "reject failed")
		return
	}

	metrics.RefreshRejectTotal.Inc()
	a.audit(r, "rejected", id, admin, req.Reason)
	writeOK(w, map[string]any{"id": id, "status": refresh.StatusFailed})
}

// audit logs a destructive transition with the enriched request info.
func (a *API) audit(r *http.Request, verb string, id int64, admin, reason string) {
	kv := []any{"job", id, "admin", admin}
	if reason != "" {
		kv = append(kv, "reason", reason)
	}
	if info := requestinfo.FromContext(r.Context()); info != nil {
		kv = append(kv,
			"ip", info.Geo.IP.String(),
			"country", info.Geo.CountryISO,
			"browser", info.UA.Browser,
			"os", info.UA.OS)
	}
	a.log.Infow("refresh job "+verb, kv...)
}
