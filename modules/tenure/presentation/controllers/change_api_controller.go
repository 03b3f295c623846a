package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/groveops/grove/modules/tenure/domain/changeset"
	"github.com/groveops/grove/modules/tenure/services"
)

// ChangeAPIController exposes the change snapshot protocol: stage, resolve,
// review, execute, discard, acknowledge.
type ChangeAPIController struct {
	snapshots *services.SnapshotService
	execution *services.ExecutionService
	basePath  string
}

func NewChangeAPIController(snapshots *services.SnapshotService, execution *services.ExecutionService) *ChangeAPIController {
	return &ChangeAPIController{
		snapshots: snapshots,
		execution: execution,
		basePath:  "/tenure/api",
	}
}

func (c *ChangeAPIController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.Use(RequireTenant(), ProvideRequestParams())

	router.HandleFunc("/changes", c.Create).Methods(http.MethodPost)
	router.HandleFunc("/changes/{id}", c.Get).Methods(http.MethodGet)
	router.HandleFunc("/changes/{id}", c.Discard).Methods(http.MethodDelete)
	router.HandleFunc("/changes/{id}/resolve", c.Resolve).Methods(http.MethodPost)
	router.HandleFunc("/changes/{id}/diff", c.Diff).Methods(http.MethodGet)
	router.HandleFunc("/changes/{id}/execute", c.Execute).Methods(http.MethodPost)
	router.HandleFunc("/changes/{id}/acknowledge", c.Acknowledge).Methods(http.MethodPost)
	router.HandleFunc("/subjects/{subjectID}/changes/pending", c.ListPending).Methods(http.MethodGet)
	router.HandleFunc("/subjects/{subjectID}/assignments/{assignmentID}/effective-energy", c.EffectiveEnergy).Methods(http.MethodGet)
}

type createChangeRequest struct {
	SubjectID  string          `json:"subject_id"`
	ChangeType string          `json:"change_type"`
	Reason     string          `json:"reason"`
	Mode       string          `json:"mode"`
	Deltas     json.RawMessage `json:"deltas"`
}

func (c *ChangeAPIController) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	creatorID, ok := actorID(w, r)
	if !ok {
		return
	}
	var req createChangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	subjectID, err := parseUUIDField(req.SubjectID)
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "subject_id must be a UUID")
		return
	}
	deltas, err := changeset.UnmarshalDeltas(req.Deltas)
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", err.Error())
		return
	}

	in := services.BuildInput{
		SubjectID:   subjectID,
		CreatedByID: creatorID,
		ChangeType:  changeset.ChangeType(req.ChangeType),
		Reason:      req.Reason,
		Deltas:      deltas,
	}

	var snap *changeset.Snapshot
	switch req.Mode {
	case "", "single":
		snap, err = c.snapshots.BuildWithChanges(r.Context(), tenantID, in)
	case "draft":
		snap, err = c.snapshots.BuildDraft(r.Context(), tenantID, in)
	default:
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "mode must be single or draft")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshotToJSON(*snap))
}

func (c *ChangeAPIController) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "id must be a UUID")
		return
	}
	snap, err := c.snapshots.Get(r.Context(), tenantID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotToJSON(*snap))
}

func (c *ChangeAPIController) Resolve(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "id must be a UUID")
		return
	}
	snap, err := c.snapshots.ResolveData(r.Context(), tenantID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotToJSON(*snap))
}

func (c *ChangeAPIController) Diff(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "id must be a UUID")
		return
	}
	diffs, err := c.snapshots.Diff(r.Context(), tenantID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": diffs})
}

type executeChangeRequest struct {
	EffectiveDate string `json:"effective_date"`
}

func (c *ChangeAPIController) Execute(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "id must be a UUID")
		return
	}

	var req executeChangeRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	var effectiveDate time.Time
	if req.EffectiveDate != "" {
		effectiveDate, err = time.Parse("2006-01-02", req.EffectiveDate)
		if err != nil {
			writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "effective_date must be YYYY-MM-DD")
			return
		}
	}

	res, err := c.execution.Execute(r.Context(), tenantID, services.ExecuteInput{
		SnapshotID:    id,
		ActorID:       actor,
		EffectiveDate: effectiveDate,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotToJSON(res.Snapshot))
}

func (c *ChangeAPIController) Discard(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "id must be a UUID")
		return
	}
	if err := c.snapshots.Discard(r.Context(), tenantID, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (c *ChangeAPIController) Acknowledge(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "id must be a UUID")
		return
	}
	snap, err := c.snapshots.Acknowledge(r.Context(), tenantID, id, actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotToJSON(*snap))
}

// EffectiveEnergy prefills proposal forms: the persisted energy percentage
// with pending snapshots folded in.
func (c *ChangeAPIController) EffectiveEnergy(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	subjectID, err := pathUUID(r, "subjectID")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "subjectID must be a UUID")
		return
	}
	assignmentID, err := pathUUID(r, "assignmentID")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "assignmentID must be a UUID")
		return
	}
	field, err := c.snapshots.EffectiveAssignmentEnergy(r.Context(), tenantID, subjectID, assignmentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, field)
}

func (c *ChangeAPIController) ListPending(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	subjectID, err := pathUUID(r, "subjectID")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "subjectID must be a UUID")
		return
	}
	pending, err := c.snapshots.ListPending(r.Context(), tenantID, subjectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(pending))
	for _, s := range pending {
		out = append(out, snapshotToJSON(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}
