package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/groveops/grove/modules/tenure/domain/checkin"
	"github.com/groveops/grove/modules/tenure/services"
)

// CheckInAPIController is the self-service surface: employees and managers
// answer and complete their side directly, bypassing the snapshot protocol.
type CheckInAPIController struct {
	checkIns *services.CheckInService
	basePath string
}

func NewCheckInAPIController(checkIns *services.CheckInService) *CheckInAPIController {
	return &CheckInAPIController{checkIns: checkIns, basePath: "/tenure/api"}
}

func (c *CheckInAPIController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.Use(RequireTenant(), ProvideRequestParams())

	router.HandleFunc("/check-ins", c.FindOrCreate).Methods(http.MethodPost)
	router.HandleFunc("/check-ins/{id}/answers", c.SaveAnswers).Methods(http.MethodPatch)
	router.HandleFunc("/check-ins/{id}/complete", c.Complete).Methods(http.MethodPost)
	router.HandleFunc("/check-ins/{id}/uncomplete", c.Uncomplete).Methods(http.MethodPost)
	router.HandleFunc("/check-ins/{id}/official-rating", c.SaveOfficialRating).Methods(http.MethodPost)
	router.HandleFunc("/check-ins/{id}/finalize", c.Finalize).Methods(http.MethodPost)
	router.HandleFunc("/check-ins/{id}/acknowledge", c.Acknowledge).Methods(http.MethodPost)
	router.HandleFunc("/subjects/{subjectID}/check-ins", c.ListOpen).Methods(http.MethodGet)
}

type findOrCreateCheckInRequest struct {
	SubjectID   string `json:"subject_id"`
	DimensionID string `json:"dimension_id"`
	Kind        string `json:"kind"`
}

func (c *CheckInAPIController) FindOrCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	var req findOrCreateCheckInRequest
	if !decodeBody(w, r, &req) {
		return
	}
	subjectID, err := parseUUIDField(req.SubjectID)
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "subject_id must be a UUID")
		return
	}
	dimensionID, err := parseUUIDField(req.DimensionID)
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "dimension_id must be a UUID")
		return
	}

	found, err := c.checkIns.FindOrCreateOpen(r.Context(), tenantID, subjectID, dimensionID, checkin.Kind(req.Kind))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInToJSON(*found))
}

type saveAnswersRequest struct {
	Side         string  `json:"side"`
	Rating       *int    `json:"rating"`
	PrivateNotes *string `json:"private_notes"`
	SharedNotes  *string `json:"shared_notes"`
}

func (c *CheckInAPIController) SaveAnswers(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "id must be a UUID")
		return
	}
	var req saveAnswersRequest
	if !decodeBody(w, r, &req) {
		return
	}

	updated, err := c.checkIns.SaveAnswer(r.Context(), tenantID, services.SaveAnswerInput{
		CheckInID:    id,
		Side:         checkin.Side(req.Side),
		Rating:       req.Rating,
		PrivateNotes: req.PrivateNotes,
		SharedNotes:  req.SharedNotes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInToJSON(*updated))
}

type sideRequest struct {
	Side string `json:"side"`
}

func (c *CheckInAPIController) Complete(w http.ResponseWriter, r *http.Request) {
	c.transitionSide(w, r, c.checkIns.CompleteSide)
}

func (c *CheckInAPIController) Uncomplete(w http.ResponseWriter, r *http.Request) {
	c.transitionSide(w, r, c.checkIns.UncompleteSide)
}

type ratingRequest struct {
	Rating int `json:"rating"`
}

func (c *CheckInAPIController) SaveOfficialRating(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "id must be a UUID")
		return
	}
	var req ratingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, err := c.checkIns.SaveOfficialRating(r.Context(), tenantID, id, req.Rating)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInToJSON(*updated))
}

func (c *CheckInAPIController) Finalize(w http.ResponseWriter, r *http.Request) {
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
	var req ratingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	finalized, err := c.checkIns.Finalize(r.Context(), tenantID, id, req.Rating, actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInToJSON(*finalized))
}

func (c *CheckInAPIController) Acknowledge(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "id must be a UUID")
		return
	}
	acked, err := c.checkIns.Acknowledge(r.Context(), tenantID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInToJSON(*acked))
}

func (c *CheckInAPIController) ListOpen(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	subjectID, err := pathUUID(r, "subjectID")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "subjectID must be a UUID")
		return
	}
	items, err := c.checkIns.ListOpenBySubject(r.Context(), tenantID, subjectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, checkInToJSON(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (c *CheckInAPIController) transitionSide(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, tenantID, checkInID uuid.UUID, side checkin.Side) (*checkin.CheckIn, error),
) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "id must be a UUID")
		return
	}
	var req sideRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, err := fn(r.Context(), tenantID, id, checkin.Side(req.Side))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInToJSON(*updated))
}
