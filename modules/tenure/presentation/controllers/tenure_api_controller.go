package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/groveops/grove/modules/tenure/domain/interval"
	"github.com/groveops/grove/modules/tenure/services"
)

// TenureAPIController serves read-only tenure history. Writes only happen
// through change execution or check-in self-service.
type TenureAPIController struct {
	tenures  *services.TenureService
	basePath string
}

func NewTenureAPIController(tenures *services.TenureService) *TenureAPIController {
	return &TenureAPIController{tenures: tenures, basePath: "/tenure/api"}
}

func (c *TenureAPIController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.Use(RequireTenant(), ProvideRequestParams())

	router.HandleFunc("/subjects/{subjectID}/tenures", c.List).Methods(http.MethodGet)
	router.HandleFunc("/subjects/{subjectID}/tenures/{dimensionID}/open", c.Open).Methods(http.MethodGet)
	router.HandleFunc("/subjects/{subjectID}/tenures/{dimensionID}/latest", c.MostRecent).Methods(http.MethodGet)
}

func (c *TenureAPIController) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	subjectID, err := pathUUID(r, "subjectID")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "subjectID must be a UUID")
		return
	}
	kind := interval.Kind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "kind must be employment, assignment, or position")
		return
	}
	items, err := c.tenures.ListBySubject(r.Context(), tenantID, subjectID, kind)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, t := range items {
		out = append(out, tenureToJSON(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (c *TenureAPIController) Open(w http.ResponseWriter, r *http.Request) {
	c.lookup(w, r, c.tenures.OpenInterval)
}

func (c *TenureAPIController) MostRecent(w http.ResponseWriter, r *http.Request) {
	c.lookup(w, r, c.tenures.MostRecent)
}

func (c *TenureAPIController) lookup(w http.ResponseWriter, r *http.Request, fn lookupFunc) {
	tenantID, ok := useTenant(w, r)
	if !ok {
		return
	}
	subjectID, err := pathUUID(r, "subjectID")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "subjectID must be a UUID")
		return
	}
	dimensionID, err := pathUUID(r, "dimensionID")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "dimensionID must be a UUID")
		return
	}
	kind := interval.Kind(r.URL.Query().Get("kind"))

	t, err := fn(r.Context(), tenantID, subjectID, dimensionID, kind)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if t == nil {
		writeAPIError(w, r, http.StatusNotFound, "TENURE_NOT_FOUND", "no matching tenure")
		return
	}
	writeJSON(w, http.StatusOK, tenureToJSON(*t))
}

type lookupFunc = func(ctx context.Context, tenantID, subjectID, dimensionID uuid.UUID, kind interval.Kind) (*interval.Tenure, error)
