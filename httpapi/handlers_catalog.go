package httpapi

import (
	"net/http"
)

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListItems(r.Context())
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "items": items})
}

func (h *Handler) listSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.catalog.ListSubjects(r.Context())
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "subjects": subjects})
}
