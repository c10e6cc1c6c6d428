package api

import (
	"net/http"

	"tienda-be/internal/apperr"
	"tienda-be/internal/utils"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseInt64(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, r, apperr.WithFields(apperr.InvalidInput, "invalid order id", "id"))
		return
	}
	userID, _ := utils.GetUserIDFromContext(r.Context())

	o, err := h.orders.GetForUser(r.Context(), id, userID, utils.IsAdmin(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, o)
}
