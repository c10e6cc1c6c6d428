package api

import (
	"context"
	"net/http"

	"tienda-be/internal/apperr"
	"tienda-be/internal/auth"
	"tienda-be/internal/cart"
	"tienda-be/internal/utils"
)

var errNoCartOwner = apperr.New(apperr.InvalidInput, "sign in or send an X-Cart-Session header")

// cartOwner is the signed-in user, else the anonymous session.
func cartOwner(r *http.Request) (cart.Owner, error) {
	if userID, ok := utils.GetUserIDFromContext(r.Context()); ok {
		return cart.UserOwner(userID), nil
	}
	if session := auth.ExtractCartSession(r); session != "" {
		return cart.GuestOwner(session), nil
	}
	return cart.Owner{}, errNoCartOwner
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	owner, err := cartOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.GetCart(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) AddCartLine(w http.ResponseWriter, r *http.Request) {
	h.mutateCart(w, r, h.carts.AddLine)
}

func (h *Handler) UpdateCartLine(w http.ResponseWriter, r *http.Request) {
	h.mutateCart(w, r, h.carts.UpdateQuantity)
}

func (h *Handler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	owner, err := cartOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in cart.LineInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.RemoveLine(r.Context(), owner, in.Key())
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}

type lineMutation func(ctx context.Context, owner cart.Owner, in cart.LineInput) (*cart.Cart, error)

func (h *Handler) mutateCart(w http.ResponseWriter, r *http.Request, fn lineMutation) {
	owner, err := cartOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in cart.LineInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := fn(r.Context(), owner, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}

type mergeRequest struct {
	SessionID string           `json:"session_id"`
	Lines     []cart.LineInput `json:"lines"`
}

// MergeCart folds the anonymous cart (stored or sent by the client) into
// the signed-in user's cart.
func (h *Handler) MergeCart(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())

	var in mergeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if in.SessionID == "" {
		in.SessionID = auth.ExtractCartSession(r)
	}

	c, err := h.carts.MergeOnLogin(r.Context(), userID, in.SessionID, in.Lines)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}
