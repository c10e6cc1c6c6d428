package api

import (
	"net/http"

	"tienda-be/internal/checkout"
	"tienda-be/internal/payment"
	"tienda-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func provider(r *http.Request) string {
	return r.URL.Query().Get("provider")
}

func (h *Handler) TokenizeCard(w http.ResponseWriter, r *http.Request) {
	var card payment.CardData
	if err := decodeJSON(r, &card); err != nil {
		writeError(w, r, err)
		return
	}
	token, err := h.checkout.TokenizeCard(r.Context(), provider(r), card)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) ProcessCard(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())

	var in checkout.CardPaymentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if in.Provider == "" {
		in.Provider = provider(r)
	}
	if in.Payer.Email == "" {
		in.Payer.Email = utils.GetUserEmailFromContext(r.Context())
	}

	out, err := h.checkout.ProcessCard(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) CreatePreference(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())

	var in checkout.PreferenceInput
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if in.Provider == "" {
		in.Provider = provider(r)
	}
	if in.Payer.Email == "" {
		in.Payer.Email = utils.GetUserEmailFromContext(r.Context())
	}

	out, err := h.checkout.CreatePreference(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, out)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())

	res, err := h.checkout.GetPayment(r.Context(), userID, utils.IsAdmin(r.Context()), provider(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	adminID, _ := utils.GetUserIDFromContext(r.Context())

	var in refundRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
	}

	out, err := h.checkout.Refund(r.Context(), adminID, provider(r), chi.URLParam(r, "id"), in.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.checkout.PaymentMethods(r.Context(), provider(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, methods)
}
