package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bestwork/mlm-system/services"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	cartService services.CartService
}

func NewCartHandler(cartService services.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	cart, err := h.cartService.Get(r.Context(), memberID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"cart": cart}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SetItem sets the quantity of a product in the cart; zero removes the line.
func (h *CartHandler) SetItem(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var input struct {
		ProductID int `json:"product_id"`
		Quantity  int `json:"quantity"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	cart, err := h.cartService.SetItem(r.Context(), memberID, input.ProductID, input.Quantity)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"cart": cart}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	productID, err := strconv.Atoi(chi.URLParam(r, "productID"))
	if err != nil {
		badRequestResponse(w, r, errors.New("invalid product ID"))
		return
	}

	cart, err := h.cartService.RemoveItem(r.Context(), memberID, productID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"cart": cart}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	if err := h.cartService.Clear(r.Context(), memberID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
