package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bestwork/mlm-system/services"
	"github.com/go-chi/chi/v5"
)

type OrderHandler struct {
	orderService services.OrderService
}

func NewOrderHandler(orderService services.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var input services.CheckoutInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	order, err := h.orderService.Checkout(r.Context(), memberID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"order": order}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	orderID, err := strconv.Atoi(chi.URLParam(r, "orderID"))
	if err != nil {
		badRequestResponse(w, r, errors.New("invalid order ID"))
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), memberID, orderID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"order": order}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	orders, err := h.orderService.ListOrders(r.Context(), memberID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"orders": orders}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
