package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bestwork/mlm-system/placement"
	"github.com/bestwork/mlm-system/services"
	"github.com/go-chi/chi/v5"
)

const defaultDownlineDepth = 5

type PlacementHandler struct {
	placementService services.PlacementService
}

func NewPlacementHandler(placementService services.PlacementService) *PlacementHandler {
	return &PlacementHandler{placementService: placementService}
}

// PreviewSlot shows where the next recruit under the caller would land,
// without writing anything.
func (h *PlacementHandler) PreviewSlot(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	slot, err := h.placementService.FindOpenSlot(r.Context(), memberID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"slot": slot}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *PlacementHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	pending, err := h.placementService.ListPending(r.Context(), memberID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"pending": pending}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListDirects returns the caller's personally sponsored members.
func (h *PlacementHandler) ListDirects(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	members, err := h.placementService.ListDirects(r.Context(), memberID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"members": members}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Approve confirms a pending recruit onto an explicit side of the caller's
// node. Only meaningful when the placement mode is approval.
func (h *PlacementHandler) Approve(w http.ResponseWriter, r *http.Request) {
	sponsorID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	recruitID, err := strconv.Atoi(chi.URLParam(r, "memberID"))
	if err != nil {
		badRequestResponse(w, r, errors.New("invalid member ID"))
		return
	}

	var input struct {
		Side string `json:"side"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.placementService.Approve(r.Context(), sponsorID, recruitID, placement.Side(input.Side)); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "placement confirmed"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *PlacementHandler) Downline(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	depth := defaultDownlineDepth
	if raw := r.URL.Query().Get("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			badRequestResponse(w, r, errors.New("depth must be a positive integer"))
			return
		}
		depth = parsed
	}

	tree, err := h.placementService.Downline(r.Context(), memberID, depth)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"downline": tree}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
