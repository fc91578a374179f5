package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bestwork/mlm-system/services"
	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 5 << 20 // 5MB

type MemberHandler struct {
	memberService services.MemberService
}

func NewMemberHandler(memberService services.MemberService) *MemberHandler {
	return &MemberHandler{memberService: memberService}
}

func (h *MemberHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	member, err := h.memberService.GetProfile(r.Context(), memberID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"member": member}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MemberHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var input services.UpdateProfileInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	member, err := h.memberService.UpdateProfile(r.Context(), memberID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"member": member}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MemberHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		badRequestResponse(w, r, errors.New("multipart form with an avatar file is required"))
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		badRequestResponse(w, r, errors.New("avatar file is required"))
		return
	}
	defer file.Close()

	member, err := h.memberService.UploadAvatar(r.Context(), memberID, header.Header.Get("Content-Type"), file)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"member": member}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MemberHandler) UpdateBankInfo(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var input services.BankInfoInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.memberService.UpdateBankInfo(r.Context(), memberID, input); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "bank info updated"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MemberHandler) AddBeneficiary(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var input services.BeneficiaryInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	beneficiary, err := h.memberService.AddBeneficiary(r.Context(), memberID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"beneficiary": beneficiary}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MemberHandler) ListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	beneficiaries, err := h.memberService.ListBeneficiaries(r.Context(), memberID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"beneficiaries": beneficiaries}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MemberHandler) RemoveBeneficiary(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	beneficiaryID, err := strconv.Atoi(chi.URLParam(r, "beneficiaryID"))
	if err != nil {
		badRequestResponse(w, r, errors.New("invalid beneficiary ID"))
		return
	}

	if err := h.memberService.RemoveBeneficiary(r.Context(), memberID, beneficiaryID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemberHandler) AddAddress(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var input services.AddressInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	address, err := h.memberService.AddAddress(r.Context(), memberID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"address": address}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MemberHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	addresses, err := h.memberService.ListAddresses(r.Context(), memberID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"addresses": addresses}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MemberHandler) RemoveAddress(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	addressID := chi.URLParam(r, "addressID")
	if addressID == "" {
		badRequestResponse(w, r, errors.New("address ID is required"))
		return
	}

	if err := h.memberService.RemoveAddress(r.Context(), memberID, addressID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
