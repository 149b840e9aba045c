package handler

import (
	"errors"
	"net/http"

	"github.com/dkozyrev/codeshop/internal/infrastructure/auth"
	"github.com/dkozyrev/codeshop/internal/models"
	pkgerrors "github.com/dkozyrev/codeshop/pkg/errors"
	"github.com/gorilla/mux"
)

func (h *Handler) RegisterAdminRoutes(r *mux.Router) {
	handle := func(path string, fn http.HandlerFunc, resource auth.Resource, action auth.Action, methods ...string) {
		r.Handle(path, auth.Require(resource, action)(fn)).Methods(methods...)
	}
	handle("/products", h.AdminListProducts, auth.ResourceCatalog, auth.ActionManage, "GET")
	handle("/products", h.AdminCreateProduct, auth.ResourceCatalog, auth.ActionManage, "POST")
	handle("/products/{id:[0-9]+}", h.AdminUpdateProduct, auth.ResourceCatalog, auth.ActionManage, "PUT")
	handle("/products/{id:[0-9]+}", h.AdminDeactivateProduct, auth.ResourceCatalog, auth.ActionManage, "DELETE")
	handle("/products/{id:[0-9]+}/codes", h.AdminUploadCodes, auth.ResourceCodes, auth.ActionManage, "POST")
	handle("/codes/{id:[0-9]+}", h.AdminRevealCode, auth.ResourceCodes, auth.ActionRead, "GET")
	handle("/codes/{id:[0-9]+}", h.AdminDeleteCode, auth.ResourceCodes, auth.ActionManage, "DELETE")
	handle("/credit-requests", h.AdminListCreditRequests, auth.ResourceCreditRequests, auth.ActionReview, "GET")
	handle("/credit-requests/{id:[0-9]+}/review", h.AdminReviewCreditRequest, auth.ResourceCreditRequests, auth.ActionReview, "POST")
	handle("/users", h.AdminListUsers, auth.ResourceUsers, auth.ActionRead, "GET")
	handle("/users/{id:[0-9]+}/role", h.AdminChangeRole, auth.ResourceUsers, auth.ActionManage, "PUT")
}

type productRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Platform    string `json:"platform" validate:"required,max=50"`
	PriceCents  int64  `json:"price_cents" validate:"required,min=1"`
	IsActive    bool   `json:"is_active"`
}

func (h *Handler) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.admin.ListAllProducts(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
		return
	}
	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}

	product := &models.Product{
		Name:        req.Name,
		Description: req.Description,
		Platform:    req.Platform,
		PriceCents:  req.PriceCents,
		IsActive:    req.IsActive,
	}
	if err := h.admin.CreateProduct(r.Context(), product); err != nil {
		if errors.Is(err, pkgerrors.ErrProductNameTaken) {
			h.writeError(w, http.StatusConflict, err)
		} else {
			h.writeBusinessError(w, err)
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}

	product := &models.Product{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Platform:    req.Platform,
		PriceCents:  req.PriceCents,
		IsActive:    req.IsActive,
	}
	if err := h.admin.UpdateProduct(r.Context(), product); err != nil {
		if errors.Is(err, pkgerrors.ErrProductNameTaken) {
			h.writeError(w, http.StatusConflict, err)
		} else {
			h.writeBusinessError(w, err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) AdminDeactivateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.admin.DeactivateProduct(r.Context(), id); err != nil {
		h.writeBusinessError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

type uploadCodesRequest struct {
	Codes []string `json:"codes" validate:"required,min=1,max=1000,dive,required"`
}

func (h *Handler) AdminUploadCodes(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req uploadCodesRequest
	if !h.decode(w, r, &req) {
		return
	}

	inserted, err := h.admin.UploadCodes(r.Context(), productID, req.Codes)
	if err != nil {
		h.writeBusinessError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int64{"inserted": inserted})
}

func (h *Handler) AdminRevealCode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	plaintext, err := h.admin.RevealCode(r.Context(), id)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrCodeNotFound) {
			h.writeError(w, http.StatusNotFound, err)
		} else {
			h.writeBusinessError(w, err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"code": plaintext})
}

func (h *Handler) AdminDeleteCode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.admin.DeleteCode(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrCodeNotFound):
			h.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, pkgerrors.ErrCodeSold):
			h.writeError(w, http.StatusConflict, err)
		default:
			h.writeBusinessError(w, err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) AdminListCreditRequests(w http.ResponseWriter, r *http.Request) {
	status := models.CreditRequestStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.CreditRequestPending
	}
	switch status {
	case models.CreditRequestPending, models.CreditRequestApproved, models.CreditRequestRejected:
	default:
		h.writeError(w, http.StatusBadRequest, errors.New("unknown status filter"))
		return
	}

	requests, err := h.admin.ListCreditRequests(r.Context(), status)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
		return
	}
	h.writeJSON(w, http.StatusOK, requests)
}

type reviewRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note" validate:"max=500"`
}

func (h *Handler) AdminReviewCreditRequest(w http.ResponseWriter, r *http.Request) {
	reviewerID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	requestID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req reviewRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.admin.ReviewCreditRequest(r.Context(), requestID, reviewerID, req.Approve, req.Note); err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrCreditRequestNotFound):
			h.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, pkgerrors.ErrCreditRequestReviewed):
			h.writeError(w, http.StatusConflict, err)
		default:
			h.writeBusinessError(w, err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "reviewed"})
}

func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=customer admin super_admin"`
}

func (h *Handler) AdminChangeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req changeRoleRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.admin.ChangeRole(r.Context(), userID, models.Role(req.Role)); err != nil {
		if errors.Is(err, pkgerrors.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, err)
		} else {
			h.writeBusinessError(w, err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
