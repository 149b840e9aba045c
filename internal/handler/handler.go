package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dkozyrev/codeshop/internal/infrastructure/auth"
	"github.com/dkozyrev/codeshop/internal/models"
	service "github.com/dkozyrev/codeshop/internal/services"
	pkgerrors "github.com/dkozyrev/codeshop/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type Handler struct {
	store    service.StoreService
	admin    service.AdminService
	validate *validator.Validate
}

func NewHandler(store service.StoreService, admin service.AdminService) *Handler {
	return &Handler{
		store:    store,
		admin:    admin,
		validate: validator.New(),
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	ProductID int64  `json:"product_id,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeBusinessError maps expected failures to specific statuses and reason
// codes; anything unrecognized is an internal failure and deliberately gets
// a generic body so data problems are never echoed to customers.
func (h *Handler) writeBusinessError(w http.ResponseWriter, err error) {
	var oos *pkgerrors.OutOfStockError
	switch {
	case errors.As(err, &oos):
		h.writeJSON(w, http.StatusConflict, errorResponse{
			Error:     err.Error(),
			Reason:    "insufficient_stock",
			ProductID: oos.ProductID,
		})
	case errors.Is(err, pkgerrors.ErrInsufficientBalance):
		h.writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: err.Error(), Reason: "insufficient_credit"})
	case errors.Is(err, pkgerrors.ErrProductInactive):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Reason: "product_inactive"})
	case errors.Is(err, pkgerrors.ErrProductNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Reason: "unknown_product"})
	case errors.Is(err, pkgerrors.ErrRequestAlreadyProcessed):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, pkgerrors.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, pkgerrors.ErrOrderNotFound), errors.Is(err, pkgerrors.ErrNotOrderOwner):
		// Not owned reads 404 like missing ones: don't leak other users' order ids.
		h.writeError(w, http.StatusNotFound, pkgerrors.ErrOrderNotFound)
	default:
		h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/products", h.ListProducts).Methods("GET")
	r.HandleFunc("/products/{id:[0-9]+}", h.GetProduct).Methods("GET")
}

func (h *Handler) RegisterCustomerRoutes(r *mux.Router) {
	handle := func(path string, fn http.HandlerFunc, resource auth.Resource, action auth.Action, methods ...string) {
		r.Handle(path, auth.Require(resource, action)(fn)).Methods(methods...)
	}
	handle("/orders", h.Checkout, auth.ResourceOrders, auth.ActionWrite, "POST")
	handle("/orders", h.ListOrders, auth.ResourceOrders, auth.ActionRead, "GET")
	handle("/orders/{id:[0-9]+}", h.GetOrder, auth.ResourceOrders, auth.ActionRead, "GET")
	handle("/balance", h.GetBalance, auth.ResourceOrders, auth.ActionRead, "GET")
	handle("/credit-requests", h.SubmitCreditRequest, auth.ResourceCreditRequests, auth.ActionWrite, "POST")
	handle("/credit-requests", h.ListMyCreditRequests, auth.ResourceCreditRequests, auth.ActionRead, "GET")
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID, err := h.store.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrUsernameExists) {
			h.writeError(w, http.StatusConflict, err)
		} else if errors.Is(err, pkgerrors.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, err)
		} else {
			h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]int64{"user_id": userID})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.store.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, err)
		} else {
			h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
		return
	}
	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		h.writeBusinessError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, product)
}

type checkoutRequest struct {
	Items []struct {
		ProductID int64 `json:"product_id" validate:"required"`
		Quantity  int   `json:"quantity" validate:"required,min=1,max=100"`
	} `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string `json:"payment_method" validate:"required"`
	RequestID     string `json:"request_id" validate:"required,uuid4"`
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	items := make([]models.CartItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, models.CartItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	receipt, err := h.store.Checkout(r.Context(), userID, items, models.PaymentMethod(req.PaymentMethod), req.RequestID)
	if err != nil {
		h.writeBusinessError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	orders, err := h.store.ListOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}
	role, _ := auth.RoleFrom(r.Context())

	orderID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID, userID, role)
	if err != nil {
		h.writeBusinessError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	balance, err := h.store.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"balance_cents": balance})
}

type creditRequestRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,min=1"`
	ProofURL    string `json:"proof_url" validate:"required,url"`
}

func (h *Handler) SubmitCreditRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	var req creditRequestRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.store.SubmitCreditRequest(r.Context(), userID, req.AmountCents, req.ProofURL)
	if err != nil {
		h.writeBusinessError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) ListMyCreditRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	requests, err := h.store.ListOwnCreditRequests(r.Context(), userID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
		return
	}
	h.writeJSON(w, http.StatusOK, requests)
}
