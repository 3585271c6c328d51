package transport

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/deploycheck/internal/sandbox"
	"github.com/pendergraft/deploycheck/internal/validation"
)

// Service is the read side of the sandbox node.
type Service interface {
	ChainID() *big.Int
	Factory() common.Address
	Accounts() []common.Address
	Deployments() []sandbox.Deployment
	Deployment(addr common.Address) (*sandbox.Deployment, error)
}

// Handler handles HTTP requests for deployments.
type Handler struct {
	svc Service
}

// NewHandler creates a new deployments HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the inspection routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/accounts", h.handleAccounts)
	r.Get("/deployments", h.handleList)
	r.Get("/deployments/{address}", h.handleGet)
}

func (h *Handler) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := h.svc.Accounts()
	resp := AccountsResponse{
		ChainID:  h.svc.ChainID().Int64(),
		Factory:  h.svc.Factory().Hex(),
		Accounts: make([]string, len(accounts)),
	}
	for i, a := range accounts {
		resp.Accounts[i] = a.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleList pages through deployments in creation order. The cursor is the
// offset of the next item.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	offset := 0
	if c := r.URL.Query().Get("cursor"); c != "" {
		parsed, err := strconv.Atoi(c)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid cursor")
			return
		}
		offset = parsed
	}

	all := h.svc.Deployments()
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}

	resp := DeploymentListResponse{
		Data:       make([]DeploymentResponse, 0, end-offset),
		Pagination: Pagination{Limit: limit, HasMore: end < len(all)},
	}
	for _, d := range all[offset:end] {
		resp.Data = append(resp.Data, FromDomain(d))
	}
	if resp.Pagination.HasMore {
		resp.Pagination.NextCursor = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := validation.ValidateAddress(address); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	deployment, err := h.svc.Deployment(common.HexToAddress(address))
	if err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Deployment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get deployment")
		return
	}

	writeJSON(w, http.StatusOK, FromDomain(*deployment))
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
