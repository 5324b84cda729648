package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voyagecover/claims-intake/internal/claims"
	"github.com/voyagecover/claims-intake/internal/domain"
)

// claimResponse is the JSON shape for a claim.
type claimResponse struct {
	ID                  string     `json:"id"`
	ClaimNumber         string     `json:"claim_number"`
	CustomerName        string     `json:"customer_name"`
	CustomerEmail       string     `json:"customer_email"`
	PolicyNumber        *string    `json:"policy_number"`
	ClaimType           string     `json:"claim_type"`
	IncidentDate        *string    `json:"incident_date"`
	IncidentDescription string     `json:"incident_description"`
	EstimatedAmount     *float64   `json:"estimated_amount"`
	Status              string     `json:"status"`
	ExtractedBy         string     `json:"extracted_by"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	ClosedAt            *time.Time `json:"closed_at,omitempty"`
}

func toClaimResponse(c *domain.Claim) claimResponse {
	resp := claimResponse{
		ID:                  c.ID,
		ClaimNumber:         c.ClaimNumber,
		CustomerName:        c.CustomerName,
		CustomerEmail:       c.CustomerEmail,
		PolicyNumber:        c.PolicyNumber,
		ClaimType:           string(c.ClaimType),
		IncidentDescription: c.IncidentDescription,
		EstimatedAmount:     c.EstimatedAmount,
		Status:              string(c.Status),
		ExtractedBy:         string(c.ExtractedBy),
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
		ClosedAt:            c.ClosedAt,
	}
	if c.IncidentDate != nil {
		d := c.IncidentDate.Format("2006-01-02")
		resp.IncidentDate = &d
	}
	return resp
}

type statusUpdateResponse struct {
	OldStatus *string   `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Reason    string    `json:"reason"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

type createClaimRequest struct {
	CustomerName        string   `json:"customer_name"`
	CustomerEmail       string   `json:"customer_email"`
	PolicyNumber        *string  `json:"policy_number"`
	ClaimType           string   `json:"claim_type"`
	IncidentDate        string   `json:"incident_date"`
	IncidentDescription string   `json:"incident_description"`
	EstimatedAmount     *float64 `json:"estimated_amount"`
}

// CreateClaim handles POST /claims: the structured web-form submission path.
func (h *Handlers) CreateClaim(w http.ResponseWriter, r *http.Request) {
	var req createClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	if req.CustomerEmail == "" {
		respondError(w, http.StatusBadRequest, "customer_email is required")
		return
	}
	if strings.TrimSpace(req.IncidentDescription) == "" {
		respondError(w, http.StatusBadRequest, "incident_description is required")
		return
	}

	fields := domain.ExtractedFields{
		CustomerName:        strings.TrimSpace(req.CustomerName),
		PolicyNumber:        req.PolicyNumber,
		ClaimType:           domain.ParseClaimType(req.ClaimType),
		IncidentDescription: strings.TrimSpace(req.IncidentDescription),
		EstimatedAmount:     req.EstimatedAmount,
		Provenance:          domain.ProvenanceManual,
	}
	if req.IncidentDate != "" {
		t, err := time.Parse("2006-01-02", req.IncidentDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "incident_date must be YYYY-MM-DD")
			return
		}
		fields.IncidentDate = &t
	}

	claim, err := h.claims.CreateFromForm(r.Context(), fields, req.CustomerEmail)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create claim")
		return
	}
	respondJSON(w, http.StatusCreated, toClaimResponse(claim))
}

// ListClaims handles GET /claims with optional status/limit/offset filters.
func (h *Handlers) ListClaims(w http.ResponseWriter, r *http.Request) {
	f := claims.ListFilter{}
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.ClaimStatus(strings.ToUpper(s))
		if !claims.ValidStatus(status) {
			respondError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
		f.Status = status
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			f.Offset = n
		}
	}

	list, total, err := h.claims.List(r.Context(), f)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list claims")
		return
	}

	out := make([]claimResponse, 0, len(list))
	for i := range list {
		out = append(out, toClaimResponse(&list[i]))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"claims": out,
		"total":  total,
	})
}

// GetClaim handles GET /claims/{id}: the claim plus its documents and
// status history.
func (h *Handlers) GetClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claim, err := h.claims.Get(r.Context(), id)
	if errors.Is(err, claims.ErrNotFound) {
		respondError(w, http.StatusNotFound, "claim not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load claim")
		return
	}

	documents, err := h.documents.ForClaim(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load documents")
		return
	}

	history, err := h.claims.History(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	hist := make([]statusUpdateResponse, 0, len(history))
	for _, u := range history {
		entry := statusUpdateResponse{
			NewStatus: string(u.NewStatus),
			Reason:    u.Reason,
			Actor:     u.Actor,
			CreatedAt: u.CreatedAt,
		}
		if u.OldStatus != nil {
			s := string(*u.OldStatus)
			entry.OldStatus = &s
		}
		hist = append(hist, entry)
	}

	docsOut := make([]documentResponse, 0, len(documents))
	for i := range documents {
		entry := toDocumentResponse(&documents[i])
		res, err := h.documents.ExtractionResult(r.Context(), documents[i].ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load documents")
			return
		}
		entry.OCRResult = toOCRResultResponse(res)
		docsOut = append(docsOut, entry)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"claim":          toClaimResponse(claim),
		"documents":      docsOut,
		"status_history": hist,
	})
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// UpdateClaimStatus handles PUT /claims/{id}/status. Invalid moves return
// 422 with the allowed transitions so the caller can self-correct.
func (h *Handlers) UpdateClaimStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	target := domain.ClaimStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if target == "" {
		respondError(w, http.StatusBadRequest, "status is required")
		return
	}

	claim, err := h.claims.Transition(r.Context(), id, target, req.Reason, req.Actor)
	if errors.Is(err, claims.ErrNotFound) {
		respondError(w, http.StatusNotFound, "claim not found")
		return
	}
	if errors.Is(err, claims.ErrInvalidTransition) {
		current, gerr := h.claims.Get(r.Context(), id)
		resp := map[string]interface{}{"error": "invalid status transition"}
		if gerr == nil {
			allowed := claims.AllowedTransitions(current.Status)
			names := make([]string, 0, len(allowed))
			for _, a := range allowed {
				names = append(names, string(a))
			}
			resp["current_status"] = string(current.Status)
			resp["allowed"] = names
		}
		respondJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update status")
		return
	}

	// The notification is best-effort, but the caller gets to know whether
	// the customer actually heard about the change.
	emailSent := false
	if h.notifier != nil {
		emailSent = h.notifier.StatusChanged(r.Context(), claim, req.Reason)
	}
	respondJSON(w, http.StatusOK, struct {
		claimResponse
		EmailSent bool `json:"email_sent"`
	}{toClaimResponse(claim), emailSent})
}
