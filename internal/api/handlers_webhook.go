package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/voyagecover/claims-intake/internal/domain"
	"github.com/voyagecover/claims-intake/internal/pkg/logger"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw request body.
const signatureHeader = "X-Webhook-Signature"

// webhookAttachment mirrors the provider's attachment metadata.
type webhookAttachment struct {
	MessageID    string `json:"message_id"`
	AttachmentID string `json:"attachment_id"`
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
}

// webhookPayload is the push-notification form of an inbound email.
type webhookPayload struct {
	ProviderID  string              `json:"provider_id"`
	ThreadID    string              `json:"thread_id"`
	From        string              `json:"from"`
	To          string              `json:"to"`
	Subject     string              `json:"subject"`
	BodyText    string              `json:"body_text"`
	BodyHTML    string              `json:"body_html"`
	ReceivedAt  time.Time           `json:"received_at"`
	Attachments []webhookAttachment `json:"attachments"`
}

// EmailWebhook handles POST /email-webhook. Apart from a bad signature it
// always answers 200: the provider must never retry-storm over our internal
// failures, which the poller path will pick up anyway.
func (h *Handlers) EmailWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": "error", "reason": "unreadable body"})
		return
	}

	if h.webhookSecret != "" && !validSignature(body, r.Header.Get(signatureHeader), h.webhookSecret) {
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.ProviderID == "" {
		logger.Warn("webhook payload unparseable")
		respondJSON(w, http.StatusOK, map[string]string{"status": "error", "reason": "invalid payload"})
		return
	}

	if payload.ReceivedAt.IsZero() {
		payload.ReceivedAt = time.Now().UTC()
	}
	msg := &domain.InboundMessage{
		ProviderID:  payload.ProviderID,
		ThreadID:    payload.ThreadID,
		FromAddress: payload.From,
		ToAddress:   payload.To,
		Subject:     payload.Subject,
		BodyText:    payload.BodyText,
		BodyHTML:    payload.BodyHTML,
		ReceivedAt:  payload.ReceivedAt,
	}
	for _, a := range payload.Attachments {
		mid := a.MessageID
		if mid == "" {
			mid = payload.ProviderID
		}
		msg.Attachments = append(msg.Attachments, domain.AttachmentRef{
			MessageID:    mid,
			AttachmentID: a.AttachmentID,
			Filename:     a.Filename,
			MimeType:     a.MimeType,
			SizeBytes:    a.SizeBytes,
		})
	}

	outcome, err := h.pipeline.ProcessMessage(r.Context(), msg)
	if err != nil {
		logger.Error("webhook processing failed", "provider_id", msg.ProviderID, "error", err.Error())
		respondJSON(w, http.StatusOK, map[string]string{"status": "error", "reason": "processing failed"})
		return
	}

	resp := map[string]interface{}{
		"status":      "success",
		"disposition": string(outcome.Disposition),
		"duplicate":   outcome.Duplicate,
	}
	if outcome.Claim != nil {
		resp["claim_number"] = outcome.Claim.ClaimNumber
	}
	respondJSON(w, http.StatusOK, resp)
}

func validSignature(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HealthCheck handles GET /health with a database liveness probe.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if h.db != nil {
		resp["database"] = pingStatus(r, h.db)
	}
	respondJSON(w, http.StatusOK, resp)
}

func pingStatus(r *http.Request, db *sql.DB) string {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return "unreachable"
	}
	return "ok"
}
