package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagecover/claims-intake/internal/claims"
	"github.com/voyagecover/claims-intake/internal/docs"
	"github.com/voyagecover/claims-intake/internal/domain"
	"github.com/voyagecover/claims-intake/internal/intake"
	"github.com/voyagecover/claims-intake/internal/ocr"
)

// In-memory claim repository

type stubClaimRepo struct {
	mu       sync.Mutex
	claims   map[string]*domain.Claim
	bySource map[string]string
	history  map[string][]domain.StatusUpdate
}

func newStubClaimRepo() *stubClaimRepo {
	return &stubClaimRepo{
		claims:   make(map[string]*domain.Claim),
		bySource: make(map[string]string),
		history:  make(map[string][]domain.StatusUpdate),
	}
}

func (r *stubClaimRepo) Create(ctx context.Context, c *domain.Claim, initial *domain.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySource[c.SourceMessageID]; ok {
		return claims.ErrDuplicateSourceMessage
	}
	cp := *c
	r.claims[c.ID] = &cp
	r.bySource[c.SourceMessageID] = c.ID
	r.history[c.ID] = append(r.history[c.ID], *initial)
	return nil
}

func (r *stubClaimRepo) ByID(ctx context.Context, id string) (*domain.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[id]
	if !ok {
		return nil, claims.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *stubClaimRepo) BySourceMessage(ctx context.Context, providerID string) (*domain.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySource[providerID]
	if !ok {
		return nil, claims.ErrNotFound
	}
	cp := *r.claims[id]
	return &cp, nil
}

func (r *stubClaimRepo) List(ctx context.Context, f claims.ListFilter) ([]domain.Claim, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Claim
	for _, c := range r.claims {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (r *stubClaimRepo) Transition(ctx context.Context, claimID string, to domain.ClaimStatus, reason, actor string) (*domain.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[claimID]
	if !ok {
		return nil, claims.ErrNotFound
	}
	if !claims.CanTransition(c.Status, to) {
		return nil, claims.ErrInvalidTransition
	}
	old := c.Status
	now := time.Now().UTC()
	c.Status = to
	c.UpdatedAt = now
	if to == domain.StatusClosed {
		c.ClosedAt = &now
	}
	r.history[claimID] = append(r.history[claimID], domain.StatusUpdate{
		ClaimID: claimID, OldStatus: &old, NewStatus: to,
		Reason: reason, Actor: actor, CreatedAt: now,
	})
	cp := *c
	return &cp, nil
}

func (r *stubClaimRepo) AppendNote(ctx context.Context, claimID, reason, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[claimID]
	if !ok {
		return claims.ErrNotFound
	}
	old := c.Status
	r.history[claimID] = append(r.history[claimID], domain.StatusUpdate{
		ClaimID: claimID, OldStatus: &old, NewStatus: c.Status,
		Reason: reason, Actor: actor, CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (r *stubClaimRepo) StatusHistory(ctx context.Context, claimID string) ([]domain.StatusUpdate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.StatusUpdate(nil), r.history[claimID]...), nil
}

// In-memory document store, doubling as the OCR store

type stubDocStore struct {
	mu      sync.Mutex
	docs    map[string]*domain.Document
	byClaim map[string][]string
	results map[string]*domain.OCRResult
}

func newStubDocStore() *stubDocStore {
	return &stubDocStore{
		docs:    make(map[string]*domain.Document),
		byClaim: make(map[string][]string),
		results: make(map[string]*domain.OCRResult),
	}
}

func (s *stubDocStore) Create(ctx context.Context, d *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.docs[d.ID] = &cp
	s.byClaim[d.ClaimID] = append(s.byClaim[d.ClaimID], d.ID)
	return nil
}

func (s *stubDocStore) ByID(ctx context.Context, id string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, docs.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *stubDocStore) ByClaim(ctx context.Context, claimID string) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Document
	for _, id := range s.byClaim[claimID] {
		out = append(out, *s.docs[id])
	}
	return out, nil
}

func (s *stubDocStore) ClaimPendingBatch(ctx context.Context, limit int) ([]domain.Document, error) {
	return nil, nil
}

func (s *stubDocStore) SaveResult(ctx context.Context, res *domain.OCRResult, status domain.OCRStatus) error {
	return nil
}

func (s *stubDocStore) OCRResult(ctx context.Context, documentID string) (*domain.OCRResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[documentID], nil
}

func (s *stubDocStore) MarkForReprocess(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[documentID]
	if !ok || d.StorageKey == nil {
		return docs.ErrNotFound
	}
	d.OCRStatus = domain.OCRPending
	return nil
}

// Blob store with a failure switch

type stubBlobStore struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool
}

func newStubBlobStore() *stubBlobStore { return &stubBlobStore{data: make(map[string][]byte)} }

func (b *stubBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return "", errors.New("bucket unreachable")
	}
	b.data[key] = data
	return key, nil
}

func (b *stubBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return d, nil
}

func (b *stubBlobStore) Delete(ctx context.Context, key string) error { return nil }

// Message store for the webhook pipeline

type stubMessageStore struct {
	mu       sync.Mutex
	recorded map[string]*domain.MessageRecord
}

func newStubMessageStore() *stubMessageStore {
	return &stubMessageStore{recorded: make(map[string]*domain.MessageRecord)}
}

func (s *stubMessageStore) Processed(ctx context.Context, providerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recorded[providerID]
	return ok, nil
}

func (s *stubMessageStore) Record(ctx context.Context, rec *domain.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded[rec.ProviderID] = rec
	return nil
}

func (s *stubMessageStore) DeadLetter(ctx context.Context, providerID string, raw []byte, reason string) error {
	return nil
}

func (s *stubMessageStore) EarlierMessageInThread(ctx context.Context, threadID string, before time.Time) (*domain.MessageRecord, error) {
	return nil, nil
}

func (s *stubMessageStore) LatestClaimBySender(ctx context.Context, sender string) (string, error) {
	return "", nil
}

type stubLLM struct{}

func (stubLLM) Extract(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("model unavailable")
}

func (stubLLM) ExtractFromImage(ctx context.Context, prompt string, data []byte, mimeType string) (string, error) {
	return "", errors.New("model unavailable")
}

type recordingNotifier struct {
	mu      sync.Mutex
	changed []string
	fail    bool
}

func (n *recordingNotifier) ClaimReceived(ctx context.Context, claim *domain.Claim) bool { return true }

func (n *recordingNotifier) StatusChanged(ctx context.Context, claim *domain.Claim, reason string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, string(claim.Status))
	return !n.fail
}

type testEnv struct {
	handler  http.Handler
	claims   *claims.Service
	docStore *stubDocStore
	blobs    *stubBlobStore
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, webhookSecret string) *testEnv {
	t.Helper()

	repo := newStubClaimRepo()
	claimSvc := claims.NewService(repo, claims.NewNumberGenerator("CLAIM"))

	docStore := newStubDocStore()
	blobs := newStubBlobStore()
	docSvc := docs.NewService(docStore, blobs, nil)

	messages := newStubMessageStore()
	model := stubLLM{}
	correlator := intake.NewCorrelator(messages, model, time.Second)
	extractor := intake.NewExtractor(model, time.Second)
	notifier := &recordingNotifier{}
	pipeline := intake.NewPipeline(messages, correlator, extractor, claimSvc, docSvc, notifier)

	ocrWorker := ocr.NewWorker(docStore, blobs, model, 10, time.Second)

	h := NewHandlers(claimSvc, docSvc, ocrWorker, pipeline, notifier, nil, webhookSecret)
	return &testEnv{
		handler:  SetupRoutes(h),
		claims:   claimSvc,
		docStore: docStore,
		blobs:    blobs,
		notifier: notifier,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedClaim(t *testing.T) *domain.Claim {
	t.Helper()
	c, err := e.claims.CreateFromForm(context.Background(), domain.ExtractedFields{
		CustomerName:        "Maria Garcia",
		ClaimType:           domain.TypeBaggageDelay,
		IncidentDescription: "suitcase arrived two days late",
		Provenance:          domain.ProvenanceManual,
	}, "maria@example.com")
	require.NoError(t, err)
	return c
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateClaimEndpoint(t *testing.T) {
	env := newTestEnv(t, "")

	body := []byte(`{
		"customer_name": "Maria Garcia",
		"customer_email": "maria@example.com",
		"claim_type": "BAGGAGE_DELAY",
		"incident_date": "2026-03-10",
		"incident_description": "suitcase arrived two days late",
		"estimated_amount": 350.00
	}`)
	rec := env.do(t, http.MethodPost, "/claims", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	assert.Regexp(t, `^CLAIM-\d{8}-\d{4}$`, resp["claim_number"])
	assert.Equal(t, "INITIAL_NOTIFICATION", resp["status"])
	assert.Equal(t, "BAGGAGE_DELAY", resp["claim_type"])
	assert.Equal(t, "manual", resp["extracted_by"])
	assert.Equal(t, "2026-03-10", resp["incident_date"])
}

func TestCreateClaimValidation(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"missing email", `{"incident_description": "lost bag"}`},
		{"missing description", `{"customer_email": "a@b.com"}`},
		{"bad incident date", `{"customer_email": "a@b.com", "incident_description": "x", "incident_date": "10/03/2026"}`},
		{"bad json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/claims", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetClaimEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	c := env.seedClaim(t)

	rec := env.do(t, http.MethodGet, "/claims/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	claim := resp["claim"].(map[string]interface{})
	assert.Equal(t, c.ClaimNumber, claim["claim_number"])

	history := resp["status_history"].([]interface{})
	require.Len(t, history, 1)
	first := history[0].(map[string]interface{})
	assert.Nil(t, first["old_status"])
	assert.Equal(t, "INITIAL_NOTIFICATION", first["new_status"])
}

// Claim detail carries each document's extraction output once OCR has run,
// and omits the field for documents still waiting.
func TestGetClaimIncludesOCRResults(t *testing.T) {
	env := newTestEnv(t, "")
	c := env.seedClaim(t)

	key := "claims/" + c.ID + "/doc/receipt.pdf"
	done := &domain.Document{
		ID: "doc-done", ClaimID: c.ID, Filename: "receipt.pdf", MimeType: "application/pdf",
		StorageKey: &key, Source: domain.SourceWebForm, OCRStatus: domain.OCRCompleted,
		CreatedAt: time.Now().UTC(),
	}
	waiting := &domain.Document{
		ID: "doc-waiting", ClaimID: c.ID, Filename: "photo.jpg", MimeType: "image/jpeg",
		StorageKey: &key, Source: domain.SourceWebForm, OCRStatus: domain.OCRPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, env.docStore.Create(context.Background(), done))
	require.NoError(t, env.docStore.Create(context.Background(), waiting))
	env.docStore.results["doc-done"] = &domain.OCRResult{
		DocumentID:     "doc-done",
		RawText:        "Hotel Lima, total $350.00",
		StructuredData: map[string]string{"total": "350.00"},
		Confidence:     0.92,
		ProcessedAt:    time.Now().UTC(),
	}

	rec := env.do(t, http.MethodGet, "/claims/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody(t, rec)
	documents := resp["documents"].([]interface{})
	require.Len(t, documents, 2)

	byID := map[string]map[string]interface{}{}
	for _, d := range documents {
		doc := d.(map[string]interface{})
		byID[doc["id"].(string)] = doc
	}

	res, ok := byID["doc-done"]["ocr_result"].(map[string]interface{})
	require.True(t, ok, "completed document must expose its extraction")
	assert.Equal(t, "Hotel Lima, total $350.00", res["raw_text"])
	assert.Equal(t, 0.92, res["confidence"])
	structured := res["structured_data"].(map[string]interface{})
	assert.Equal(t, "350.00", structured["total"])

	_, present := byID["doc-waiting"]["ocr_result"]
	assert.False(t, present, "unprocessed document has no ocr_result field")
}

func TestGetClaimNotFound(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/claims/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListClaimsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	env.seedClaim(t)
	env.seedClaim(t)

	rec := env.do(t, http.MethodGet, "/claims?status=initial_notification", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, float64(2), resp["total"])
	assert.Len(t, resp["claims"].([]interface{}), 2)
}

func TestListClaimsRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/claims?status=LIMBO", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateClaimStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	c := env.seedClaim(t)

	body := []byte(`{"status": "form_sent", "reason": "intake form emailed", "actor": "analyst@voyagecover.com"}`)
	rec := env.do(t, http.MethodPut, "/claims/"+c.ID+"/status", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	assert.Equal(t, "FORM_SENT", resp["status"])
	assert.Equal(t, true, resp["email_sent"])
	assert.Equal(t, []string{"FORM_SENT"}, env.notifier.changed, "customer gets a status email")
}

// The status change commits even when the notification email bounces; the
// response says so with email_sent=false so an operator can re-send.
func TestUpdateClaimStatusReportsFailedEmail(t *testing.T) {
	env := newTestEnv(t, "")
	c := env.seedClaim(t)
	env.notifier.fail = true

	body := []byte(`{"status": "FORM_SENT", "reason": "intake form emailed", "actor": "analyst@voyagecover.com"}`)
	rec := env.do(t, http.MethodPut, "/claims/"+c.ID+"/status", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	assert.Equal(t, "FORM_SENT", resp["status"])
	assert.Equal(t, false, resp["email_sent"])
}

// An invalid move answers 422 with the allowed targets so the caller can
// self-correct without a state-machine lookup table of its own.
func TestUpdateClaimStatusInvalidMove(t *testing.T) {
	env := newTestEnv(t, "")
	c := env.seedClaim(t)

	rec := env.do(t, http.MethodPut, "/claims/"+c.ID+"/status", []byte(`{"status": "APPROVED"}`))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, "INITIAL_NOTIFICATION", resp["current_status"])
	assert.Contains(t, resp["allowed"], "FORM_SENT")
	assert.Empty(t, env.notifier.changed)
}

func TestUpdateClaimStatusNotFound(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodPut, "/claims/nope/status", []byte(`{"status": "FORM_SENT"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// Webhook

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookBody(providerID string) []byte {
	return []byte(fmt.Sprintf(`{
		"provider_id": %q,
		"thread_id": "thread-1",
		"from": "maria@example.com",
		"subject": "Claim for delayed baggage",
		"body_text": "My policy number is POL-2024-001. My suitcase was delayed two days on the flight to Lima."
	}`, providerID))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t, "hunter2")

	body := webhookBody("msg-1")
	req := httptest.NewRequest(http.MethodPost, "/email-webhook", bytes.NewReader(body))
	req.Header.Set(signatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookProcessesSignedMessage(t *testing.T) {
	env := newTestEnv(t, "hunter2")

	body := webhookBody("msg-1")
	req := httptest.NewRequest(http.MethodPost, "/email-webhook", bytes.NewReader(body))
	req.Header.Set(signatureHeader, sign(body, "hunter2"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "new_claim", resp["disposition"])
	assert.Regexp(t, `^CLAIM-\d{8}-\d{4}$`, resp["claim_number"])
}

func TestWebhookWithoutSecretSkipsSignatureCheck(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodPost, "/email-webhook", webhookBody("msg-2"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decodeBody(t, rec)["status"])
}

// Provider push endpoints must never see retryable failures for content
// problems, so garbage answers 200 with an error status.
func TestWebhookGarbageStillAnswers200(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodPost, "/email-webhook", []byte("not json at all"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "error", decodeBody(t, rec)["status"])
}

// Documents

func multipartUpload(t *testing.T, filename, mimeType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	hdr.Set("Content-Type", mimeType)
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadDocumentEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	c := env.seedClaim(t)

	buf, contentType := multipartUpload(t, "receipt.pdf", "application/pdf", []byte("%PDF-1.4 receipt"))
	req := httptest.NewRequest(http.MethodPost, "/claims/"+c.ID+"/documents", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	assert.Equal(t, "receipt.pdf", resp["filename"])
	assert.Equal(t, "pending", resp["ocr_status"])
	assert.NotNil(t, resp["storage_key"])
}

func TestUploadDocumentStorageOutage(t *testing.T) {
	env := newTestEnv(t, "")
	c := env.seedClaim(t)
	env.blobs.fail = true

	buf, contentType := multipartUpload(t, "receipt.pdf", "application/pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/claims/"+c.ID+"/documents", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	assert.Contains(t, resp["warning"], "storage unavailable")
	doc := resp["document"].(map[string]interface{})
	assert.Nil(t, doc["storage_key"])
}

func TestUploadDocumentUnknownClaim(t *testing.T) {
	env := newTestEnv(t, "")

	buf, contentType := multipartUpload(t, "receipt.pdf", "application/pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/claims/nope/documents", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReprocessDocumentEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	c := env.seedClaim(t)

	key := "claims/" + c.ID + "/doc/receipt.pdf"
	doc := &domain.Document{
		ID: "doc-1", ClaimID: c.ID, Filename: "receipt.pdf", MimeType: "application/pdf",
		StorageKey: &key, Source: domain.SourceWebForm, OCRStatus: domain.OCRFailed,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, env.docStore.Create(context.Background(), doc))

	rec := env.do(t, http.MethodPost, "/claims/"+c.ID+"/documents/doc-1/reprocess", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "queued", decodeBody(t, rec)["status"])

	stored, err := env.docStore.ByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OCRPending, stored.OCRStatus)
}

func TestReprocessDocumentNotEligible(t *testing.T) {
	env := newTestEnv(t, "")
	c := env.seedClaim(t)

	key := "claims/" + c.ID + "/doc/notes.zip"
	doc := &domain.Document{
		ID: "doc-zip", ClaimID: c.ID, Filename: "notes.zip", MimeType: "application/zip",
		StorageKey: &key, Source: domain.SourceWebForm, OCRStatus: domain.OCRCompleted,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, env.docStore.Create(context.Background(), doc))

	rec := env.do(t, http.MethodPost, "/claims/"+c.ID+"/documents/doc-zip/reprocess", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestReprocessDocumentWithoutStoredBytes(t *testing.T) {
	env := newTestEnv(t, "")
	c := env.seedClaim(t)

	doc := &domain.Document{
		ID: "doc-meta", ClaimID: c.ID, Filename: "receipt.pdf", MimeType: "application/pdf",
		Source: domain.SourceEmailAttachment, OCRStatus: domain.OCRPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, env.docStore.Create(context.Background(), doc))

	rec := env.do(t, http.MethodPost, "/claims/"+c.ID+"/documents/doc-meta/reprocess", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "no stored bytes")
}

func TestReprocessDocumentWrongClaim(t *testing.T) {
	env := newTestEnv(t, "")
	a := env.seedClaim(t)
	b := env.seedClaim(t)

	key := "claims/" + a.ID + "/doc/receipt.pdf"
	doc := &domain.Document{
		ID: "doc-a", ClaimID: a.ID, Filename: "receipt.pdf", MimeType: "application/pdf",
		StorageKey: &key, Source: domain.SourceWebForm, OCRStatus: domain.OCRCompleted,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, env.docStore.Create(context.Background(), doc))

	rec := env.do(t, http.MethodPost, "/claims/"+b.ID+"/documents/doc-a/reprocess", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}
