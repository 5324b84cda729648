package intake

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/voyagecover/claims-intake/internal/domain"
	"github.com/voyagecover/claims-intake/internal/llm"
	"github.com/voyagecover/claims-intake/internal/pkg/logger"
)

// descriptionFallbackLen bounds the raw-body excerpt used when extraction
// degrades, so the analyst always has something to act on.
const descriptionFallbackLen = 500

var (
	// Policy numbers announced by a keyword: "policy POL-2024-001",
	// "Póliza: AB123456", "pol # XY-99-1234".
	policyKeywordRe = regexp.MustCompile(`(?i)\b(?:policy|p[óo]liza|pol)\.?\s*(?:no\.?|number|num\.?|#)?\s*[:#-]?\s*([A-Z]{2,6}-?[A-Z0-9]*\d[\dA-Z-]{2,})`)

	// Bare tokens shaped like common policy numbers: POL-2024-001, TRV-2023-4521.
	barePolicyRe = regexp.MustCompile(`\b([A-Z]{2,5}-\d{4}-\d{2,6})\b`)

	// Currency-prefixed amounts: $350.00, USD 1,200.
	amountRe = regexp.MustCompile(`(?i)(?:\$|usd\s?)\s*([0-9][\d,]*(?:\.\d{1,2})?)`)
)

// Extractor pulls structured claim fields out of unstructured text.
// Two tiers, cheapest first: deterministic regexes, then one LLM call.
// Extract never fails hard; malformed LLM output degrades to a manual
// field set, not an error.
type Extractor struct {
	llm     llm.Client
	timeout time.Duration
}

// NewExtractor creates a field extractor over the given LLM collaborator.
func NewExtractor(client llm.Client, timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Extractor{llm: client, timeout: timeout}
}

// Extract returns a best-effort field set with provenance. When the
// deterministic pass resolves a policy number, the LLM call is skipped
// entirely and the remaining fields are filled heuristically.
func (e *Extractor) Extract(ctx context.Context, subject, body string) domain.ExtractedFields {
	text := subject + "\n" + body

	policy := extractPolicyNumber(text)
	amount := extractAmount(text)

	if policy != nil {
		return domain.ExtractedFields{
			PolicyNumber:        policy,
			EstimatedAmount:     amount,
			ClaimType:           inferClaimType(text),
			IncidentDescription: truncate(body, descriptionFallbackLen),
			Priority:            "medium",
			Provenance:          domain.ProvenanceRegex,
		}
	}

	fields, err := e.extractViaLLM(ctx, subject, body)
	if err != nil {
		logger.Warn("extraction degraded to manual", "error", err.Error())
		return manualFallback(body)
	}

	// Deterministic findings win over model output
	if amount != nil {
		fields.EstimatedAmount = amount
	}
	return fields
}

type llmFieldSet struct {
	CustomerName        string      `json:"customer_name"`
	PolicyNumber        string      `json:"policy_number"`
	ClaimType           string      `json:"claim_type"`
	IncidentDate        string      `json:"incident_date"`
	EstimatedAmount     interface{} `json:"estimated_amount"`
	IncidentDescription string      `json:"incident_description"`
	Priority            string      `json:"priority"`
}

const extractionPrompt = `You are processing inbound travel-insurance claim emails.
Extract the claim fields from the email below and respond with ONLY a JSON object,
no prose, using exactly this schema (use null for unknown values):
{
  "customer_name": string,
  "policy_number": string,
  "claim_type": one of "TRIP_CANCELLATION" | "TRIP_DELAY" | "TRIP_INTERRUPTION" | "BAGGAGE_DELAY" | "OTHER",
  "incident_date": "YYYY-MM-DD",
  "estimated_amount": number,
  "incident_description": string,
  "priority": one of "low" | "medium" | "high"
}

Subject: %s

Body:
%s`

func (e *Extractor) extractViaLLM(ctx context.Context, subject, body string) (domain.ExtractedFields, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	response, err := e.llm.Extract(callCtx, fmt.Sprintf(extractionPrompt, subject, truncate(body, 4000)))
	if err != nil {
		return domain.ExtractedFields{}, fmt.Errorf("llm extraction: %w", err)
	}

	var raw llmFieldSet
	if err := llm.ExtractJSON(response, &raw); err != nil {
		return domain.ExtractedFields{}, fmt.Errorf("llm response: %w", err)
	}

	fields := domain.ExtractedFields{
		CustomerName:        strings.TrimSpace(raw.CustomerName),
		ClaimType:           domain.ParseClaimType(raw.ClaimType),
		IncidentDescription: strings.TrimSpace(raw.IncidentDescription),
		Priority:            normalizePriority(raw.Priority),
		Provenance:          domain.ProvenanceLLM,
	}
	if p := strings.TrimSpace(raw.PolicyNumber); p != "" && !strings.EqualFold(p, "null") {
		fields.PolicyNumber = &p
	}
	if t, err := time.Parse("2006-01-02", raw.IncidentDate); err == nil {
		fields.IncidentDate = &t
	}
	fields.EstimatedAmount = coerceAmount(raw.EstimatedAmount)
	if fields.IncidentDescription == "" {
		fields.IncidentDescription = truncate(body, descriptionFallbackLen)
	}

	return fields, nil
}

// manualFallback is the structured-but-empty result used when the LLM fails
// or returns garbage. The pipeline still creates the claim; an analyst
// fills in the rest.
func manualFallback(body string) domain.ExtractedFields {
	return domain.ExtractedFields{
		ClaimType:           domain.TypeOther,
		IncidentDescription: truncate(body, descriptionFallbackLen),
		Priority:            "medium",
		Provenance:          domain.ProvenanceManual,
	}
}

func extractPolicyNumber(text string) *string {
	if m := policyKeywordRe.FindStringSubmatch(text); m != nil {
		p := strings.ToUpper(strings.TrimRight(m[1], ".,;"))
		return &p
	}
	if m := barePolicyRe.FindStringSubmatch(text); m != nil {
		p := m[1]
		return &p
	}
	return nil
}

// extractAmount parses the first currency-prefixed token as a two-decimal
// amount. Commas are stripped; invalid numerics are dropped, never raised.
func extractAmount(text string) *float64 {
	m := amountRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return parseAmount(m[1])
}

func parseAmount(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil
	}
	v = math.Round(v*100) / 100
	return &v
}

func coerceAmount(v interface{}) *float64 {
	switch a := v.(type) {
	case float64:
		r := math.Round(a*100) / 100
		if r < 0 {
			return nil
		}
		return &r
	case string:
		return parseAmount(strings.TrimPrefix(strings.TrimSpace(a), "$"))
	default:
		return nil
	}
}

// inferClaimType is the keyword heuristic used on the no-LLM path.
func inferClaimType(text string) domain.ClaimType {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "baggage") || strings.Contains(lower, "luggage") || strings.Contains(lower, "equipaje"):
		return domain.TypeBaggageDelay
	case strings.Contains(lower, "cancel"):
		return domain.TypeTripCancellation
	case strings.Contains(lower, "interrupt"):
		return domain.TypeTripInterruption
	case strings.Contains(lower, "delay"):
		return domain.TypeTripDelay
	}
	return domain.TypeOther
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "low":
		return "low"
	case "high":
		return "high"
	default:
		return "medium"
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence,
// so accented text (póliza, cancelación) stays valid after the cut.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
