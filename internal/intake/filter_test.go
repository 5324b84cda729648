package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsClaimRelated(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		body    string
		want    bool
	}{
		{"claim in subject", "New claim for trip", "", true},
		{"policy in body", "Hello", "my policy number is POL-2024-001", true},
		{"baggage keyword", "Lost luggage", "", true},
		{"case insensitive", "CANCELLED FLIGHT", "", true},
		{"spanish siniestro", "Aviso de siniestro", "", true},
		{"spanish poliza accented", "", "Mi póliza es ABC-123", true},
		{"spanish poliza plain", "", "numero de poliza ABC-123", true},
		{"spanish equipaje", "", "mi equipaje no llegó", true},
		{"refund request", "", "I would like a refund for my trip", true},

		{"newsletter", "Weekly travel deals", "Book now and save big!", false},
		{"empty", "", "", false},
		{"unrelated support", "Password reset", "Click here to reset your password", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsClaimRelated(tt.subject, tt.body, ""))
		})
	}
}

func TestIsClaimRelatedChecksHTMLBody(t *testing.T) {
	assert.True(t, IsClaimRelated("", "", "<p>I want to file a claim</p>"))
}
