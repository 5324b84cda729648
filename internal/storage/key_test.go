package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentKey(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"clean name", "receipt.pdf", "claims/c1/d1/receipt.pdf"},
		{"spaces replaced", "boarding pass.pdf", "claims/c1/d1/boarding_pass.pdf"},
		{"path stripped", "../../etc/passwd", "claims/c1/d1/passwd"},
		{"unicode replaced", "póliza#1.pdf", "claims/c1/d1/p_liza_1.pdf"},
		{"empty name", "", "claims/c1/d1/attachment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DocumentKey("c1", "d1", tt.filename))
		})
	}
}
