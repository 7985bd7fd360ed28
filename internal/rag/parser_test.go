package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n...")))
	assert.True(t, IsPDF([]byte("%PDF-1.4")))

	// 扩展名不可信，只认magic bytes
	assert.False(t, IsPDF([]byte("PK\x03\x04zip content")))
	assert.False(t, IsPDF([]byte("plain text file")))
	assert.False(t, IsPDF([]byte("")))
	assert.False(t, IsPDF([]byte(" %PDF-1.7")))
}

func TestExtractText_RejectsNonPDF(t *testing.T) {
	_, err := ExtractText([]byte("not a pdf"))
	assert.ErrorIs(t, err, ErrNotPDF)
}
