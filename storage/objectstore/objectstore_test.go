package objectstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lookatitude/docintel/domain"
)

func TestExportKey(t *testing.T) {
	at := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	got := ExportKey("quarterly-summary", "run-1", "report.json", at)
	assert.Equal(t, "exports/quarterly-summary/2026/03/05/run-1_1772712000_report.json", got)
}

func TestStore_ShouldInline(t *testing.T) {
	s := &Store{inlineThreshold: 1024}
	assert.True(t, s.ShouldInline(100))
	assert.True(t, s.ShouldInline(1024))
	assert.False(t, s.ShouldInline(1025))
}

func TestStore_Get_Inline(t *testing.T) {
	s := &Store{}
	ptr := domain.ArtifactPointer{Inline: []byte("hello")}
	got, err := s.Get(context.Background(), ptr)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestStore_Get_UnsupportedBackend(t *testing.T) {
	s := &Store{}
	ptr := domain.ArtifactPointer{Backend: "gcs", Key: "k"}
	_, err := s.Get(context.Background(), ptr)
	assert.Error(t, err)
}

func TestStore_Delete_Inline_NoOp(t *testing.T) {
	s := &Store{}
	err := s.Delete(context.Background(), domain.ArtifactPointer{Inline: []byte("x")})
	assert.NoError(t, err)
}
