package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pkordes/travelogue/internal/domain"
)

func TestSpanDays(t *testing.T) {
	assert.Equal(t, 3, domain.SpanDays("2024-05-01", "2024-05-03"))
	assert.Equal(t, 1, domain.SpanDays("2024-05-01", "2024-05-01"))
	// Crosses the end of February in a leap year.
	assert.Equal(t, 3, domain.SpanDays("2024-02-28", "2024-03-01"))
	assert.Equal(t, 0, domain.SpanDays("2024-05-03", "2024-05-01"))
	assert.Equal(t, 0, domain.SpanDays("not-a-date", "2024-05-01"))
}

func TestSanitizeTags(t *testing.T) {
	got := domain.SanitizeTags([]any{" ", "", nil, " valid "})
	assert.Equal(t, []string{"valid"}, got)
}

func TestSanitizeTags_DedupesKeepingFirst(t *testing.T) {
	got := domain.SanitizeTags([]any{"food", 42, " market", "food ", "market", "night"})
	assert.Equal(t, []string{"food", "market", "night"}, got)
}

func TestSanitizeTags_EmptyInputIsNonNil(t *testing.T) {
	got := domain.SanitizeTags(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestErrParentNotFound_IsNotFound(t *testing.T) {
	err := fmt.Errorf("store.UpsertElement: %w", domain.ErrParentNotFound)

	assert.True(t, errors.Is(err, domain.ErrParentNotFound))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.False(t, errors.Is(fmt.Errorf("x: %w", domain.ErrNotFound), domain.ErrParentNotFound))
}
