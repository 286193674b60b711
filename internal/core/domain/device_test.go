package domain_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samirrijal/storedetect/internal/core/domain"
)

func TestValidateDeviceID(t *testing.T) {
	for _, id := range []string{"dev-1", "A_b-9", strings.Repeat("x", 128), "550e8400-e29b-41d4-a716-446655440000"} {
		assert.NoError(t, domain.ValidateDeviceID(id), id)
	}
	for _, id := range []string{"", "a.b", "a b", "dev>", "*", strings.Repeat("x", 129)} {
		assert.ErrorIs(t, domain.ValidateDeviceID(id), domain.ErrInvalidDeviceID, id)
	}
}
