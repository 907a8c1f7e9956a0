package authhook_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpkit/mcp-server/authhook"
)

func TestAPIKeyValidatorAcceptsKnownKey(t *testing.T) {
	v := authhook.NewAPIKeyValidator(map[string]string{"secret-123": "svc-a"})

	claims, err := v.Validate(t.Context(), "secret-123")
	require.NoError(t, err)
	assert.Equal(t, "svc-a", claims.Subject)
}

func TestAPIKeyValidatorRejectsUnknownKey(t *testing.T) {
	v := authhook.NewAPIKeyValidator(map[string]string{"secret-123": "svc-a"})

	_, err := v.Validate(t.Context(), "wrong-key")
	assert.ErrorIs(t, err, authhook.ErrInvalidCredential)
}

func TestAPIKeyValidatorRejectsEmptyCredential(t *testing.T) {
	v := authhook.NewAPIKeyValidator(map[string]string{"secret-123": "svc-a"})

	_, err := v.Validate(t.Context(), "")
	assert.ErrorIs(t, err, authhook.ErrMissingCredential)
}
