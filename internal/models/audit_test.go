package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditInput_Entry(t *testing.T) {
	t.Run("actor defaults to caller", func(t *testing.T) {
		in := AuditInput{ActionType: "view", EntityType: "request", Description: "opened"}
		entry, err := in.Entry(5)
		require.NoError(t, err)
		require.NotNil(t, entry.UserID)
		assert.Equal(t, int64(5), *entry.UserID)
		assert.Equal(t, "VIEW", entry.ActionType)
		assert.Equal(t, "REQUEST", entry.EntityType)
		assert.Nil(t, entry.EntityID)
	})

	t.Run("explicit actor and entity", func(t *testing.T) {
		actor := FlexibleID(9)
		entity := FlexibleID(42)
		in := AuditInput{UserID: &actor, ActionType: "EXPORT", EntityID: &entity}
		entry, err := in.Entry(5)
		require.NoError(t, err)
		assert.Equal(t, int64(9), *entry.UserID)
		assert.Equal(t, int64(42), *entry.EntityID)
	})

	t.Run("action required", func(t *testing.T) {
		in := AuditInput{ActionType: "  "}
		_, err := in.Entry(5)
		assert.ErrorIs(t, err, ErrValidation)
	})
}
