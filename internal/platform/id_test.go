package platform

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_ReturnsValidUUIDString(t *testing.T) {
	id := NewID()
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, id)
}

func TestNewID_ReturnsUniqueValues(t *testing.T) {
	seen := make(map[string]bool, 100)
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.False(t, seen[id], "duplicate ID generated: %s", id)
		seen[id] = true
	}
}

func TestWorkflowID(t *testing.T) {
	id := WorkflowID("execute-rule", "rule-1")
	require.True(t, strings.HasPrefix(id, "execute-rule-rule-1-"), id)
	_, err := uuid.Parse(strings.TrimPrefix(id, "execute-rule-rule-1-"))
	assert.NoError(t, err)

	assert.NotEqual(t, id, WorkflowID("execute-rule", "rule-1"))
}
