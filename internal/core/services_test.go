package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServices(t *testing.T) {
	db := &mockDB{}

	svcs := NewServices(db)

	require.NotNil(t, svcs)
	assert.NotNil(t, svcs.Rule)
	assert.NotNil(t, svcs.Action)
	assert.NotNil(t, svcs.Schedule)
	assert.NotNil(t, svcs.ExecutionLog)
	assert.NotNil(t, svcs.KPI)
	assert.NotNil(t, svcs.Task)
	assert.NotNil(t, svcs.Notification)
	assert.NotNil(t, svcs.APIKey)
	assert.NotNil(t, svcs.Dashboard)
}
