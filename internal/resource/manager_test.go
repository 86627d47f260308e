package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceRegistry(t *testing.T) {
	svc := NewResourceManagerService(nil)
	rm, ok := svc.(*ResourceManager)
	require.True(t, ok)

	assert.Empty(t, rm.ListResources())

	rm.AddResource("pgxpool", struct{}{})
	rm.AddResource("sqldb", struct{}{})
	assert.Equal(t, []string{"pgxpool", "sqldb"}, rm.ListResources())
}

func TestResourceManagerHeartbeatInterval(t *testing.T) {
	svc := NewResourceManagerService(map[string]interface{}{"heartbeat_interval": "250ms"})
	rm, ok := svc.(*ResourceManager)
	require.True(t, ok)
	assert.Equal(t, "250ms", rm.heartbeatInterval.String())
}
