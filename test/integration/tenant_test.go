//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/ipd/internal/platform/db"
)

func TestListTenants_FindsEveryTenantSchema(t *testing.T) {
	north := newTenant(t, "north")
	south := newTenant(t, "south")

	tenants, err := db.ListTenants(context.Background(), globalPool)
	require.NoError(t, err)
	assert.Contains(t, tenants, north)
	assert.Contains(t, tenants, south)
	assert.NotContains(t, tenants, "public")
}
