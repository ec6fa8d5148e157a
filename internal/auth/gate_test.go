package auth

import (
	"context"
	"testing"

	"github.com/fjod/commerce-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStaticGate(t *testing.T) {
	gate, err := ParseStaticGate("pk_a=tenant-a:public, sk_a=tenant-a:secret,sk_b=tenant-b:read-write-secret")
	require.NoError(t, err)

	p, err := gate.Resolve(context.Background(), "pk_a")
	require.NoError(t, err)
	assert.Equal(t, domain.Principal{TenantID: "tenant-a", Permission: domain.PermissionPublic}, p)

	p, err = gate.Resolve(context.Background(), "sk_a")
	require.NoError(t, err)
	assert.True(t, p.CanMutateOrders())

	p, err = gate.Resolve(context.Background(), "sk_b")
	require.NoError(t, err)
	assert.Equal(t, "tenant-b", p.TenantID)
	assert.Equal(t, domain.PermissionSecret, p.Permission)
}

func TestParseStaticGate_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no separator":   "pk_a",
		"no tenant":      "pk_a=:public",
		"unknown level":  "pk_a=tenant-a:admin",
		"duplicate keys": "pk_a=tenant-a:public,pk_a=tenant-b:secret",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseStaticGate(raw)
			assert.Error(t, err)
		})
	}
}

func TestParseStaticGate_ErrorsDoNotLeakKeys(t *testing.T) {
	_, err := ParseStaticGate("sk_live_supersecret=tenant-a:root")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "supersecret")
}

func TestResolve_Unknown(t *testing.T) {
	gate := NewStaticGate(map[string]domain.Principal{
		"pk_a": {TenantID: "tenant-a", Permission: domain.PermissionPublic},
	})

	_, err := gate.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = gate.Resolve(context.Background(), "pk_b")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
