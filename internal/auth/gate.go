package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/commerce-core/internal/domain"
)

// ErrUnauthenticated is returned for a missing or unknown credential.
var ErrUnauthenticated = errors.New("invalid or missing credential")

// Gate resolves an API credential to the tenant and permission level it grants.
type Gate interface {
	Resolve(ctx context.Context, credential string) (domain.Principal, error)
}

// StaticGate is a fixed credential table loaded at startup.
type StaticGate struct {
	keys map[string]domain.Principal
}

func NewStaticGate(keys map[string]domain.Principal) *StaticGate {
	cp := make(map[string]domain.Principal, len(keys))
	for k, p := range keys {
		cp[k] = p
	}
	return &StaticGate{keys: cp}
}

// ParseStaticGate builds a gate from "key=tenant:level" entries separated by
// commas. level is "public", "secret" or a full permission name.
func ParseStaticGate(raw string) (*StaticGate, error) {
	keys := make(map[string]domain.Principal)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		key, grant, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("api key entry %q: expected key=tenant:level", entry)
		}
		tenant, level, ok := strings.Cut(grant, ":")
		if !ok || strings.TrimSpace(tenant) == "" {
			return nil, fmt.Errorf("api key entry for %q: expected tenant:level", maskKey(key))
		}

		perm, err := parseLevel(strings.TrimSpace(level))
		if err != nil {
			return nil, fmt.Errorf("api key entry for %q: %w", maskKey(key), err)
		}

		key = strings.TrimSpace(key)
		if _, dup := keys[key]; dup {
			return nil, fmt.Errorf("api key %q listed twice", maskKey(key))
		}
		keys[key] = domain.Principal{TenantID: strings.TrimSpace(tenant), Permission: perm}
	}
	if len(keys) == 0 {
		return nil, errors.New("no api keys configured")
	}
	return &StaticGate{keys: keys}, nil
}

func (g *StaticGate) Resolve(_ context.Context, credential string) (domain.Principal, error) {
	if credential == "" {
		return domain.Principal{}, ErrUnauthenticated
	}
	p, ok := g.keys[credential]
	if !ok {
		return domain.Principal{}, ErrUnauthenticated
	}
	return p, nil
}

func parseLevel(level string) (domain.PermissionLevel, error) {
	switch level {
	case "public":
		return domain.PermissionPublic, nil
	case "secret":
		return domain.PermissionSecret, nil
	}
	if p := domain.PermissionLevel(level); p.Valid() {
		return p, nil
	}
	return "", fmt.Errorf("unknown permission level %q", level)
}

func maskKey(key string) string {
	key = strings.TrimSpace(key)
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
