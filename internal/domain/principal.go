package domain

type PermissionLevel string

const (
	PermissionPublic PermissionLevel = "read-write-public"
	PermissionSecret PermissionLevel = "read-write-secret"
)

func (l PermissionLevel) Valid() bool {
	return l == PermissionPublic || l == PermissionSecret
}

// Principal is the resolved caller of an operation.
type Principal struct {
	TenantID   string
	Permission PermissionLevel
}

// CanMutateOrders reports whether the caller may read or change orders.
func (p Principal) CanMutateOrders() bool {
	return p.Permission == PermissionSecret
}

// CanUseCart reports whether the caller may use carts and checkout. Secret
// credentials include everything public ones can do.
func (p Principal) CanUseCart() bool {
	return p.Permission == PermissionPublic || p.Permission == PermissionSecret
}
