package accounts

import "fmt"

// Role names a part an identity plays in a deployment run.
type Role string

const (
	RoleDeployer Role = "deployer"
	RoleAdmin    Role = "admin"
)

// Roles binds roles to wallets. It is fixed once assigned.
type Roles struct {
	order   []Role
	wallets map[Role]Wallet
}

// AssignRoles binds roles to wallets by position: roles[i] gets wallets[i].
func AssignRoles(wallets []Wallet, roles ...Role) (*Roles, error) {
	if len(wallets) < len(roles) {
		return nil, &IdentityProvisioningError{Required: len(roles), Available: len(wallets)}
	}

	r := &Roles{
		order:   make([]Role, 0, len(roles)),
		wallets: make(map[Role]Wallet, len(roles)),
	}
	for i, role := range roles {
		if _, dup := r.wallets[role]; dup {
			return nil, fmt.Errorf("role %q assigned twice", role)
		}
		r.order = append(r.order, role)
		r.wallets[role] = wallets[i]
	}
	return r, nil
}

// Wallet returns the wallet bound to role.
func (r *Roles) Wallet(role Role) (Wallet, error) {
	w, ok := r.wallets[role]
	if !ok {
		return Wallet{}, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	return w, nil
}

// Roles returns the assigned roles in assignment order.
func (r *Roles) Roles() []Role {
	out := make([]Role, len(r.order))
	copy(out, r.order)
	return out
}
