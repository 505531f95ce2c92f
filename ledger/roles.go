package ledger

import "github.com/ahmadzakiakmal/produce-registry/kv"

// RoleChange describes an accepted SetRole call.
type RoleChange struct {
	Account  Account `json:"account"`
	Role     Role    `json:"role"`
	Previous Role    `json:"previous_role"`
	By       Account `json:"by"`
}

// RoleRegistry maps accounts to roles. Accounts that were never assigned hold RoleNone.
type RoleRegistry struct {
	store kv.Store
}

// NewRoleRegistry creates a registry over store
func NewRoleRegistry(store kv.Store) *RoleRegistry {
	return &RoleRegistry{store: store}
}

// RoleOf returns the role currently held by account
func (r *RoleRegistry) RoleOf(account Account) (Role, error) {
	raw, err := r.store.Get(roleKey(account))
	if err != nil {
		if kv.IsNotFound(err) {
			return RoleNone, nil
		}
		return RoleNone, internal(err)
	}
	if len(raw) != 1 || !Role(raw[0]).Valid() {
		return RoleNone, errorf(KindInternal, "corrupt role entry for %s", account)
	}
	return Role(raw[0]), nil
}

// SetRole assigns role to target. Only administrators may call it, and the last administrator
// cannot be demoted.
func (r *RoleRegistry) SetRole(caller, target Account, role Role) (*RoleChange, error) {
	callerRole, err := r.RoleOf(caller)
	if err != nil {
		return nil, err
	}
	if callerRole != RoleAdministrator {
		return nil, errorf(KindUnauthorized, "%s holds role %s, administrator required", caller, callerRole)
	}
	if !role.Valid() {
		return nil, errorf(KindInvalidArgument, "invalid role %d", uint8(role))
	}
	if target.IsZero() {
		return nil, errorf(KindInvalidArgument, "cannot assign a role to the zero account")
	}

	previous, err := r.RoleOf(target)
	if err != nil {
		return nil, err
	}

	change := &RoleChange{Account: target, Role: role, Previous: previous, By: caller}
	if previous == role {
		return change, nil
	}

	admins, err := GetUint64(r.store, keyAdminCount, 0)
	if err != nil {
		return nil, err
	}
	switch {
	case previous == RoleAdministrator:
		if admins <= 1 {
			return nil, errorf(KindInvalidArgument, "cannot demote the last administrator")
		}
		admins--
	case role == RoleAdministrator:
		admins++
	}

	if err := SetUint64(r.store, keyAdminCount, admins); err != nil {
		return nil, err
	}
	if err := r.write(target, role); err != nil {
		return nil, err
	}
	return change, nil
}

// Bootstrap grants Administrator to the deploying account. It is only called from genesis.
func (r *RoleRegistry) Bootstrap(admin Account) error {
	if admin.IsZero() {
		return errorf(KindInvalidArgument, "genesis administrator must not be the zero account")
	}
	previous, err := r.RoleOf(admin)
	if err != nil {
		return err
	}
	if previous == RoleAdministrator {
		return nil
	}
	admins, err := GetUint64(r.store, keyAdminCount, 0)
	if err != nil {
		return err
	}
	if err := SetUint64(r.store, keyAdminCount, admins+1); err != nil {
		return err
	}
	return r.write(admin, RoleAdministrator)
}

func (r *RoleRegistry) write(account Account, role Role) error {
	if err := r.store.Set(roleKey(account), []byte{byte(role)}); err != nil {
		return internal(err)
	}
	return nil
}
