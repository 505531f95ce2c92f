package ledger

import "github.com/ahmadzakiakmal/produce-registry/kv"

// Policy holds the role requirements of batch transitions. It is fixed at genesis so every
// validator enforces the same rules.
type Policy struct {
	// CreatorRoles may call CreateBatch.
	CreatorRoles []Role `json:"creator_roles"`
	// TransferTargetRoles may receive a batch through TransferBatch.
	TransferTargetRoles []Role `json:"transfer_target_roles"`
	// FinalizerRoles may call FinalizeToConsumer. Empty means any current owner.
	FinalizerRoles []Role `json:"finalizer_roles"`
}

// DefaultPolicy: producers create, intermediaries and retailers receive custody and hand the
// batch over to the consumer.
func DefaultPolicy() Policy {
	return Policy{
		CreatorRoles:        []Role{RoleProducer},
		TransferTargetRoles: []Role{RoleIntermediary, RoleRetailer},
		FinalizerRoles:      []Role{RoleIntermediary, RoleRetailer},
	}
}

// Validate rejects policies that name unknown roles or that nobody could satisfy.
func (p Policy) Validate() error {
	if len(p.CreatorRoles) == 0 {
		return errorf(KindInvalidArgument, "policy: creator_roles must not be empty")
	}
	if len(p.TransferTargetRoles) == 0 {
		return errorf(KindInvalidArgument, "policy: transfer_target_roles must not be empty")
	}
	for _, set := range [][]Role{p.CreatorRoles, p.TransferTargetRoles, p.FinalizerRoles} {
		for _, r := range set {
			if !r.Valid() || r == RoleNone {
				return errorf(KindInvalidArgument, "policy: role %s cannot be granted a transition", r)
			}
		}
	}
	return nil
}

func (p Policy) canCreate(r Role) bool {
	return containsRole(p.CreatorRoles, r)
}

func (p Policy) canReceive(r Role) bool {
	return containsRole(p.TransferTargetRoles, r)
}

func (p Policy) canFinalize(r Role) bool {
	return len(p.FinalizerRoles) == 0 || containsRole(p.FinalizerRoles, r)
}

// LoadPolicy returns the stored policy, or DefaultPolicy if none was written at genesis.
func LoadPolicy(store kv.Store) (Policy, error) {
	var p Policy
	found, err := getJSON(store, keyPolicy, &p)
	if err != nil {
		return Policy{}, err
	}
	if !found {
		return DefaultPolicy(), nil
	}
	return p, nil
}

// SavePolicy validates and stores p
func SavePolicy(store kv.Store, p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return setJSON(store, keyPolicy, p)
}
