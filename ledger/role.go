package ledger

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Role is the permission class held by an account. The numeric values are part of the wire
// format and must never be reordered.
type Role uint8

const (
	RoleNone Role = iota
	RoleProducer
	RoleIntermediary
	RoleRetailer
	RoleConsumer
	RoleAdministrator
)

var roleNames = [...]string{
	RoleNone:          "none",
	RoleProducer:      "producer",
	RoleIntermediary:  "intermediary",
	RoleRetailer:      "retailer",
	RoleConsumer:      "consumer",
	RoleAdministrator: "administrator",
}

// Valid reports whether r is one of the declared roles
func (r Role) Valid() bool {
	return int(r) < len(roleNames)
}

func (r Role) String() string {
	if !r.Valid() {
		return "unknown(" + strconv.Itoa(int(r)) + ")"
	}
	return roleNames[r]
}

// ParseRole accepts a role name (case-insensitive) or its numeric value.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range roleNames {
		if s == name {
			return Role(i), nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || !Role(n).Valid() {
		return RoleNone, errorf(KindInvalidArgument, "invalid role %q", s)
	}
	return Role(n), nil
}

func (r Role) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, errorf(KindInvalidArgument, "invalid role %d", uint8(r))
	}
	return json.Marshal(r.String())
}

// UnmarshalJSON accepts either the role name or the numeric wire value.
func (r *Role) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, err := ParseRole(name)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	}

	var n uint8
	if err := json.Unmarshal(data, &n); err != nil {
		return errorf(KindInvalidArgument, "invalid role %s", string(data))
	}
	if !Role(n).Valid() {
		return errorf(KindInvalidArgument, "invalid role %d", n)
	}
	*r = Role(n)
	return nil
}

func containsRole(roles []Role, r Role) bool {
	for _, candidate := range roles {
		if candidate == r {
			return true
		}
	}
	return false
}
