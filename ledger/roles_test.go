package ledger

import (
	"encoding/json"
	"testing"

	"github.com/ahmadzakiakmal/produce-registry/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleRegistry(t *testing.T) {
	t.Run("unassigned accounts hold none", func(t *testing.T) {
		r := NewRoleRegistry(kv.NewMemStore())
		role, err := r.RoleOf(stranger)
		require.NoError(t, err)
		assert.Equal(t, RoleNone, role)
	})

	t.Run("only administrators assign roles", func(t *testing.T) {
		store := newTestStore(t)
		r := NewRoleRegistry(store)

		_, err := r.SetRole(producer, stranger, RoleProducer)
		assert.ErrorIs(t, err, ErrUnauthorized)
		_, err = r.SetRole(stranger, stranger, RoleAdministrator)
		assert.ErrorIs(t, err, ErrUnauthorized)

		role, err := r.RoleOf(stranger)
		require.NoError(t, err)
		assert.Equal(t, RoleNone, role)
	})

	t.Run("assignment is idempotent", func(t *testing.T) {
		store := newTestStore(t)
		r := NewRoleRegistry(store)

		change, err := r.SetRole(admin, producer, RoleProducer)
		require.NoError(t, err)
		assert.Equal(t, RoleProducer, change.Previous)
		assert.Equal(t, RoleProducer, change.Role)
	})

	t.Run("invalid role values are rejected", func(t *testing.T) {
		r := NewRoleRegistry(newTestStore(t))
		_, err := r.SetRole(admin, stranger, Role(42))
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("administrators can be promoted and demoted but never all removed", func(t *testing.T) {
		store := newTestStore(t)
		r := NewRoleRegistry(store)

		_, err := r.SetRole(admin, admin, RoleConsumer)
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = r.SetRole(admin, stranger, RoleAdministrator)
		require.NoError(t, err)
		change, err := r.SetRole(stranger, admin, RoleRetailer)
		require.NoError(t, err)
		assert.Equal(t, RoleAdministrator, change.Previous)

		role, err := r.RoleOf(admin)
		require.NoError(t, err)
		assert.Equal(t, RoleRetailer, role)

		_, err = r.SetRole(stranger, stranger, RoleNone)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("bootstrap is idempotent", func(t *testing.T) {
		store := kv.NewMemStore()
		r := NewRoleRegistry(store)
		require.NoError(t, r.Bootstrap(admin))
		require.NoError(t, r.Bootstrap(admin))

		admins, err := GetUint64(store, keyAdminCount, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), admins)

		assert.ErrorIs(t, r.Bootstrap(ZeroAccount), ErrInvalidArgument)
	})
}

func TestParseRole(t *testing.T) {
	for input, want := range map[string]Role{
		"producer":      RoleProducer,
		"Retailer":      RoleRetailer,
		" consumer ":    RoleConsumer,
		"5":             RoleAdministrator,
		"0":             RoleNone,
		"intermediary":  RoleIntermediary,
		"administrator": RoleAdministrator,
	} {
		got, err := ParseRole(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	for _, input := range []string{"", "6", "farmer", "-1", "256"} {
		_, err := ParseRole(input)
		assert.ErrorIs(t, err, ErrInvalidArgument, input)
	}
}

func TestRoleJSON(t *testing.T) {
	raw, err := json.Marshal(RoleRetailer)
	require.NoError(t, err)
	assert.Equal(t, `"retailer"`, string(raw))

	var r Role
	require.NoError(t, json.Unmarshal([]byte(`2`), &r))
	assert.Equal(t, RoleIntermediary, r)
	require.NoError(t, json.Unmarshal([]byte(`"administrator"`), &r))
	assert.Equal(t, RoleAdministrator, r)

	assert.Error(t, json.Unmarshal([]byte(`9`), &r))
	assert.Error(t, json.Unmarshal([]byte(`"farmer"`), &r))
}

func TestParseAccount(t *testing.T) {
	a, err := ParseAccount("0x" + producer.String())
	require.NoError(t, err)
	assert.Equal(t, producer, a)

	a, err = ParseAccount("0101010101010101010101010101010101010101")
	require.NoError(t, err)
	assert.Equal(t, producer, a)

	_, err = ParseAccount("0101")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = ParseAccount("zz")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	raw, err := json.Marshal(map[string]Account{"a": producer})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"0101010101010101010101010101010101010101"}`, string(raw))
}
