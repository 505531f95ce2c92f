package ledger

import (
	"testing"

	"github.com/ahmadzakiakmal/produce-registry/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	tests := []struct {
		name   string
		policy Policy
	}{
		{"no creators", Policy{TransferTargetRoles: []Role{RoleRetailer}}},
		{"no transfer targets", Policy{CreatorRoles: []Role{RoleProducer}}},
		{"none as creator", Policy{CreatorRoles: []Role{RoleNone}, TransferTargetRoles: []Role{RoleRetailer}}},
		{"unknown finalizer", Policy{CreatorRoles: []Role{RoleProducer}, TransferTargetRoles: []Role{RoleRetailer}, FinalizerRoles: []Role{Role(9)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.policy.Validate(), ErrInvalidArgument)
		})
	}
}

func TestPolicyStorage(t *testing.T) {
	store := kv.NewMemStore()

	p, err := LoadPolicy(store)
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)

	custom := Policy{
		CreatorRoles:        []Role{RoleProducer, RoleIntermediary},
		TransferTargetRoles: []Role{RoleRetailer},
	}
	require.NoError(t, SavePolicy(store, custom))

	p, err = LoadPolicy(store)
	require.NoError(t, err)
	assert.Equal(t, custom.CreatorRoles, p.CreatorRoles)
	assert.Equal(t, custom.TransferTargetRoles, p.TransferTargetRoles)
	assert.True(t, p.canFinalize(RoleConsumer))
	assert.False(t, p.canReceive(RoleIntermediary))

	assert.ErrorIs(t, SavePolicy(store, Policy{}), ErrInvalidArgument)
}

func TestChangeSet(t *testing.T) {
	cs := NewChangeSet(3, testTime())
	assert.True(t, cs.Empty())

	cs.AddTransition(&Transition{Batch: Batch{ID: 2, QualityScore: 1}})
	cs.AddTransition(&Transition{
		Batch:  Batch{ID: 1},
		Record: &IndexedRecord{BatchID: 1, Index: 0},
	})
	cs.AddTransition(&Transition{Batch: Batch{ID: 2, QualityScore: 5}})
	cs.AddRoleChange(RoleChange{Account: producer, Role: RoleProducer})

	assert.False(t, cs.Empty())
	batches := cs.BatchList()
	require.Len(t, batches, 2)
	assert.Equal(t, uint64(1), batches[0].ID)
	assert.Equal(t, uint64(5), batches[1].QualityScore)
	assert.Len(t, cs.Records, 1)
	assert.Len(t, cs.Roles, 1)
}
