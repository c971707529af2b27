package orgunit

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTypeLevelOrdering(t *testing.T) {
	ordered := []Type{TypeRegion, TypeZone, TypeGroup, TypeChurch, TypeOutreach}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Level(), ordered[i-1].Level(),
			"%s must sit below %s", ordered[i], ordered[i-1])
	}
	assert.Equal(t, -1, Type("campus").Level())
}

func TestTypeIsValid(t *testing.T) {
	for _, typ := range []Type{TypeRegion, TypeZone, TypeGroup, TypeChurch, TypeOutreach} {
		assert.True(t, typ.IsValid(), string(typ))
	}
	assert.False(t, Type("diocese").IsValid())
	assert.False(t, Type("").IsValid())
}

func TestReparented(t *testing.T) {
	tenantID := uuid.New()
	parentID := uuid.New()
	u := New(tenantID, "Church X", TypeChurch, &parentID)
	assert.False(t, u.IsRoot())

	root := u.Reparented(nil)
	assert.True(t, root.IsRoot())
	assert.False(t, u.IsRoot(), "the original value is untouched")

	otherID := uuid.New()
	moved := u.Reparented(&otherID)
	assert.Equal(t, otherID, *moved.ParentID())
}

func TestRenamed(t *testing.T) {
	u := New(uuid.New(), "Church X", TypeChurch, nil)
	renamed := u.Renamed("Church X Renewed")
	assert.Equal(t, "Church X Renewed", renamed.Name())
	assert.Equal(t, "Church X", u.Name())
}
