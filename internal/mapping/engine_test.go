package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cierreops/cierre-cli/internal/model"
)

var (
	c1 = model.Concept{ID: "C1", Name: "Sueldo Base"}
	c2 = model.Concept{ID: "C2", Name: "Bono Producción"}
)

func TestAssign_InjectivityIsEnforced(t *testing.T) {
	e := New([]string{"Sueldo", "Bono"})

	require.True(t, e.Select("Sueldo"))
	require.True(t, e.Assign(c1))

	// Auto-advance selected Bono; assigning C1 again must be a no-op.
	assert.Equal(t, "Bono", e.Selected())
	assert.False(t, e.Assign(c1))
	assert.Equal(t, []string{"Bono"}, e.Pending())

	// A different concept is fine.
	assert.True(t, e.Assign(c2))
	assert.True(t, e.Complete())
}

func TestAssign_NoSelectionIsNoop(t *testing.T) {
	e := New([]string{"Sueldo"})
	assert.False(t, e.Assign(c1))
	assert.Equal(t, []string{"Sueldo"}, e.Pending())
}

func TestSelect_OnlyPendingHeaders(t *testing.T) {
	e := New([]string{"Sueldo", "Bono"})

	require.True(t, e.Select("Sueldo"))
	require.True(t, e.Assign(c1))

	assert.False(t, e.Select("Sueldo"), "decided header must not be selectable")
	assert.False(t, e.Select("Desconocido"), "unknown header must not be selectable")
	assert.True(t, e.Select("Bono"))
}

func TestAssignUnassigned_SentinelIsShared(t *testing.T) {
	e := New([]string{"Glosa", "Comentario", "Sueldo"})

	require.True(t, e.Select("Glosa"))
	require.True(t, e.AssignUnassigned())
	// Auto-advance went to Comentario.
	require.Equal(t, "Comentario", e.Selected())
	require.True(t, e.AssignUnassigned())

	// Two headers share the sentinel and both count as mapped.
	assert.Equal(t, []string{"Sueldo"}, e.Pending())
	c, decided := e.Mapped("Glosa")
	assert.True(t, decided)
	assert.Nil(t, c)
}

func TestPendingCount_Monotonicity(t *testing.T) {
	e := New([]string{"A", "B", "C", "D"})

	counts := []int{len(e.Pending())}
	e.Select("A")
	e.Assign(c1)
	counts = append(counts, len(e.Pending()))
	e.AssignUnassigned() // selection auto-advanced to B
	counts = append(counts, len(e.Pending()))

	for i := 1; i < len(counts); i++ {
		assert.LessOrEqual(t, counts[i], counts[i-1], "pending count grew under assign")
	}

	before := len(e.Pending())
	e.Unassign("A")
	assert.Greater(t, len(e.Pending()), before-1, "unassign must not shrink pending")
	assert.Equal(t, before+1, len(e.Pending()))
}

func TestUnassign(t *testing.T) {
	e := New([]string{"Sueldo"})
	e.Select("Sueldo")
	e.Assign(c1)

	assert.True(t, e.Unassign("Sueldo"))
	assert.False(t, e.Unassign("Sueldo"), "already pending")
	assert.Equal(t, []string{"Sueldo"}, e.Pending())

	// The freed concept can be used by another header again.
	e.Select("Sueldo")
	assert.True(t, e.Assign(c1))
}

func TestLoadExisting_DistinguishesUnassignedFromPending(t *testing.T) {
	e := New([]string{"RUT", "Glosa", "Bono"})
	e.LoadExisting(map[string]*model.Concept{
		"RUT":   {ID: "C9", Name: "Identificador"},
		"Glosa": nil, // persisted "no concept" decision
		"Otro":  {ID: "CX"},
	})

	assert.Equal(t, []string{"Bono"}, e.Pending())

	c, decided := e.Mapped("Glosa")
	assert.True(t, decided)
	assert.Nil(t, c)

	_, decided = e.Mapped("Bono")
	assert.False(t, decided)
}

func TestPayload_SerializesInLoadOrder(t *testing.T) {
	e := New([]string{"Sueldo", "Glosa", "Bono"})
	e.Select("Sueldo")
	e.Assign(c1)
	// auto-advance → Glosa
	e.AssignUnassigned()
	// Bono stays pending.

	payload := e.Payload()
	require.Len(t, payload, 2)
	assert.Equal(t, "Sueldo", payload[0].Header)
	require.NotNil(t, payload[0].ConceptID)
	assert.Equal(t, "C1", *payload[0].ConceptID)
	assert.Equal(t, "Glosa", payload[1].Header)
	assert.Nil(t, payload[1].ConceptID)
}

func TestReadOnly_RejectsAllMutations(t *testing.T) {
	e := New([]string{"Sueldo", "Bono"})
	e.Select("Sueldo")
	e.Assign(c1)
	e.SetReadOnly(true)

	assert.False(t, e.Select("Bono"))
	assert.False(t, e.Assign(c2))
	assert.False(t, e.AssignUnassigned())
	assert.False(t, e.Unassign("Sueldo"))
	assert.Empty(t, e.Selected())

	// Display accessors still work.
	c, decided := e.Mapped("Sueldo")
	assert.True(t, decided)
	assert.Equal(t, "C1", c.ID)
}

func TestSpecScenario_RejectedSecondMapping(t *testing.T) {
	// Headers ["Sueldo","Bono"], concepts C1/C2; Sueldo→C1, then Bono→C1
	// is rejected and Bono remains pending.
	e := New([]string{"Sueldo", "Bono"})
	e.Select("Sueldo")
	require.True(t, e.Assign(model.Concept{ID: "C1"}))

	e.Select("Bono")
	assert.False(t, e.Assign(model.Concept{ID: "C1"}))
	assert.Contains(t, e.Pending(), "Bono")
}
