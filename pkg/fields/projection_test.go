package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildProjectionBuiltinsFixed(t *testing.T) {
	t.Parallel()

	p := BuildProjection(nil)

	slot, ok := p.Slot(FieldID)
	require.True(t, ok)
	assert.Equal(t, 0, slot)

	slot, _ = p.Slot(FieldTitle)
	assert.Equal(t, 1, slot)
	slot, _ = p.Slot(FieldLanguages)
	assert.Equal(t, 21, slot)
	assert.Equal(t, 22, p.Len())
}

func TestBuildProjectionCustomsLabelSorted(t *testing.T) {
	t.Parallel()

	customs := map[string]*Definition{
		"zebra": {Label: "zebra", Datatype: DatatypeText},
		"apple": {Label: "apple", Datatype: DatatypeText},
		"mango": {Label: "mango", Datatype: DatatypeInt},
	}
	p := BuildProjection(customs)

	apple, _ := p.Slot("apple")
	mango, _ := p.Slot("mango")
	zebra, _ := p.Slot("zebra")
	assert.Equal(t, 22, apple)
	assert.Equal(t, 23, mango)
	assert.Equal(t, 24, zebra)

	label, ok := p.Label(23)
	require.True(t, ok)
	assert.Equal(t, "mango", label)
}

func TestBuildProjectionSeriesTakesTwoSlots(t *testing.T) {
	t.Parallel()

	customs := map[string]*Definition{
		"arc":   {Label: "arc", Datatype: DatatypeSeries},
		"mood":  {Label: "mood", Datatype: DatatypeText},
		"saga":  {Label: "saga", Datatype: DatatypeSeries},
		"pages": {Label: "pages", Datatype: DatatypeInt},
	}
	p := BuildProjection(customs)

	arc, _ := p.Slot("arc")
	arcIndex, ok := p.Slot("arc_index")
	require.True(t, ok)
	assert.Equal(t, arc+1, arcIndex)

	saga, _ := p.Slot("saga")
	sagaIndex, _ := p.Slot("saga_index")
	assert.Equal(t, saga+1, sagaIndex)

	// arc, arc_index, mood, pages, saga, saga_index
	assert.Equal(t, 22+6, p.Len())
}
