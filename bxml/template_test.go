package bxml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildTree constructs:
//
//	<Event>
//	  <System>
//	    <Level>4</Level>
//	    <Provider Name="Microsoft-Windows-Kernel"/>
//	  </System>
//	  <EventData>
//	    <Data Name="Foo">&PLACEHOLDER;</Data>
//	  </EventData>
//	</Event>
func buildTree() (*Element, *Placeholder) {
	ph := &Placeholder{Index: 0, Type: ValueString}
	level := &Element{Name: "Level", Children: []any{"4"}}
	provider := &Element{Name: "Provider", Attrs: []Attr{{Name: "Name", Value: "Microsoft-Windows-Kernel"}}}
	system := &Element{Name: "System", Children: []any{level, provider}}

	data := &Element{
		Name:     "Data",
		Attrs:    []Attr{{Name: "Name", Value: "Foo"}},
		Children: []any{ph},
	}
	eventData := &Element{Name: "EventData", Children: []any{data}}

	root := &Element{Name: "Event", Children: []any{system, eventData}}
	return root, ph
}

func TestFlattenFullSkipsFirstTwoAncestors(t *testing.T) {
	root, ph := buildTree()
	bind := func(p *Placeholder) (any, bool) {
		require.Same(t, ph, p)
		return "bar", true
	}
	col := flattenFull(root, bind)

	v, ok := col.Get("Level")
	require.True(t, ok)
	require.Equal(t, "4", v)

	v, ok = col.Get("Provider_Name")
	require.True(t, ok)
	require.Equal(t, "Microsoft-Windows-Kernel", v)
}

func TestFlattenFullAppliesDataNameOverride(t *testing.T) {
	root, _ := buildTree()
	col := flattenFull(root, func(*Placeholder) (any, bool) { return "bar", true })

	v, ok := col.Get("Foo")
	require.True(t, ok)
	require.Equal(t, "bar", v)

	_, ok = col.Get("Data")
	require.False(t, ok, "the Data tag name must not itself appear as a key")
}

func TestFlattenFullDropsUnresolvedOptionalSubstitution(t *testing.T) {
	root := &Element{
		Name: "Event",
		Children: []any{
			&Element{Name: "System", Children: []any{
				&Element{Name: "Optional", Children: []any{&Placeholder{Index: 99, Optional: true}}},
			}},
		},
	}
	col := flattenFull(root, func(p *Placeholder) (any, bool) { return nil, false })
	_, ok := col.Get("Optional")
	require.False(t, ok)
}

func TestBuildNameIndexIsPreOrderAndDeduplicated(t *testing.T) {
	root, _ := buildTree()
	idx := buildNameIndex(root)

	require.Equal(t, 0, idx["Event"])
	require.Equal(t, 1, idx["System"])
	require.Equal(t, 2, idx["Level"])
	require.Equal(t, 3, idx["Provider"])
	require.Equal(t, 4, idx["Name"])
	require.Equal(t, 5, idx["EventData"])
	require.Equal(t, 6, idx["Data"])

	// "Name" appears on both Provider and Data but keeps a single sub-id.
	require.Len(t, idx, 7)
}
