package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bento/internal/domain"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		width int
		want  domain.BreakpointState
	}{
		{-10, domain.BreakpointState{Name: domain.BreakpointXXS, Columns: 2}},
		{0, domain.BreakpointState{Name: domain.BreakpointXXS, Columns: 2}},
		{479, domain.BreakpointState{Name: domain.BreakpointXXS, Columns: 2}},
		{480, domain.BreakpointState{Name: domain.BreakpointXS, Columns: 2}},
		{767, domain.BreakpointState{Name: domain.BreakpointXS, Columns: 2}},
		{768, domain.BreakpointState{Name: domain.BreakpointSM, Columns: 4}},
		{1920, domain.BreakpointState{Name: domain.BreakpointSM, Columns: 4}},
	}
	for _, tc := range tests {
		if got := Resolve(tc.width); got != tc.want {
			t.Errorf("Resolve(%d) = %+v, want %+v", tc.width, got, tc.want)
		}
	}
}

func TestTiersOrdered(t *testing.T) {
	require.GreaterOrEqual(t, len(Tiers), 3)
	for i := 1; i < len(Tiers); i++ {
		assert.Greater(t, Tiers[i].MinWidth, Tiers[i-1].MinWidth, "tier %s", Tiers[i].Name)
		assert.GreaterOrEqual(t, Tiers[i].Columns, Tiers[i-1].Columns, "tier %s", Tiers[i].Name)
	}
	assert.Equal(t, 0, Tiers[0].MinWidth)
}

func TestColumnsFor(t *testing.T) {
	assert.Equal(t, 4, ColumnsFor(domain.BreakpointSM))
	assert.Equal(t, 2, ColumnsFor(domain.BreakpointXXS))
	assert.Equal(t, 0, ColumnsFor("lg"))
}

func TestMaxColumns(t *testing.T) {
	assert.Equal(t, 4, MaxColumns())
}

func TestResolver_NotifiesOnlyOnTierChange(t *testing.T) {
	r := NewResolver(1024)
	var seen []domain.BreakpointState
	r.OnChange(func(prev, next domain.BreakpointState) {
		assert.NotEqual(t, prev, next)
		seen = append(seen, next)
	})

	_, changed := r.SetWidth(900)
	assert.False(t, changed, "same tier must stay silent")

	state, changed := r.SetWidth(500)
	assert.True(t, changed)
	assert.Equal(t, domain.BreakpointXS, state.Name)

	r.SetWidth(100)
	r.SetWidth(120)

	require.Len(t, seen, 2)
	assert.Equal(t, domain.BreakpointXS, seen[0].Name)
	assert.Equal(t, domain.BreakpointXXS, seen[1].Name)
	assert.Equal(t, 120, r.Width())
	assert.Equal(t, domain.BreakpointXXS, r.Current().Name)
}
