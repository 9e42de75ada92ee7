package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cmdsched/internal/scheduler"
)

func TestMarshal_SnapshotIsCompact(t *testing.T) {
	snap := scheduler.Snapshot{
		Tick:     1,
		Commands: []scheduler.CommandInfo{{ID: 1, Name: "a"}},
	}

	data, err := Marshal(snap)
	require.NoError(t, err)

	// {1: 1, 2: [{1: 1, 2: "a"}]}
	assert.Equal(t, []byte{0xa2, 0x01, 0x01, 0x02, 0x81, 0xa2, 0x01, 0x01, 0x02, 0x61, 0x61}, data)

	diag, err := Diagnose(data)
	require.NoError(t, err)
	assert.Equal(t, `{1: 1, 2: [{1: 1, 2: "a"}]}`, diag)
}

func TestMarshal_Deterministic(t *testing.T) {
	a := map[string]int{"zeta": 1, "alpha": 2, "mid": 3}
	b := map[string]int{"mid": 3, "zeta": 1, "alpha": 2}

	first, err := Marshal(a)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Marshal(b)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestUnmarshal_Snapshot(t *testing.T) {
	want := scheduler.Snapshot{
		Tick: 42,
		Commands: []scheduler.CommandInfo{
			{ID: 3, Name: "teleop-drive"},
			{ID: 9, Name: "intake"},
		},
	}
	data, err := Marshal(want)
	require.NoError(t, err)

	var got scheduler.Snapshot
	require.NoError(t, Unmarshal(data, &got))
	assert.Equal(t, want, got)
}

func TestUnmarshal_AnyUsesStringMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"tick": 1})
	require.NoError(t, err)

	var got any
	require.NoError(t, Unmarshal(data, &got))
	m, ok := got.(map[string]any)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, uint64(1), m["tick"])
}

func TestUnmarshal_Garbage(t *testing.T) {
	var snap scheduler.Snapshot
	assert.Error(t, Unmarshal([]byte{0xff, 0x00}, &snap))
}
