package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInterningReturnsSamePointerForEqualText(t *testing.T) {
	v := New()
	a := v.InternString("hello")
	b := v.InternString("hello")
	require.Same(t, a, b)
}

// TestGCDoesNotCollectReachableGlobals also guards against a collector that
// marks a global's value but not its key: if the name string itself were
// swept, a later reference to the same name would intern a different
// pointer than the one still sitting in vm.globals, and the lookup below
// would fail even though the global is logically still reachable.
func TestGCDoesNotCollectReachableGlobals(t *testing.T) {
	v := New()
	err := v.Interpret(`
		var kept = "still here";
	`)
	require.NoError(t, err)

	for i := 0; i < 64; i++ {
		v.collectGarbage()
	}

	name := v.InternString("kept")
	val, ok := v.globals.Get(name)
	require.True(t, ok, "global should survive repeated collection")
	s, ok := val.AsString()
	require.True(t, ok)
	require.Equal(t, "still here", s.Chars)
}

func TestGCThresholdGrowsAfterCollection(t *testing.T) {
	v := New()
	// Force the very next allocation to cross the threshold, so a
	// collection is guaranteed to run exactly once, deterministically,
	// instead of hoping enough distinct strings pile up past the real
	// 1 MiB initialGCThreshold.
	v.nextGC = 1
	before := v.nextGC

	v.InternString("this string triggers a garbage collection")

	require.Greater(t, v.nextGC, before, "threshold should grow once a collection actually runs")
	require.Equal(t, v.bytesAllocated*gcHeapGrowFactor, v.nextGC,
		"threshold should be set to bytesAllocated*gcHeapGrowFactor by the collection that just ran")
}

func TestUnreachableStringsAreSweptFromInternTable(t *testing.T) {
	v := New()
	original := v.InternString("ephemeral")

	// Nothing roots "ephemeral" (no stack, no global, no compiler root),
	// so a collection should remove it from the intern table and let the
	// next InternString call for the same text allocate a fresh object
	// rather than returning the stale, now-unreachable pointer.
	v.collectGarbage()

	again := v.InternString("ephemeral")
	require.NotNil(t, again)
	require.Equal(t, "ephemeral", again.Chars)
	require.NotSame(t, original, again,
		"sweep should have evicted the old entry instead of leaving it dangling in the intern table")
}
