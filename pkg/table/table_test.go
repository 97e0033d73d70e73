package table

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/value"
)

func intern(s string) *value.StringObj {
	return &value.StringObj{Chars: s, Hash: value.HashString(s)}
}

func TestSetGetDelete(t *testing.T) {
	tb := New()
	foo := intern("foo")

	isNew := tb.Set(foo, value.Number(1))
	require.True(t, isNew)

	v, ok := tb.Get(foo)
	require.True(t, ok)
	require.Equal(t, value.Number(1), v)

	isNew = tb.Set(foo, value.Number(2))
	require.False(t, isNew)
	v, _ = tb.Get(foo)
	require.Equal(t, value.Number(2), v)

	require.True(t, tb.Delete(foo))
	_, ok = tb.Get(foo)
	require.False(t, ok)
}

func TestTombstoneKeepsProbingAlive(t *testing.T) {
	tb := New()
	// "a" and "i" both hash to slot 4 of the initial 8-slot table, so b sits
	// one slot past a and the lookup below must probe through a's tombstone.
	a, b := intern("a"), intern("i")
	tb.Set(a, value.Number(1))
	tb.Set(b, value.Number(2))

	require.True(t, tb.Delete(a))

	v, ok := tb.Get(b)
	require.True(t, ok)
	require.Equal(t, value.Number(2), v)
}

func TestGrowPreservesEntries(t *testing.T) {
	tb := New()
	keys := make([]*value.StringObj, 0, 64)
	for i := 0; i < 64; i++ {
		k := intern(string(rune('a' + (i % 26))) + string(rune('0'+i/26)))
		keys = append(keys, k)
		tb.Set(k, value.Number(float64(i)))
	}

	for i, k := range keys {
		v, ok := tb.Get(k)
		require.True(t, ok, "key %d missing after growth", i)
		require.Equal(t, float64(i), v.Number)
	}
	require.Equal(t, len(keys), tb.Count())
}

func TestFindStringMatchesByTextAndHash(t *testing.T) {
	tb := New()
	hi := intern("hi")
	tb.Set(hi, value.Nil)

	found := tb.FindString("hi", value.HashString("hi"))
	require.Same(t, hi, found)

	require.Nil(t, tb.FindString("nope", value.HashString("nope")))
}

func TestRemoveWhiteDropsUnmarkedKeys(t *testing.T) {
	tb := New()
	live, dead := intern("live"), intern("dead")
	live.Marked = true
	tb.Set(live, value.Nil)
	tb.Set(dead, value.Nil)

	tb.RemoveWhite()

	_, ok := tb.Get(live)
	require.True(t, ok)
	_, ok = tb.Get(dead)
	require.False(t, ok)
}

func TestAddAllCopiesLiveEntries(t *testing.T) {
	src := New()
	k := intern("inherited")
	src.Set(k, value.Number(7))

	dst := New()
	dst.AddAll(src)

	v, ok := dst.Get(k)
	require.True(t, ok)
	require.Equal(t, value.Number(7), v)
}
