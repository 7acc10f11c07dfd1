package peer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnionFindMergesGroups(t *testing.T) {
	u := newUnionFind()
	u.add("1.2.3.4")
	u.add("5.6.7.8")
	require.False(t, u.sameSet("1.2.3.4", "5.6.7.8"))

	u.union("1.2.3.4", "5.6.7.8")
	require.True(t, u.sameSet("1.2.3.4", "5.6.7.8"))
}

func TestUnionFindTransitiveAfterCompression(t *testing.T) {
	u := newUnionFind()
	u.union("a", "b")
	u.union("b", "c")
	u.union("c", "d")
	require.True(t, u.sameSet("a", "d"))
	require.Equal(t, u.find("a"), u.find("d"))
}

func TestUnionFindUnrelatedStaySeparate(t *testing.T) {
	u := newUnionFind()
	u.union("a", "b")
	u.add("z")
	require.False(t, u.sameSet("a", "z"))
}
