package util

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestSplitList(t *testing.T) {
	c := qt.New(t)
	c.Assert(SplitList(""), qt.HasLen, 0)
	c.Assert(SplitList(" , ,"), qt.HasLen, 0)
	c.Assert(SplitList("alice, bob ,,carol"), qt.DeepEquals, []string{"alice", "bob", "carol"})
}
