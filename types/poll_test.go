package types

import (
	"encoding/json"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestPollHelpers(t *testing.T) {
	c := qt.New(t)
	now := time.Now()
	closeAt := now.Add(time.Minute)
	p := &Poll{
		ID:        "p1",
		Options:   []Option{{Index: 0, Label: "A"}, {Index: 1, Label: "B"}},
		CloseTime: &closeAt,
	}
	c.Assert(p.HasOption(1), qt.IsTrue)
	c.Assert(p.HasOption(2), qt.IsFalse)
	c.Assert(p.HasOption(-1), qt.IsFalse)
	c.Assert(p.Expired(now), qt.IsFalse)
	c.Assert(p.Expired(closeAt), qt.IsTrue)

	// results are never serialized unless set
	var out map[string]any
	c.Assert(json.Unmarshal([]byte(p.String()), &out), qt.IsNil)
	_, ok := out["results"]
	c.Assert(ok, qt.IsFalse)
}

func TestHexBytesJSON(t *testing.T) {
	c := qt.New(t)
	var b HexBytes
	c.Assert(json.Unmarshal([]byte(`"0x0a0b"`), &b), qt.IsNil)
	c.Assert([]byte(b), qt.DeepEquals, []byte{0x0a, 0x0b})
	out, err := json.Marshal(b)
	c.Assert(err, qt.IsNil)
	c.Assert(string(out), qt.Equals, `"0a0b"`)
	c.Assert(json.Unmarshal([]byte(`"zz"`), &b), qt.IsNotNil)
}
