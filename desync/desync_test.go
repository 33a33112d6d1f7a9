package desync

import (
	"net/netip"
	"testing"
)

func TestLongestMatch(t *testing.T) {
	tbl := New()
	tbl.Mark(netip.MustParsePrefix("10.1.0.0/16"))

	if !tbl.LongestMatch(netip.MustParseAddr("10.1.2.3")) {
		t.Error("expected address within marked prefix to match")
	}
	if tbl.LongestMatch(netip.MustParseAddr("10.2.2.3")) {
		t.Error("expected address outside marked prefix to not match")
	}
}

func TestMarkDuplicateKeepsFirst(t *testing.T) {
	tbl := New()
	tbl.Mark(netip.MustParsePrefix("10.1.0.0/16"))
	tbl.Mark(netip.MustParsePrefix("10.1.0.0/16"))

	if tbl.Len() != 1 {
		t.Errorf("expected duplicate mark to be dropped, got %d entries", tbl.Len())
	}
}

func TestMoreSpecificNesting(t *testing.T) {
	tbl := New()
	tbl.Mark(netip.MustParsePrefix("10.0.0.0/8"))
	tbl.Mark(netip.MustParsePrefix("10.1.0.0/16"))

	if !tbl.LongestMatch(netip.MustParseAddr("10.1.2.3")) {
		t.Error("expected address covered by nested prefixes to match")
	}
	if !tbl.LongestMatch(netip.MustParseAddr("10.9.9.9")) {
		t.Error("expected address covered only by the broader prefix to still match")
	}
	if tbl.Len() != 2 {
		t.Errorf("expected two distinct marks, got %d", tbl.Len())
	}
}
