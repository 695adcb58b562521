package helper_test

import (
	"testing"

	"github.com/consoden/dobcore/pkg/dob/helper"
)

func TestGenerateUID_ProducesDistinctValues(t *testing.T) {
	a := helper.GenerateUID()
	b := helper.GenerateUID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty UIDs")
	}
	if a == b {
		t.Fatal("expected two calls to produce distinct UIDs")
	}
}

func TestMaxUint64(t *testing.T) {
	cases := []struct {
		values []uint64
		want   uint64
	}{
		{nil, 0},
		{[]uint64{}, 0},
		{[]uint64{5}, 5},
		{[]uint64{3, 9, 1, 9, 2}, 9},
	}
	for _, c := range cases {
		if got := helper.MaxUint64(c.values); got != c.want {
			t.Fatalf("MaxUint64(%v) = %d, want %d", c.values, got, c.want)
		}
	}
}
