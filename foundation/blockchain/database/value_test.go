package database_test

import (
	"math"
	"testing"

	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
)

func Test_AddValue(t *testing.T) {
	type table struct {
		name string
		a    int64
		b    int64
		sum  int64
		ok   bool
	}

	tt := []table{
		{name: "small", a: 20, b: 5, sum: 25, ok: true},
		{name: "zero", a: math.MaxInt64, b: 0, sum: math.MaxInt64, ok: true},
		{name: "at max", a: math.MaxInt64 - 1, b: 1, sum: math.MaxInt64, ok: true},
		{name: "past max", a: math.MaxInt64, b: 1, ok: false},
		{name: "past min", a: math.MinInt64, b: -1, ok: false},
	}

	t.Log("Given the need to add output values without wrapping.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen adding %s values.", testID, tst.name)
			{
				sum, ok := database.AddValue(tst.a, tst.b)
				if ok != tst.ok {
					t.Fatalf("\t%s\tTest %d:\tShould report overflow %v, got %v.", failed, testID, !tst.ok, !ok)
				}
				if ok && sum != tst.sum {
					t.Fatalf("\t%s\tTest %d:\tShould get %d, got %d.", failed, testID, tst.sum, sum)
				}
				t.Logf("\t%s\tTest %d:\tShould add the values correctly.", success, testID)
			}
		}
	}
}
