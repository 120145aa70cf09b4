package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestStressGCKeepsReachableValuesIntact forces a collection before every
// allocation and checks that a value still reachable from a global
// survives with its contents unchanged.
func TestStressGCKeepsReachableValuesIntact(t *testing.T) {
	v := New(zap.NewNop().Sugar())
	v.SetStressGC(true)
	var out bytes.Buffer
	v.Stdout = &out

	err := v.Interpret(`
		var xs = [];
		for (var i = 0; i < 200; i = i + 1) {
			xs.push("item-" + "x");
		}
		print(xs[0]);
		print(xs[199]);
		print(xs.length);
	`, "test")
	require.NoError(t, err)
	assert.Equal(t, "item-x\nitem-x\n200\n", out.String())
}

// TestGarbageCollectionReclaimsUnreachableObjects checks that objects
// with no remaining root path are unlinked from the allocation list
// after an explicit collection.
func TestGarbageCollectionReclaimsUnreachableObjects(t *testing.T) {
	v := New(zap.NewNop().Sugar())
	err := v.Interpret(`
		var keep = "root-anchored";
		def churn() {
			var i = 0;
			while (i < 500) {
				var tmp = "throwaway-" + "x";
				i = i + 1;
			}
		}
		churn();
	`, "test")
	require.NoError(t, err)

	before := vm_countObjects(v)
	v.collectGarbage()
	after := vm_countObjects(v)
	assert.LessOrEqual(t, after, before)

	val, ok := v.Global("keep")
	require.True(t, ok)
	assert.Equal(t, "root-anchored", val.String())
}

func vm_countObjects(v *VM) int {
	n := 0
	for o := v.objects; o != nil; o = o.Next {
		n++
	}
	return n
}
