package maputil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPop(t *testing.T) {
	var mu sync.Mutex
	items := map[string]int{"a": 1}

	v, ok := Pop(&mu, items, "a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = Pop(&mu, items, "a")
	assert.False(t, ok)
}

func TestSwapAndCompareAndDelete(t *testing.T) {
	var mu sync.Mutex
	items := map[string]*int{}
	first, second := new(int), new(int)

	_, replaced := Swap(&mu, items, "dev", first)
	assert.False(t, replaced)
	prev, replaced := Swap(&mu, items, "dev", second)
	assert.True(t, replaced)
	assert.Same(t, first, prev)

	assert.False(t, CompareAndDelete(&mu, items, "dev", first))
	assert.True(t, CompareAndDelete(&mu, items, "dev", second))
	assert.Empty(t, items)
}
