package internal

import (
	"maps"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIterSeq2Concat(t *testing.T) {
	assert := assert.New(t)

	a := map[string]string{"A": "1"}
	b := map[string]string{"B": "2", "C": "3"}

	all := maps.Collect(IterSeq2Concat(maps.All(a), maps.All(b)))
	assert.Equal(map[string]string{"A": "1", "B": "2", "C": "3"}, all)

	var keys []int
	for n := range IterSeq2Concat(slices.All([]int{1, 2}), slices.All([]int{3})) {
		keys = append(keys, n)
		if len(keys) == 2 {
			break
		}
	}
	assert.Equal([]int{0, 1}, keys)
}
