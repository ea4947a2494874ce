// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterListDispatchRunsInOrderUntilNonZero(t *testing.T) {
	fl := &filterList{}
	var order []int
	fl.Add(func(*Message) int { order = append(order, 1); return 0 })
	fl.Add(func(*Message) int { order = append(order, 2); return 1 })
	fl.Add(func(*Message) int { order = append(order, 3); return 0 })

	result := fl.Dispatch(&Message{}, 1)
	assert.Equal(t, 1, result)
	assert.Equal(t, []int{1, 2}, order)
}

func TestFilterListRemove(t *testing.T) {
	fl := &filterList{}
	ran := false
	handle := fl.Add(func(*Message) int { ran = true; return 0 })
	assert.True(t, fl.Remove(handle))
	assert.False(t, fl.Remove(handle))

	fl.Dispatch(&Message{}, 1)
	assert.False(t, ran)
}

func TestFilterListDoesNotRerunSameIteration(t *testing.T) {
	fl := &filterList{}
	calls := 0
	fl.Add(func(*Message) int { calls++; return 0 })

	fl.Dispatch(&Message{}, 1)
	fl.Dispatch(&Message{}, 1)
	assert.Equal(t, 1, calls)

	fl.Dispatch(&Message{}, 2)
	assert.Equal(t, 2, calls)
}

func TestFilterListRestartsOnMutationMidIteration(t *testing.T) {
	fl := &filterList{}
	var order []string

	fl.Add(func(*Message) int {
		order = append(order, "A")
		fl.Add(func(*Message) int { order = append(order, "C"); return 0 })
		return 0
	})
	fl.Add(func(*Message) int { order = append(order, "B"); return 0 })

	fl.Dispatch(&Message{}, 1)
	assert.Equal(t, []string{"A", "B", "C"}, order)
}
