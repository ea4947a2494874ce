// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchRuleMatchesWildcardsAndArg0(t *testing.T) {
	r := &matchRule{Interface: "org.example.Iface", Arg0: "hello"}

	msg := &Message{Interface: "org.example.Iface", Member: "Signal", Body: encodeString("hello")}
	assert.True(t, r.matches(msg))

	msg.Interface = "org.other.Iface"
	assert.False(t, r.matches(msg))

	msg.Interface = "org.example.Iface"
	msg.Body = encodeString("goodbye")
	assert.False(t, r.matches(msg))
}

func TestMatchTreeDispatchOnlyRunsMatchingRules(t *testing.T) {
	mt := &matchTree{}
	var ran []string
	mt.AddRule("org.example.A", "", "", "", "a", func(*Message) int { ran = append(ran, "a"); return 0 })
	mt.AddRule("org.example.B", "", "", "", "b", func(*Message) int { ran = append(ran, "b"); return 0 })

	mt.Dispatch(&Message{Interface: "org.example.A"}, 1)
	assert.Equal(t, []string{"a"}, ran)
}

func TestMatchTreeRemoveRule(t *testing.T) {
	mt := &matchTree{}
	ran := false
	mt.AddRule("", "", "", "", "cookie", func(*Message) int { ran = true; return 0 })

	assert.True(t, mt.RemoveRule("cookie"))
	assert.False(t, mt.RemoveRule("cookie"))

	mt.Dispatch(&Message{}, 1)
	assert.False(t, ran)
}

func TestMatchTreeStopsAtFirstNonZero(t *testing.T) {
	mt := &matchTree{}
	var ran []string
	mt.AddRule("", "", "", "", "a", func(*Message) int { ran = append(ran, "a"); return 1 })
	mt.AddRule("", "", "", "", "b", func(*Message) int { ran = append(ran, "b"); return 1 })

	result := mt.Dispatch(&Message{}, 1)
	assert.Equal(t, 1, result)
	assert.Equal(t, []string{"a"}, ran)
}
