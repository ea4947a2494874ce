// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

// MatchFunc handles a message selected by a [matchRule]. A non-zero
// return suppresses object-tree dispatch for this message (spec §4.6
// step d, same tie-break rule as filters).
type MatchFunc func(msg *Message) int

// matchRule is one leaf of the match tree (spec §3 MatchNode): empty
// fields act as wildcards. Cookie identifies the broker-side
// subscription this rule corresponds to, for removal by
// [*matchTree.RemoveRule].
type matchRule struct {
	Interface string
	Member    string
	Path      string
	Arg0      string

	Cookie   string
	fn       MatchFunc
	lastIter uint64
}

func (r *matchRule) matches(msg *Message) bool {
	if r.Interface != "" && r.Interface != msg.Interface {
		return false
	}
	if r.Member != "" && r.Member != msg.Member {
		return false
	}
	if r.Path != "" && r.Path != msg.Path {
		return false
	}
	if r.Arg0 != "" {
		arg0, _, ok := decodeString(msg.Body)
		if !ok || arg0 != r.Arg0 {
			return false
		}
	}
	return true
}

// matchTree holds every subscribed [matchRule]. It is implemented as a
// flat list rather than a nested key tree: with the rule counts this
// engine expects per connection, a linear scan under the same
// restart-on-mutation discipline as [filterList] is simpler and equally
// correct.
type matchTree struct {
	rules   []*matchRule
	version uint64
}

// AddRule registers a new match rule and returns it as a removal handle.
func (mt *matchTree) AddRule(iface, member, path, arg0, cookie string, fn MatchFunc) *matchRule {
	r := &matchRule{Interface: iface, Member: member, Path: path, Arg0: arg0, Cookie: cookie, fn: fn}
	mt.rules = append(mt.rules, r)
	mt.version++
	return r
}

// RemoveRule unlinks the rule matching cookie, if present.
func (mt *matchTree) RemoveRule(cookie string) bool {
	for i, r := range mt.rules {
		if r.Cookie == cookie {
			mt.rules = append(mt.rules[:i], mt.rules[i+1:]...)
			mt.version++
			return true
		}
	}
	return false
}

// Dispatch runs every rule whose pattern matches msg, under the same
// mutation-restart discipline as [filterList.Dispatch].
func (mt *matchTree) Dispatch(msg *Message, iteration uint64) int {
	i := 0
	for i < len(mt.rules) {
		r := mt.rules[i]
		if r.lastIter == iteration || !r.matches(msg) {
			i++
			continue
		}
		startVersion := mt.version
		r.lastIter = iteration
		result := r.fn(msg)
		if mt.version != startVersion {
			i = 0
			continue
		}
		if result != 0 {
			return result
		}
		i++
	}
	return 0
}
