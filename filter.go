// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

// FilterFunc inspects every inbound message before match-rule and
// object-tree dispatch. A non-zero return suppresses matches and object
// dispatch for this message (spec §4.6, "Tie-breaks").
type FilterFunc func(msg *Message) int

// filterEntry is a [FilterFunc] stamped with the iteration number that
// last ran it, preventing double-invocation when the list is mutated
// mid-scan (spec §3 FilterCallback, §9 "Re-entrant iteration").
type filterEntry struct {
	fn       FilterFunc
	lastIter uint64
}

// filterList is the Connection's ordered filter chain.
type filterList struct {
	entries []*filterEntry
	version uint64
}

// Add appends fn to the chain and returns a handle usable with Remove.
func (fl *filterList) Add(fn FilterFunc) *filterEntry {
	e := &filterEntry{fn: fn}
	fl.entries = append(fl.entries, e)
	fl.version++
	return e
}

// Remove unlinks the filter identified by handle, if still present.
func (fl *filterList) Remove(handle *filterEntry) bool {
	for i, e := range fl.entries {
		if e == handle {
			fl.entries = append(fl.entries[:i], fl.entries[i+1:]...)
			fl.version++
			return true
		}
	}
	return false
}

// Dispatch runs every filter not yet stamped with iteration, in list
// order, stopping at the first non-zero return. If the list is mutated
// during a filter's execution, the scan restarts from the head; entries
// already stamped with iteration are skipped on the restart, so none
// runs twice (spec §4.6 step c, §8 scenario 4).
func (fl *filterList) Dispatch(msg *Message, iteration uint64) int {
	i := 0
	for i < len(fl.entries) {
		e := fl.entries[i]
		if e.lastIter == iteration {
			i++
			continue
		}
		startVersion := fl.version
		e.lastIter = iteration
		result := e.fn(msg)
		if fl.version != startVersion {
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
