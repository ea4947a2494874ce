// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

// NewCandidateFunc returns a [Func] that always returns the given
// [Candidate].
//
// This is a convenience wrapper around [ConstFunc] for the common case of
// injecting one already-parsed transport candidate into a dialer's
// resolve-candidate -> connect -> observe -> cancel-watch pipeline.
func NewCandidateFunc(candidate Candidate) Func[Unit, Candidate] {
	return ConstFunc(candidate)
}
