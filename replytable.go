// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"container/heap"
	"time"
)

// ReplyCallback is invoked when a pending method call's reply arrives or
// its deadline passes; msg is then the reply or the synthesized timeout
// error, never nil. Cancelling a pending call removes it without
// invoking the callback (spec §3 PendingReply, §4.5).
type ReplyCallback func(msg *Message, userData any)

// pendingReply is a record keyed by the outgoing serial (spec §3).
type pendingReply struct {
	serial    uint32
	callback  ReplyCallback
	userData  any
	deadline  time.Time // zero means no timeout
	heapIndex int
}

// hasDeadline reports whether this entry participates in the timeout
// priority queue.
func (p *pendingReply) hasDeadline() bool {
	return !p.deadline.IsZero()
}

// timeoutHeap orders pending replies by deadline ascending; entries with
// no deadline sort last (spec §4.5: "entries with deadline 0 sort AFTER
// any positive deadline").
type timeoutHeap []*pendingReply

func (h timeoutHeap) Len() int { return len(h) }

func (h timeoutHeap) Less(i, j int) bool {
	di, dj := h[i].hasDeadline(), h[j].hasDeadline()
	if di != dj {
		return di // the one with a deadline sorts first
	}
	if !di {
		return false // neither has a deadline: order is irrelevant
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timeoutHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *timeoutHeap) Push(x any) {
	p := x.(*pendingReply)
	p.heapIndex = len(*h)
	*h = append(*h, p)
}

func (h *timeoutHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	p.heapIndex = -1
	*h = old[:n-1]
	return p
}

// replyTable is the reply correlation table of spec §4.5: a
// serial→PendingReply map kept synchronized with a deadline-ordered
// priority queue.
type replyTable struct {
	bySerial map[uint32]*pendingReply
	timeouts timeoutHeap

	Log     *ReplyLogContext
	TimeNow func() time.Time
}

func newReplyTable(log *ReplyLogContext, timeNow func() time.Time) *replyTable {
	return &replyTable{
		bySerial: make(map[uint32]*pendingReply),
		Log:      log,
		TimeNow:  timeNow,
	}
}

// Len reports the number of outstanding pending replies.
func (t *replyTable) Len() int {
	return len(t.bySerial)
}

// register inserts a new pending reply for serial. timeout ==
// [NoTimeout] means the reply never expires. Registering a duplicate
// serial is a programming error and replaces the prior entry, matching
// the "unique keys" contract by making keys unique-by-construction at
// the call site ([*Connection] never reuses an in-flight serial).
func (t *replyTable) register(serial uint32, cb ReplyCallback, ud any, timeout time.Duration) error {
	p := &pendingReply{serial: serial, callback: cb, userData: ud, heapIndex: -1}
	if timeout != NoTimeout {
		p.deadline = t.TimeNow().Add(timeout)
	}
	if old, ok := t.bySerial[serial]; ok && old.heapIndex >= 0 {
		heap.Remove(&t.timeouts, old.heapIndex)
	}
	t.bySerial[serial] = p
	heap.Push(&t.timeouts, p)

	if t.Log != nil {
		t.Log.LogCallStart(t.TimeNow(), p.deadline, serial, "", "", "", "")
	}
	return nil
}

// cancel removes serial from both structures without invoking its
// callback (spec §5: "cancel(serial) is synchronous and idempotent;
// after return, the callback will not fire for that serial").
func (t *replyTable) cancel(serial uint32) bool {
	p, ok := t.bySerial[serial]
	if !ok {
		return false
	}
	delete(t.bySerial, serial)
	if p.heapIndex >= 0 {
		heap.Remove(&t.timeouts, p.heapIndex)
	}
	return true
}

// deliver matches msg's reply-serial against a pending reply; on match
// it removes the entry from both structures, invokes the callback, and
// returns true. Returns false if no pending reply matches (the message
// should fall through to filters/matches/objects).
func (t *replyTable) deliver(msg *Message) bool {
	if msg.Header.Type != TypeMethodReturn && msg.Header.Type != TypeMethodError {
		return false
	}
	p, ok := t.bySerial[msg.Header.ReplySerial]
	if !ok {
		return false
	}
	delete(t.bySerial, p.serial)
	if p.heapIndex >= 0 {
		heap.Remove(&t.timeouts, p.heapIndex)
	}
	if t.Log != nil {
		t.Log.LogCallDone(time.Time{}, p.deadline, p.serial, nil)
	}
	p.callback(msg, p.userData)
	return true
}

// expire pops every entry whose deadline has passed as of now,
// synthesizes a [org.freedesktop.DBus.Error.NoReply] method-error, and
// invokes its callback (spec §4.5).
func (t *replyTable) expire(now time.Time) int {
	count := 0
	for len(t.timeouts) > 0 {
		p := t.timeouts[0]
		if !p.hasDeadline() || p.deadline.After(now) {
			break
		}
		heap.Pop(&t.timeouts)
		delete(t.bySerial, p.serial)

		if t.Log != nil {
			t.Log.LogCallTimeout(p.deadline, p.serial)
		}

		synthetic := &Message{
			Header:    Header{Type: TypeMethodError, Version: 1, Endian: nativeEndianByte, ReplySerial: p.serial, HasReply: true, Serial: p.serial},
			ErrorName: ErrorNameNoReply,
			Body:      encodeString("Method call timed out"),
			sealed:    true,
		}
		p.callback(synthetic, p.userData)
		count++
	}
	return count
}

// NextDeadline returns the earliest deadline among outstanding pending
// replies, or false if none has one.
func (t *replyTable) NextDeadline() (time.Time, bool) {
	if len(t.timeouts) == 0 || !t.timeouts[0].hasDeadline() {
		return time.Time{}, false
	}
	return t.timeouts[0].deadline, true
}
