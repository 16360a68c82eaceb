// Copyright 2021 The Matrix.org Foundation C.I.C.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observe

import "go.uber.org/atomic"

// Handle is a weak, pool-indexed reference to a Subscriber. It remains
// valid only as long as the slot it names has not been freed and
// reallocated; Get checks the embedded generation counter to detect a stale
// handle rather than silently returning whatever subscriber now occupies
// that slot. Transactions in flight hold a Handle, never a *Subscriber,
// precisely so a removal racing with that transaction can't leave a
// dangling pointer (see removeHandlesLocked in removal.go).
type Handle struct {
	index      int
	generation uint32
}

func (h Handle) valid() bool {
	return h.index >= 0
}

// ListID selects which of the registry's two lists an operation applies to.
type ListID int

const (
	ListUnactive ListID = iota
	ListPending
	ListBoth
)

type slot struct {
	sub        Subscriber
	generation uint32
	occupied   bool
	membership membership
	prev, next int
}

type subscriberList struct {
	head, tail int
	length     atomic.Int32
}

func newSubscriberList() subscriberList {
	return subscriberList{head: -1, tail: -1}
}

// Stats is a point-in-time snapshot of registry occupancy.
type Stats struct {
	Unactive int
	Pending  int
	Capacity int
}

// SubscriberRegistry is a bounded, allocation-free pool of Subscriber
// records plus two doubly-linked intrusive lists (unactive, pending) over
// pool slots over it.
type SubscriberRegistry struct {
	slots    []slot
	freeList []int
	unactive subscriberList
	pending  subscriberList
}

// NewSubscriberRegistry creates a registry with a fixed capacity. The pool
// never grows past capacity; Allocate reports failure once it is full.
func NewSubscriberRegistry(capacity int) *SubscriberRegistry {
	r := &SubscriberRegistry{
		slots:    make([]slot, capacity),
		freeList: make([]int, capacity),
		unactive: newSubscriberList(),
		pending:  newSubscriberList(),
	}
	for i := range r.slots {
		r.slots[i].prev = -1
		r.slots[i].next = -1
		r.freeList[i] = i
	}
	return r
}

// Capacity returns the pool's fixed capacity.
func (r *SubscriberRegistry) Capacity() int {
	return len(r.slots)
}

// Allocate reserves one record from the pool. The returned Subscriber is
// zero-valued; the caller is responsible for filling it in and moving it
// into the unactive list with MoveToUnactive.
func (r *SubscriberRegistry) Allocate() (Handle, bool) {
	if len(r.freeList) == 0 {
		return Handle{index: -1}, false
	}
	idx := r.freeList[len(r.freeList)-1]
	r.freeList = r.freeList[:len(r.freeList)-1]

	s := &r.slots[idx]
	s.sub = Subscriber{}
	s.occupied = true
	s.membership = membershipDetached
	s.prev, s.next = -1, -1

	return Handle{index: idx, generation: s.generation}, true
}

func (r *SubscriberRegistry) getSlot(h Handle) (*slot, bool) {
	if !h.valid() || h.index >= len(r.slots) {
		return nil, false
	}
	s := &r.slots[h.index]
	if !s.occupied || s.generation != h.generation {
		return nil, false
	}
	return s, true
}

// Get dereferences a Handle, returning false if it is stale (the slot was
// freed, possibly reallocated to a different subscriber, since the Handle
// was taken).
func (r *SubscriberRegistry) Get(h Handle) (*Subscriber, bool) {
	s, ok := r.getSlot(h)
	if !ok {
		return nil, false
	}
	return &s.sub, true
}

// Free returns a record to the pool. The caller must ensure h is not
// currently in either list (call Detach first); Free panics otherwise,
// since that would silently corrupt the list it was still linked into.
func (r *SubscriberRegistry) Free(h Handle) {
	s, ok := r.getSlot(h)
	if !ok {
		return
	}
	if s.membership != membershipDetached {
		panic("observe: Free called on a subscriber still linked in a list")
	}
	s.sub = Subscriber{}
	s.occupied = false
	s.generation++
	r.freeList = append(r.freeList, h.index)
}

func (r *SubscriberRegistry) listFor(id ListID) *subscriberList {
	switch id {
	case ListUnactive:
		return &r.unactive
	case ListPending:
		return &r.pending
	default:
		return nil
	}
}

func (r *SubscriberRegistry) unlink(l *subscriberList, idx int) {
	s := &r.slots[idx]
	if s.prev != -1 {
		r.slots[s.prev].next = s.next
	} else {
		l.head = s.next
	}
	if s.next != -1 {
		r.slots[s.next].prev = s.prev
	} else {
		l.tail = s.prev
	}
	s.prev, s.next = -1, -1
	l.length.Dec()
}

func (r *SubscriberRegistry) linkTail(l *subscriberList, idx int) {
	s := &r.slots[idx]
	s.prev = l.tail
	s.next = -1
	if l.tail != -1 {
		r.slots[l.tail].next = idx
	} else {
		l.head = idx
	}
	l.tail = idx
	l.length.Inc()
}

// MoveToPending moves h from the unactive list to the pending list. It is a
// no-op (returning false) if h is not currently unactive: this is the
// coalescing rule: re-marking an already-pending-or-in-transaction
// subscriber must not duplicate or reorder it.
func (r *SubscriberRegistry) MoveToPending(h Handle) bool {
	s, ok := r.getSlot(h)
	if !ok || s.membership != membershipUnactive {
		return false
	}
	r.unlink(&r.unactive, h.index)
	r.linkTail(&r.pending, h.index)
	s.membership = membershipPending
	return true
}

// MoveToUnactive moves h into the unactive list from either pending (the
// non-confirmable send path) or detached (fresh from Allocate, or returning
// from a completed transaction).
func (r *SubscriberRegistry) MoveToUnactive(h Handle) bool {
	s, ok := r.getSlot(h)
	if !ok {
		return false
	}
	switch s.membership {
	case membershipPending:
		r.unlink(&r.pending, h.index)
	case membershipDetached:
		// nothing to unlink
	default:
		return false
	}
	r.linkTail(&r.unactive, h.index)
	s.membership = membershipUnactive
	return true
}

// Detach removes h from whichever list currently holds it (if any),
// leaving it reachable only via its Handle. Used when a confirmable
// notification is dispatched (the subscriber is pinned to its in-flight
// transaction) and as the first step of removal.
func (r *SubscriberRegistry) Detach(h Handle) bool {
	s, ok := r.getSlot(h)
	if !ok {
		return false
	}
	switch s.membership {
	case membershipUnactive:
		r.unlink(&r.unactive, h.index)
	case membershipPending:
		r.unlink(&r.pending, h.index)
	case membershipDetached:
		return true
	}
	s.membership = membershipDetached
	return true
}

// UnactiveHead returns the first handle in the unactive list.
func (r *SubscriberRegistry) UnactiveHead() (Handle, bool) {
	return r.headOf(&r.unactive)
}

// PendingHead returns the first handle in the pending list, in FIFO
// dispatch order.
func (r *SubscriberRegistry) PendingHead() (Handle, bool) {
	return r.headOf(&r.pending)
}

func (r *SubscriberRegistry) headOf(l *subscriberList) (Handle, bool) {
	if l.head == -1 {
		return Handle{index: -1}, false
	}
	s := &r.slots[l.head]
	return Handle{index: l.head, generation: s.generation}, true
}

// UnactiveLen returns the current length of the unactive list.
func (r *SubscriberRegistry) UnactiveLen() int {
	return int(r.unactive.length.Load())
}

// PendingLen returns the current length of the pending list.
func (r *SubscriberRegistry) PendingLen() int {
	return int(r.pending.length.Load())
}

// Stats returns a snapshot of pool occupancy. Safe to call without the
// engine's lock (it reads only atomic counters).
func (r *SubscriberRegistry) Stats() Stats {
	return Stats{
		Unactive: int(r.unactive.length.Load()),
		Pending:  int(r.pending.length.Load()),
		Capacity: len(r.slots),
	}
}

// FindAll returns a snapshot of handles for every occupied slot, regardless
// of which list (if any) currently holds it. Removal operations need this:
// a subscriber pinned by an in-flight confirmable transaction is detached
// from both lists (see Detach) but must still be reachable so it can be
// marked Removed.
func (r *SubscriberRegistry) FindAll(pred func(*Subscriber) bool) []Handle {
	var out []Handle
	for idx := range r.slots {
		s := &r.slots[idx]
		if !s.occupied {
			continue
		}
		if pred == nil || pred(&s.sub) {
			out = append(out, Handle{index: idx, generation: s.generation})
		}
	}
	return out
}

// FindByPredicate walks the requested list(s) once, returning a snapshot
// slice of handles for which pred holds (or every handle, if pred is nil).
// Because the result is a snapshot rather than a live cursor, callers may
// freely Free or otherwise mutate list membership for entries while
// ranging over it — the "save next before removing" idiom. The
// mass-removal routines in removal.go get the same guarantee from FindAll.
func (r *SubscriberRegistry) FindByPredicate(id ListID, pred func(*Subscriber) bool) []Handle {
	var out []Handle
	scan := func(l *subscriberList) {
		for idx := l.head; idx != -1; idx = r.slots[idx].next {
			s := &r.slots[idx]
			if pred == nil || pred(&s.sub) {
				out = append(out, Handle{index: idx, generation: s.generation})
			}
		}
	}
	if id == ListUnactive || id == ListBoth {
		scan(&r.unactive)
	}
	if id == ListPending || id == ListBoth {
		scan(&r.pending)
	}
	return out
}
