// Copyright 2025 OpenStacks Software
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

package event

import "sort"

// IndexSet is a set of event indices into a flattened per-batch event list
type IndexSet map[int]struct{}

func (s IndexSet) add(i int) {
	s[i] = struct{}{}
}

// Contains reports whether the set holds the given event index
func (s IndexSet) Contains(i int) bool {
	_, ok := s[i]
	return ok
}

// Indices returns the event indices in ascending order
func (s IndexSet) Indices() []int {
	ret := make([]int, 0, len(s))
	for i := range s {
		ret = append(ret, i)
	}
	sort.Ints(ret)
	return ret
}

// DispatchMatrix maps each observer index to the set of event indices it
// should receive for one batch. Built once per batch, consumed once
type DispatchMatrix []IndexSet

// DispatchMatrix flattens the given receipts into a single ordered event
// list and computes, in one pass, the set of matching event indices per
// registered observer. Each event is classified into exactly one topic
// category; any-event observers receive every index regardless of topic
func (r *Registry) DispatchMatrix(
	receipts []TxReceipt,
) (DispatchMatrix, []FlatEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matrix := make(DispatchMatrix, len(r.observers))
	for i := range matrix {
		matrix[i] = make(IndexSet)
	}
	var events []FlatEvent
	eventIndex := 0
	for ri := range receipts {
		receipt := &receipts[ri]
		for ei := range receipt.Events {
			evt := &receipt.Events[ei]
			switch {
			case evt.Type == EventTypeContract:
				lookupKey := contractEventKey{
					Contract:  evt.Contract,
					EventName: evt.EventName,
				}
				for id := range r.contractEvents[lookupKey] {
					matrix[id].add(eventIndex)
				}
			case evt.Type.IsSTX():
				for id := range r.stx {
					matrix[id].add(eventIndex)
				}
			case evt.Type.IsAsset():
				for id := range r.assets[evt.Asset] {
					matrix[id].add(eventIndex)
				}
			}
			events = append(events, FlatEvent{
				Committed: receipt.Committed,
				Txid:      receipt.Txid,
				Event:     evt,
			})
			for id := range r.anyEvent {
				matrix[id].add(eventIndex)
			}
			eventIndex++
		}
	}
	return matrix, events
}
