// Package offsettracker implements the per-partition delivery-frontier
// bookkeeping described in spec.md §4.4: it remembers which records are in
// flight under which delivery tags, observes AMQP dispositions arriving in
// arbitrary order, and computes the highest offset that is safe to commit
// to Kafka.
//
// Every exported method takes the tracker's mutex, so the event loop, the
// disposition callbacks and the Kafka Consumer Worker (Snapshot, Commit)
// may call it from different goroutines.
package offsettracker

import "sync"

type trackedTag struct {
	partition int32
	offset    int64
}

// partitionState is the tracker's state for one partition.
type partitionState struct {
	// hasFrontier is false until the first record for this partition is
	// tracked; lastDelivered is only meaningful once true.
	hasFrontier   bool
	lastDelivered int64

	// inFlight holds offsets that have been tracked but not yet delivered.
	inFlight map[int64]struct{}

	// deliveredAbove holds offsets that have been delivered but are not
	// yet contiguous with lastDelivered.
	deliveredAbove map[int64]struct{}

	// advanced is set whenever lastDelivered moves forward since the last
	// Snapshot/GetOffsets call, so callers can omit unmoved partitions.
	advanced bool
}

func newPartitionState() *partitionState {
	return &partitionState{
		inFlight:       make(map[int64]struct{}),
		deliveredAbove: make(map[int64]struct{}),
	}
}

// Tracker is the event-loop-resident offset tracker for one sink endpoint's
// Kafka topic. All methods are safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex // guards tags/partitions; held by every method
	tags       map[string]trackedTag
	partitions map[int32]*partitionState
}

func New() *Tracker {
	return &Tracker{
		tags:       make(map[string]trackedTag),
		partitions: make(map[int32]*partitionState),
	}
}

func (t *Tracker) partition(p int32) *partitionState {
	ps, ok := t.partitions[p]
	if !ok {
		ps = newPartitionState()
		t.partitions[p] = ps
	}
	return ps
}

// Track remembers tag -> (partition, offset) and inserts offset into that
// partition's in-flight set. Called once per unsettled transfer, before it
// is sent (spec.md §4.1 step on `send`, unsettled branch).
func (t *Tracker) Track(tag string, partition int32, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tags[tag] = trackedTag{partition: partition, offset: offset}
	ps := t.partition(partition)
	if !ps.hasFrontier && len(ps.inFlight) == 0 && len(ps.deliveredAbove) == 0 {
		// First offset ever seen for this partition establishes the floor
		// one below it, so the greedy advance below can find offset itself
		// once delivered.
		ps.lastDelivered = offset - 1
		ps.hasFrontier = true
	}
	ps.inFlight[offset] = struct{}{}
}

// Delivered reports that tag's transfer reached a terminal disposition. It
// moves the offset from in-flight to delivered-above, then greedily
// advances lastDelivered while the next expected offset is present in
// delivered-above. Safe to call in any order relative to other tags
// (spec.md §4.4 "disposition callbacks may arrive out of order").
func (t *Tracker) Delivered(tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tt, ok := t.tags[tag]
	if !ok {
		return // stale or duplicate disposition; nothing to do
	}
	delete(t.tags, tag)

	ps := t.partition(tt.partition)
	delete(ps.inFlight, tt.offset)
	ps.deliveredAbove[tt.offset] = struct{}{}

	for {
		next := ps.lastDelivered + 1
		if _, ok := ps.deliveredAbove[next]; !ok {
			break
		}
		delete(ps.deliveredAbove, next)
		ps.lastDelivered = next
		ps.advanced = true
	}
}

// GetOffsets returns, for each partition that has advanced since the last
// call, the next offset to commit (lastDelivered + 1). Partitions with no
// advance are omitted (spec.md §4.4).
func (t *Tracker) GetOffsets() map[int32]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[int32]int64)
	for p, ps := range t.partitions {
		if !ps.advanced {
			continue
		}
		out[p] = ps.lastDelivered + 1
		ps.advanced = false
	}
	return out
}

// Snapshot returns lastDelivered + 1 for every partition that has a
// frontier, whether or not it advanced since the last call, and leaves the
// advanced flag untouched — used by the Consumer Worker's thread-safe
// commit-trigger query (spec.md §4.4 "the worker... queries the tracker via
// a thread-safe snapshot method").
func (t *Tracker) Snapshot() map[int32]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[int32]int64, len(t.partitions))
	for p, ps := range t.partitions {
		if ps.hasFrontier {
			out[p] = ps.lastDelivered + 1
		}
	}
	return out
}

// Commit signals that the worker committed offset (the next offset to
// consume) for partition; state strictly below offset is pruned, and the
// partition's advanced flag is
// cleared since this call is the caller's acknowledgement that the
// frontier it observed (via Snapshot) was durably committed. Pruning is
// limited to bookkeeping the partition's own maps — delivered/in-flight
// offsets are already governed by lastDelivered and are naturally empty at
// or below it.
func (t *Tracker) Commit(partition int32, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps, ok := t.partitions[partition]
	if !ok {
		return
	}
	for o := range ps.deliveredAbove {
		if o < offset {
			delete(ps.deliveredAbove, o)
		}
	}
	for o := range ps.inFlight {
		if o < offset {
			delete(ps.inFlight, o)
		}
	}
	ps.advanced = false
}

// Clear wipes all tracker state (endpoint close).
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tags = make(map[string]trackedTag)
	t.partitions = make(map[int32]*partitionState)
}
