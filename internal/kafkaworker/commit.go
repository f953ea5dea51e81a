package kafkaworker

import (
	"github.com/go-kit/log/level"
)

// CommitDue is called between poll cycles with the worker's own Offset
// Tracker (spec.md §4.4 "commit trigger"): it commits the current frontier
// of every partition the tracker's Snapshot reports, advanced or not.
// Failures are logged and left for the next successful commit (spec.md §7)
// — Snapshot keeps reporting a partition's frontier until it is committed,
// and Tracker.Commit is called only once that partition's offset-manager
// call succeeds. enable_auto_commit disables this path entirely since the broker
// client then owns commit timing (sess.MarkMessage / auto-commit).
//
// Every sink endpoint carries a consumer group id regardless of whether a
// partition filter bypassed group assignment (spec.md §6), so both
// subscription modes commit through the same OffsetManager scoped to that
// group id rather than through ConsumerGroupSession.Commit. The manager is
// built once in Run and reused here; only the lightweight per-partition
// PartitionOffsetManager is opened and closed per commit.
func (w *Worker) CommitDue() {
	if w.cfg.EnableAutoCommit || w.offsetManager == nil {
		return
	}
	offsets := w.tracker.Snapshot()
	if len(offsets) == 0 {
		return
	}

	for partition, offset := range offsets {
		pom, err := w.offsetManager.ManagePartition(w.cfg.Subscription.Topic, partition)
		if err != nil {
			level.Warn(w.logger).Log("msg", "commit failed", "partition", partition, "err", err)
			continue
		}
		pom.MarkOffset(offset, "")
		w.tracker.Commit(partition, offset)
		pom.Close()
	}
}
