// Package queue is the job queue engine for asynchronous alt-text
// generation. It coordinates enqueue deduplication, compare-and-swap batch
// claiming, retry and failure policy, stale-job recovery, and the one-shot
// trigger that schedules drain passes. The engine is deliberately free of
// resident workers: every pass is a finite unit of work scheduled by the
// trigger, so any number of processes can run it against the same store.
package queue
