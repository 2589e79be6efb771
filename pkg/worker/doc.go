// Package worker provides a generic bounded worker pool.
//
// The pool processes items of any type T with a fixed number of workers
// reading from a bounded queue. Submit never blocks: when the queue is full
// the item is dropped and ErrQueueFull returned, which suits fire-and-forget
// work like background cache refreshes where a dropped task just means the
// next read schedules another one.
package worker
