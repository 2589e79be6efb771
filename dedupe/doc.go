// Package dedupe collapses concurrent fetches for the same key into a
// single in-flight call.
//
// A Coalescer wraps singleflight so that when several callers request the
// same key at once, only one executes the fetch; the rest block and receive
// the same value or error. Cancel detaches future callers from an in-flight
// fetch without aborting it, and a caller whose context ends stops waiting
// while the fetch itself runs to completion for the remaining waiters.
package dedupe
