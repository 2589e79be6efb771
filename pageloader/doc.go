// Package pageloader drives incremental page loading over a fetch
// function, typically one backed by a tiered cache.
//
// A Loader tracks the pagination cursor, accumulated items, and whether
// more pages exist. Scroll positions can be fed to OnScroll, which triggers
// a debounced next-page load once a threshold is crossed, so a burst of
// scroll events costs one fetch.
package pageloader
