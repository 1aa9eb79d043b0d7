// Package jobs warms the feedback cache in the background.
//
// A warm task carries a tag and content. The worker runs it through the
// coordinator, so a warmed entry is stored exactly as an interactive request
// would store it, and warming content that is already cached costs nothing.
// Tasks are identified by their cache key, so enqueueing the same content
// twice while the first task is pending is a no-op.
package jobs
