// Package hub fans heart rate events out to every attached consumer.
//
// The main components are:
//
//   - [Consumer]: a downstream observer that can be sent one serialized event
//   - [Hub]: the active consumer set and the broadcast round
//   - [SampleEvent] and [StatusEvent]: the two published message shapes
//
// A broadcast round takes a snapshot of the consumer set, marshals the event
// once, and sends it to every snapshotted consumer concurrently under one
// shared deadline. Consumers whose send fails, panics, or does not finish
// before the deadline are evicted once the round completes. Sends that
// finished in time are unaffected by a slow sibling. There is no retry and
// no ordering guarantee across consumers.
//
// The set is held in a thread-safe set, so register, unregister, and publish
// may be called from any goroutine.
package hub
