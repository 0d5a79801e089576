// Package id mints UUIDv4 identifiers for tasks, subscriptions, and request
// correlation, backed by github.com/google/uuid rather than a hand-rolled
// encoding.
//
// Usage
//
//	taskID := id.New()        // "f47ac10b-58cc-4372-a567-0e02b2c3d479"
//	ok := id.Valid(taskID)    // validate an ID received from a client
package id
