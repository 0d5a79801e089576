// Package pubsub implements the topic-indexed subscriber registry:
// timeout-bounded one-shot and streaming consumption over ephemeral,
// history-less topics, used directly by SUBSCRIBE/PUBLISH and by the
// RPC-over-queue pattern built on top of it.
package pubsub
