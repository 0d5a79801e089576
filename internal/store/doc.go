// Package store implements Zaku's backing-store adapter: the narrow
// contract of JSON-document get/set/delete, ordered-list push/pop,
// string-keyed map access, key-prefix iteration, and channel-based
// pub/sub that the queue engine and pub/sub fabric are built against.
// The concrete implementation is Redis via github.com/redis/go-redis/v9;
// internal/queue and internal/pubsub depend only on the Store interface,
// not on go-redis directly.
package store
