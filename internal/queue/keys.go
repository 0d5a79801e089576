package queue

import "fmt"

// Key layout, per the backing store's persisted state contract: every key
// Zaku writes is namespaced under a fixed prefix so one Redis instance can
// be shared by multiple deployments.
//
//	{prefix}:queue:{name}:pending   ordered list of pending task ids
//	{prefix}:queue:{name}:claims    hash: task id -> {deadline}
//	{prefix}:queue:{name}:meta      hash: task id -> task record (incl. payload)
//	{prefix}:queues                 set of known queue names

func pendingKey(prefix, queue string) string { return fmt.Sprintf("%s:queue:%s:pending", prefix, queue) }
func claimsKey(prefix, queue string) string  { return fmt.Sprintf("%s:queue:%s:claims", prefix, queue) }
func metaKey(prefix, queue string) string    { return fmt.Sprintf("%s:queue:%s:meta", prefix, queue) }
func queuesKey(prefix string) string         { return fmt.Sprintf("%s:queues", prefix) }

// TopicKey returns the backing-store pub/sub channel name for topic,
// {prefix}:topic:{name}.
func TopicKey(prefix, topic string) string { return fmt.Sprintf("%s:topic:%s", prefix, topic) }
