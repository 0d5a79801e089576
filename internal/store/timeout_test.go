package store

import "time"

func timeoutCh() <-chan time.Time {
	return time.After(2 * time.Second)
}
