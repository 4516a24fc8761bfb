package main

import "time"

const (
	txQueueSize  = 1024 // SocketCAN mirror writer ring
	rxBackoffMin = 20 * time.Millisecond
	rxBackoffMax = 500 * time.Millisecond
)
