package engine

import (
	"sync/atomic"

	"github.com/arbiterlabs/arbiter/core"
)

// channelSink adapts a buffered channel onto the ProgressSink contract:
// sends never block, overflow is counted and dropped.
type channelSink struct {
	ch      chan<- core.ProgressEvent
	dropped atomic.Int64
}

func newChannelSink(ch chan<- core.ProgressEvent) *channelSink {
	return &channelSink{ch: ch}
}

// Notify implements core.ProgressSink.
func (s *channelSink) Notify(ev core.ProgressEvent) {
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many events overflowed the buffer.
func (s *channelSink) Dropped() int64 {
	return s.dropped.Load()
}
