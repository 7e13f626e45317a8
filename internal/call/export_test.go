package call

import (
	"time"

	pkgwebrtc "github.com/HMasataka/counsel/pkg/webrtc"
	"github.com/pion/webrtc/v4"
)

// Flush waits until every task queued so far has run on the loop, and
// every transcript append it queued has finished.
func (c *Coordinator) Flush() {
	c.pool.SubmitWait(func() {})
	c.sinkPool.SubmitWait(func() {})
}

// Settle waits until the loop is idle and no engine work is outstanding.
func (c *Coordinator) Settle() {
	for {
		c.Flush()
		if c.pending.Load() == 0 {
			c.Flush()
			if c.pending.Load() == 0 {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *Coordinator) Engine() *Engine {
	return c.engine
}

// AppliedCandidates returns how many remote candidates reached the live
// peer connection.
func (e *Engine) AppliedCandidates() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return 0
	}
	return e.session.applied
}

func (e *Engine) BufferedCandidates() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return 0
	}
	return e.session.remoteCandidates.Len()
}

func (e *Engine) EarlyCandidates(callID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	q, ok := e.early[callID]
	if !ok {
		return 0
	}
	return q.Len()
}

// DeliverRemoteTrack feeds the live session as if the peer connection had
// fired OnTrack.
func (e *Engine) DeliverRemoteTrack(streamID, trackID string, kind webrtc.RTPCodecType, codec webrtc.RTPCodecCapability, ssrc uint32, src pkgwebrtc.RTPReader) {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()

	if s != nil {
		e.addRemoteTrack(s, streamID, trackID, kind, codec, ssrc, src)
	}
}
