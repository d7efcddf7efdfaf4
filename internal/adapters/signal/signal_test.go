package signal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickpm/sfu/internal/app/orch"
	"github.com/stickpm/sfu/internal/core"
)

func TestCheckSeqRejectsReplay(t *testing.T) {
	c := &WsSignalConn{}

	require.NoError(t, c.checkSeq(1))
	require.NoError(t, c.checkSeq(2))

	// Replaying or reordering an already-seen sequence fails.
	assert.ErrorIs(t, c.checkSeq(2), ErrStaleRequest)
	assert.ErrorIs(t, c.checkSeq(1), ErrStaleRequest)

	// Gaps are fine; the counter only has to advance.
	require.NoError(t, c.checkSeq(10))
	assert.ErrorIs(t, c.checkSeq(5), ErrStaleRequest)
}

func TestCheckSeqAdmitsUnnumbered(t *testing.T) {
	c := &WsSignalConn{}
	require.NoError(t, c.checkSeq(5))

	// Clients that do not number their messages always pass.
	assert.NoError(t, c.checkSeq(0))
	assert.NoError(t, c.checkSeq(0))
}

func TestCheckSeqConcurrent(t *testing.T) {
	c := &WsSignalConn{}

	var wg sync.WaitGroup
	admitted := make([]bool, 100)
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(seq int64) {
			defer wg.Done()
			admitted[seq-1] = c.checkSeq(seq) == nil
		}(int64(i))
	}
	wg.Wait()

	// At least the highest sequence always wins, and nothing gets
	// admitted twice.
	assert.True(t, admitted[99])
	for i := 1; i <= 100; i++ {
		if admitted[i-1] {
			assert.ErrorIs(t, c.checkSeq(int64(i)), ErrStaleRequest)
		}
	}
}

func TestTrySendBackpressure(t *testing.T) {
	c := &WsSignalConn{send: make(chan core.Frame, 1)}

	require.NoError(t, c.TrySend(core.Frame("one")))
	assert.ErrorIs(t, c.TrySend(core.Frame("two")), ErrBackpressure)
}

func TestTrySendAfterClose(t *testing.T) {
	c := &WsSignalConn{send: make(chan core.Frame, 1)}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	assert.Error(t, c.TrySend(core.Frame("x")))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "Maximum number of broadcasters reached", errorMessage(core.ErrCapacityExceeded))
	assert.Equal(t, "Already broadcasting in this room", errorMessage(core.ErrDuplicateParticipant))
	assert.Equal(t, "Stream not found or no streams available", errorMessage(core.ErrStreamNotFound))
	assert.Equal(t, "Invalid SDP or type", errorMessage(core.ErrInvalidDescription))
	assert.Equal(t, "Stale request", errorMessage(ErrStaleRequest))
	assert.Equal(t, "Connection setup failed", errorMessage(core.ErrTransportFailure))
	assert.Equal(t, "Join a room first", errorMessage(orch.ErrNotInRoom))
	assert.Equal(t, "Request failed", errorMessage(assert.AnError))
}

func TestDecodeOfferSDPMirrorsForm(t *testing.T) {
	plain := "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"

	got, obfuscated := decodeOfferSDP(plain)
	assert.Equal(t, plain, got)
	assert.False(t, obfuscated)
	assert.Equal(t, plain, encodeAnswerSDP(plain, false))

	// Obfuscated in, obfuscated out.
	wrapped, obfuscated := decodeOfferSDP(encodeAnswerSDP(plain, true))
	assert.Equal(t, plain, wrapped)
	assert.True(t, obfuscated)
}
