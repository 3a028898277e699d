package rndis

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softrndis/pkg"
)

func nop(any) {}

func TestRegisterSlots(t *testing.T) {
	reg := NewRegistry(WithCapacity(3))
	require.Equal(t, 3, reg.Capacity())

	for want := ID(0); want < 3; want++ {
		id, err := reg.Register(nop, nil)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	_, err := reg.Register(nop, nil)
	require.ErrorIs(t, err, pkg.ErrNoResources)

	reg.Deregister(1)
	id, err := reg.Register(nop, nil)
	require.NoError(t, err)
	assert.Equal(t, ID(1), id)
}

func TestRegisterDefaults(t *testing.T) {
	reg := NewRegistry(WithCapacity(0))
	assert.Equal(t, DefaultCapacity, reg.Capacity())

	_, err := reg.Register(nil, nil)
	require.ErrorIs(t, err, pkg.ErrInvalidParameter)

	s, err := reg.Snapshot(0)
	require.NoError(t, err)
	assert.False(t, s.Registered)
	assert.Equal(t, StateUninitialized, s.State)
	assert.Equal(t, MediaDisconnected, s.Media)
	assert.Equal(t, HardwareNotReady, s.Hardware)
}

func TestRegistryRejectsBadIDs(t *testing.T) {
	reg := NewRegistry()

	require.ErrorIs(t, reg.Dispatch(5, EncodeKeepalive(1)), pkg.ErrNotSupported)
	require.ErrorIs(t, reg.SignalConnect(-1), pkg.ErrNotSupported)
	require.ErrorIs(t, reg.SignalDisconnect(1), pkg.ErrNotSupported)
	require.ErrorIs(t, reg.BindDevice(1, newFakeDevice(), nil), pkg.ErrInvalidParameter)
	require.ErrorIs(t, reg.BindDevice(0, nil, nil), pkg.ErrInvalidParameter)
	require.ErrorIs(t, reg.SetVendor(2, 0, ""), pkg.ErrInvalidParameter)
	require.ErrorIs(t, reg.SetMedium(2, Medium8023, 0), pkg.ErrInvalidParameter)
	_, err := reg.Snapshot(9)
	require.ErrorIs(t, err, pkg.ErrInvalidParameter)

	_, ok := reg.NextResponse(3)
	assert.False(t, ok)
	assert.Zero(t, reg.Drain(3))
	reg.Uninit(3)
	reg.Deregister(3)
	reg.FreeResponse(3, nil)
}

func TestUninitIdempotent(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.reg.SignalConnect(h.id), pkg.ErrNotSupported)
	require.NoError(t, h.dispatch(EncodeInitialize(1, 0x4000)))
	require.NoError(t, h.dispatch(EncodeKeepalive(2)))

	// One response is out with the transport when teardown happens.
	held, ok := h.reg.NextResponse(h.id)
	require.True(t, ok)

	h.reg.Uninit(h.id)
	first := h.snapshot()
	h.reg.Uninit(h.id)
	second := h.snapshot()

	assert.Equal(t, first, second)
	assert.Equal(t, StateUninitialized, second.State)
	assert.Equal(t, MediaDisconnected, second.Media)
	assert.Equal(t, HardwareNotReady, second.Hardware)
	assert.Equal(t, 0, second.Queued)
	h.requireEmpty()

	h.reg.FreeResponse(h.id, held)
	assert.Equal(t, 0, h.snapshot().Queued)
}

func TestNextResponseNeverRepeats(t *testing.T) {
	h := newHarness(t)
	for i := uint32(1); i <= 3; i++ {
		require.NoError(t, h.dispatch(EncodeKeepalive(i)))
	}

	seen := map[*Response]bool{}
	var got []*Response
	for range 3 {
		r, ok := h.reg.NextResponse(h.id)
		require.True(t, ok)
		require.False(t, seen[r])
		seen[r] = true
		got = append(got, r)
	}
	_, ok := h.reg.NextResponse(h.id)
	require.False(t, ok)

	// Freeing out of order does not resurrect anything.
	h.reg.FreeResponse(h.id, got[1])
	h.reg.FreeResponse(h.id, got[1])
	_, ok = h.reg.NextResponse(h.id)
	require.False(t, ok)
	assert.Equal(t, 2, h.snapshot().Queued)

	require.NoError(t, h.dispatch(EncodeKeepalive(4)))
	r, ok := h.reg.NextResponse(h.id)
	require.True(t, ok)
	assert.False(t, seen[r])
	c, err := DecodeCompletion(r.Bytes())
	require.NoError(t, err)
	assert.EqualValues(t, 4, c.RequestID)
}

func TestResponsesInOrder(t *testing.T) {
	h := newHarness(t)
	for i := uint32(1); i <= 5; i++ {
		require.NoError(t, h.dispatch(EncodeKeepalive(i)))
	}
	for i := uint32(1); i <= 5; i++ {
		assert.Equal(t, i, h.next().RequestID)
	}
}

func TestDrain(t *testing.T) {
	h := newHarness(t)
	for i := uint32(1); i <= 4; i++ {
		require.NoError(t, h.dispatch(EncodeKeepalive(i)))
	}
	_, ok := h.reg.NextResponse(h.id)
	require.True(t, ok)

	assert.Equal(t, 4, h.reg.Drain(h.id))
	assert.Equal(t, 0, h.reg.Drain(h.id))
	h.requireEmpty()
}

func TestDeregisterResets(t *testing.T) {
	h := newHarness(t)
	h.initialize()
	h.set(OID8023MulticastList, []byte{1, 0, 0x5e, 0, 0, 1})
	require.NoError(t, h.dispatch(EncodeKeepalive(9)))

	h.reg.Deregister(h.id)
	s := h.snapshot()
	assert.False(t, s.Registered)
	assert.False(t, s.MulticastSet)
	assert.Equal(t, StateUninitialized, s.State)
	assert.Equal(t, 0, s.Queued)
}

func TestConcurrentDispatchAndRetrieve(t *testing.T) {
	const n = 200
	h := newHarness(t, WithMaxResponses(0))
	h.initialize()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint32(1); i <= n; i++ {
			if err := h.dispatch(EncodeKeepalive(i)); err != nil {
				t.Errorf("dispatch %d: %v", i, err)
				return
			}
		}
	}()

	var ids []uint32
	for len(ids) < n {
		r, ok := h.reg.NextResponse(h.id)
		if !ok {
			runtime.Gosched()
			continue
		}
		c, err := DecodeCompletion(r.Bytes())
		require.NoError(t, err)
		ids = append(ids, c.RequestID)
		h.reg.FreeResponse(h.id, r)
	}
	wg.Wait()

	for i, id := range ids {
		require.EqualValues(t, i+1, id)
	}
	assert.EqualValues(t, n+1, h.notified.Load())
}
