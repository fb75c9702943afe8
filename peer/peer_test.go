package peer

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/rtcsync/lifetime"
	"github.com/opd-ai/rtcsync/limits"
)

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	conn, err := New(Config{IncludeLoopback: true, GatherTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConfigConversion(t *testing.T) {
	assert.Empty(t, Config{}.configuration().ICEServers)
	assert.Equal(t, DefaultGatherTimeout, Config{}.gatherTimeout())

	cfg := Config{
		ICEServers: []string{"stun:stun.example.org:3478", "turn:turn.example.org:3478"},
		Username:   "user",
		Credential: "secret",
	}
	servers := cfg.configuration().ICEServers
	require.Len(t, servers, 1)
	assert.Equal(t, cfg.ICEServers, servers[0].URLs)
	assert.Equal(t, "user", servers[0].Username)

	var nilOpts *ChannelOptions
	assert.Nil(t, nilOpts.init())

	retransmits := uint16(3)
	init := (&ChannelOptions{Unordered: true, MaxRetransmits: &retransmits, Protocol: "chat"}).init()
	require.NotNil(t, init.Ordered)
	assert.False(t, *init.Ordered)
	assert.Equal(t, uint16(3), *init.MaxRetransmits)
	assert.Equal(t, "chat", *init.Protocol)
}

func TestStateChangeReplaysLatest(t *testing.T) {
	conn := newTestConnection(t)
	impl := conn.h.Access()

	impl.handleStateChange(webrtc.PeerConnectionStateConnecting)
	impl.handleStateChange(webrtc.PeerConnectionStateConnected)

	var got []webrtc.PeerConnectionState
	conn.OnStateChange(func(state webrtc.PeerConnectionState) { got = append(got, state) })
	assert.Equal(t, []webrtc.PeerConnectionState{webrtc.PeerConnectionStateConnected}, got)

	impl.handleStateChange(webrtc.PeerConnectionStateDisconnected)
	assert.Len(t, got, 2)
}

func TestGatheringCompleteFromNilCandidate(t *testing.T) {
	conn := newTestConnection(t)
	impl := conn.h.Access()

	impl.handleCandidate(nil)

	var state GatheringState
	conn.OnGatheringStateChange(func(s GatheringState) { state = s })
	assert.Equal(t, GatheringComplete, state)
	assert.Equal(t, "complete", state.String())
}

func TestCreateDataChannel(t *testing.T) {
	conn := newTestConnection(t)

	ch, err := conn.CreateDataChannel("chat", nil)
	require.NoError(t, err)
	assert.Equal(t, "chat", ch.Label())
	assert.False(t, ch.IsOpen())

	generated, err := conn.CreateDataChannel("", nil)
	require.NoError(t, err)
	assert.Contains(t, generated.Label(), "channel-")
}

func TestChannelOpenReplaysToLateHandler(t *testing.T) {
	conn := newTestConnection(t)
	ch, err := conn.CreateDataChannel("events", nil)
	require.NoError(t, err)

	ch.h.Access().handleOpen()

	opened := false
	ch.OnOpen(func() { opened = true })
	assert.True(t, opened)
}

func TestChannelMessagesAreNotReplayed(t *testing.T) {
	conn := newTestConnection(t)
	ch, err := conn.CreateDataChannel("messages", nil)
	require.NoError(t, err)
	impl := ch.h.Access()

	impl.handleMessage(webrtc.DataChannelMessage{Data: []byte("dropped")})

	var got []Message
	ch.OnMessage(func(msg Message) { got = append(got, msg) })
	assert.Empty(t, got)

	impl.handleMessage(webrtc.DataChannelMessage{IsString: true, Data: []byte("kept")})
	require.Len(t, got, 1)
	assert.Equal(t, Message{Data: []byte("kept"), IsText: true}, got[0])
}

func TestChannelSendValidatesSize(t *testing.T) {
	conn := newTestConnection(t)
	ch, err := conn.CreateDataChannel("limits", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, ch.Send(nil), limits.ErrMessageEmpty)
	big := bytes.Repeat([]byte{1}, limits.MaxChannelMessage+1)
	assert.ErrorIs(t, ch.Send(big), limits.ErrMessageTooLarge)
}

func TestChannelCloseFiresClosedOnce(t *testing.T) {
	conn := newTestConnection(t)
	ch, err := conn.CreateDataChannel("closing", nil)
	require.NoError(t, err)

	closed := 0
	ch.OnClosed(func() { closed++ })
	impl := ch.h.Access()

	require.NoError(t, ch.Close())
	assert.Equal(t, 1, closed)

	// A late remote close is ignored.
	impl.closeOnce.Run()
	assert.Equal(t, 1, closed)

	assert.False(t, ch.Token().Alive())
	assert.ErrorIs(t, ch.Send([]byte("x")), ErrClosed)
	assert.Equal(t, "", ch.Label())
	assert.NoError(t, ch.Close())
}

func TestConnectionCloseClosesChannels(t *testing.T) {
	conn, err := New(Config{})
	require.NoError(t, err)

	ch, err := conn.CreateDataChannel("owned", nil)
	require.NoError(t, err)
	closed := make(chan struct{})
	ch.OnClosed(func() { close(closed) })

	require.NoError(t, conn.Close())

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("channel was not closed with the connection")
	}
	assert.False(t, conn.Token().Alive())
	assert.Equal(t, webrtc.PeerConnectionStateClosed, conn.ConnectionState())

	_, err = conn.CreateDataChannel("late", nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, conn.Close())
}

func TestClosedChannelLeavesConnectionCleanup(t *testing.T) {
	conn := newTestConnection(t)
	cleanup := &conn.h.Access().cleanup
	base := cleanup.Len()

	ch, err := conn.CreateDataChannel("short-lived", nil)
	require.NoError(t, err)
	assert.Equal(t, base+1, cleanup.Len())

	require.NoError(t, ch.Close())
	assert.Equal(t, base, cleanup.Len())
}

func TestChannelCloseWaitsForRunningHandler(t *testing.T) {
	conn := newTestConnection(t)
	ch, err := conn.CreateDataChannel("in-flight", nil)
	require.NoError(t, err)
	impl := ch.h.Access()

	entered := make(chan struct{})
	proceed := make(chan struct{})
	var slotKept atomic.Bool
	ch.OnMessage(func(Message) {
		close(entered)
		<-proceed
		slotKept.Store(impl.onMessage.Installed())
	})

	// Deliver the way pion does, through the token-bound handler.
	deliver := lifetime.Bind(ch, impl.handleMessage)
	delivered := make(chan struct{})
	go func() {
		deliver(webrtc.DataChannelMessage{Data: []byte("x")})
		close(delivered)
	}()
	<-entered

	require.NoError(t, ch.Close())
	assert.False(t, ch.Token().Alive())
	assert.True(t, ch.h.Valid(), "state outlives Close while a handler runs")
	assert.ErrorIs(t, ch.Send([]byte("x")), ErrClosed)

	close(proceed)
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("handler did not return")
	}
	assert.True(t, slotKept.Load())

	select {
	case <-ch.Token().Done():
	case <-time.After(time.Second):
		t.Fatal("channel state was not released after the handler returned")
	}
	assert.False(t, ch.h.Valid())
	assert.NoError(t, ch.Close())
}

func TestConnectionCloseInsideHandler(t *testing.T) {
	conn, err := New(Config{})
	require.NoError(t, err)
	impl := conn.h.Access()

	closeErr := make(chan error, 1)
	conn.OnStateChange(func(webrtc.PeerConnectionState) {
		closeErr <- conn.Close()
	})

	lifetime.Bind(conn, impl.handleStateChange)(webrtc.PeerConnectionStateFailed)
	require.NoError(t, <-closeErr)

	select {
	case <-conn.Token().Done():
	case <-time.After(time.Second):
		t.Fatal("connection was not released after the handler returned")
	}
	assert.False(t, conn.h.Valid())
	assert.Equal(t, webrtc.PeerConnectionStateClosed, conn.ConnectionState())
}

func TestHandlersSetAfterCloseAreIgnored(t *testing.T) {
	conn, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.NotPanics(t, func() {
		conn.OnStateChange(func(webrtc.PeerConnectionState) {})
		conn.OnDataChannel(func(*Channel) {})
		conn.OnLocalCandidate(func(webrtc.ICECandidateInit) {})
	})
}

// TestLoopbackEcho connects two peers over the loopback interface.
func TestLoopbackEcho(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping loopback connection in short mode")
	}

	offerer := newTestConnection(t)
	answerer := newTestConnection(t)

	answerer.OnDataChannel(func(ch *Channel) {
		ch.OnMessage(func(msg Message) {
			ch.Send(msg.Data)
		})
	})

	ch, err := offerer.CreateDataChannel("echo", nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var echoed []string
	ch.OnMessage(func(msg Message) {
		mu.Lock()
		echoed = append(echoed, string(msg.Data))
		mu.Unlock()
	})
	opened := make(chan struct{})
	ch.OnOpen(func() { close(opened) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Negotiate(ctx, offerer, answerer); err != nil {
		t.Skipf("negotiation unavailable in this environment: %v", err)
	}

	select {
	case <-opened:
	case <-time.After(10 * time.Second):
		t.Skip("loopback connection did not open in time")
	}

	require.NoError(t, ch.Send([]byte("ping")))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(echoed) == 1 && echoed[0] == "ping"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestChannelOpenFiresOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping loopback connection in short mode")
	}

	offerer := newTestConnection(t)
	answerer := newTestConnection(t)

	var inboundOpens atomic.Int32
	inboundOpened := make(chan struct{}, 4)
	answerer.OnDataChannel(func(ch *Channel) {
		ch.OnOpen(func() {
			inboundOpens.Add(1)
			inboundOpened <- struct{}{}
		})
	})

	first, err := offerer.CreateDataChannel("first", nil)
	require.NoError(t, err)
	firstOpened := make(chan struct{})
	first.OnOpen(func() { close(firstOpened) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Negotiate(ctx, offerer, answerer); err != nil {
		t.Skipf("negotiation unavailable in this environment: %v", err)
	}
	select {
	case <-firstOpened:
	case <-time.After(10 * time.Second):
		t.Skip("loopback connection did not open in time")
	}
	<-inboundOpened

	// A channel created on a connected pair opens without renegotiation.
	var outboundOpens atomic.Int32
	second, err := offerer.CreateDataChannel("second", nil)
	require.NoError(t, err)
	second.OnOpen(func() { outboundOpens.Add(1) })

	require.Eventually(t, func() bool {
		return outboundOpens.Load() >= 1 && inboundOpens.Load() >= 2
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(1), outboundOpens.Load())
	assert.Equal(t, int32(2), inboundOpens.Load(), "one open per inbound channel")
}
