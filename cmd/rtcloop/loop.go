package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rtcsync"
	"github.com/opd-ai/rtcsync/lifetime"
	"github.com/opd-ai/rtcsync/noise"
	"github.com/opd-ai/rtcsync/peer"
	"github.com/opd-ai/rtcsync/scope"
)

// endpoint sends and receives application messages over a channel,
// directly or through a Noise session.
type endpoint interface {
	Send(data []byte) error
	OnMessage(fn func(data []byte))
}

// plainEndpoint passes data channel messages through unchanged.
type plainEndpoint struct {
	ch *peer.Channel
}

func (p plainEndpoint) Send(data []byte) error {
	return p.ch.Send(data)
}

func (p plainEndpoint) OnMessage(fn func(data []byte)) {
	p.ch.OnMessage(func(msg peer.Message) { fn(msg.Data) })
}

// secure runs a Noise session over ch. The channel feeds the session for
// as long as the session lives.
func secure(ch *peer.Channel, cfg noise.Config) (*noise.Session, error) {
	session, err := noise.NewSession(noise.TransportFunc(ch.Send), cfg)
	if err != nil {
		return nil, err
	}
	ch.OnMessage(lifetime.Bind(session, func(msg peer.Message) {
		session.HandleIncoming(msg.Data)
	}))
	return session, nil
}

// loopKeys holds both static keys so that an IK initiator can know the
// responder's key in advance.
type loopKeys struct {
	initiator *noise.KeyPair
	responder *noise.KeyPair
}

func newLoopKeys() (*loopKeys, error) {
	initiator, err := noise.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	responder, err := noise.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &loopKeys{initiator: initiator, responder: responder}, nil
}

// runLoop connects two peers, echoes every message from the offerer back
// through the answerer and writes each echo to out.
func runLoop(ctx context.Context, options *rtcsync.Options, messages []string, out io.Writer) (err error) {
	var cleanup scope.Group
	defer func() {
		if closeErr := cleanup.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	var keys *loopKeys
	if options.Secure {
		if keys, err = newLoopKeys(); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
	}

	offerer, err := peer.New(options.PeerConfig())
	if err != nil {
		return err
	}
	cleanup.Add(offerer.Close)
	answerer, err := peer.New(options.PeerConfig())
	if err != nil {
		return err
	}
	cleanup.Add(answerer.Close)

	answerer.OnDataChannel(func(ch *peer.Channel) {
		if err := serveEcho(ch, options, keys, &cleanup); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "serveEcho",
				"label":    ch.Label(),
				"error":    err.Error(),
			}).Error("Failed to serve echo channel")
			ch.Close()
		}
	})

	ch, err := offerer.CreateDataChannel(options.ChannelLabel, options.ChannelOptions())
	if err != nil {
		return err
	}
	opened := make(chan struct{})
	ch.OnOpen(func() { close(opened) })

	if err := peer.Negotiate(ctx, offerer, answerer); err != nil {
		return fmt.Errorf("negotiating: %w", err)
	}
	if err := wait(ctx, opened, "data channel open"); err != nil {
		return err
	}

	client, err := dial(ctx, ch, options, keys, &cleanup)
	if err != nil {
		return err
	}

	echoes := make(chan string, len(messages))
	client.OnMessage(func(data []byte) { echoes <- string(data) })

	for _, msg := range messages {
		if err := client.Send([]byte(msg)); err != nil {
			return fmt.Errorf("sending %q: %w", msg, err)
		}
		select {
		case echo := <-echoes:
			fmt.Fprintf(out, "echo: %s\n", echo)
		case <-ctx.Done():
			return fmt.Errorf("waiting for echo of %q: %w", msg, ctx.Err())
		}
	}
	return nil
}

// dial returns the offerer's endpoint, completing the handshake first
// when the loop is secure.
func dial(ctx context.Context, ch *peer.Channel, options *rtcsync.Options, keys *loopKeys, cleanup *scope.Group) (endpoint, error) {
	if !options.Secure {
		return plainEndpoint{ch: ch}, nil
	}

	cfg := noise.Config{
		Role:      noise.Initiator,
		Pattern:   options.Pattern(),
		StaticKey: keys.initiator,
	}
	if cfg.Pattern == noise.PatternIK {
		cfg.PeerKey = keys.responder.Public[:]
	}
	session, err := secure(ch, cfg)
	if err != nil {
		return nil, err
	}
	cleanup.Add(session.Close)

	established := make(chan struct{})
	failed := make(chan error, 1)
	session.OnEstablished(func([]byte) { close(established) })
	session.OnError(func(err error) {
		select {
		case failed <- err:
		default:
		}
	})

	if err := session.Start(); err != nil {
		return nil, err
	}
	select {
	case <-established:
	case err := <-failed:
		return nil, fmt.Errorf("noise handshake: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for noise handshake: %w", ctx.Err())
	}
	return session, nil
}

// serveEcho answers on an inbound channel.
func serveEcho(ch *peer.Channel, options *rtcsync.Options, keys *loopKeys, cleanup *scope.Group) error {
	cleanup.Add(ch.Close)
	if !options.Secure {
		server := plainEndpoint{ch: ch}
		server.OnMessage(func(data []byte) { server.Send(data) })
		return nil
	}

	session, err := secure(ch, noise.Config{
		Role:      noise.Responder,
		Pattern:   options.Pattern(),
		StaticKey: keys.responder,
	})
	if err != nil {
		return err
	}
	cleanup.Add(session.Close)
	session.OnMessage(func(data []byte) { session.Send(data) })
	return nil
}

func wait(ctx context.Context, done <-chan struct{}, what string) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", what, ctx.Err())
	}
}
