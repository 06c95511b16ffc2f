package feed

import (
	"context"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// Stream is one live subscription to an event source.
type Stream interface {
	// Recv blocks until the next event. Any error ends the stream.
	Recv(ctx context.Context) (domain.RawEvent, error)
	// Ping probes the connection and returns the round trip.
	Ping(ctx context.Context) (time.Duration, error)
	Close() error
}

// Dialer opens streams. Dial must return only after the subscription is live.
type Dialer interface {
	Dial(ctx context.Context, endpoint domain.EndpointDescriptor) (Stream, error)
}

// WSDialer subscribes to program logs over Solana WebSocket endpoints.
type WSDialer struct {
	Programs   []string
	Commitment solana.Commitment
	Config     *solana.WSConfig
}

// Dial connects and subscribes.
func (d *WSDialer) Dial(ctx context.Context, endpoint domain.EndpointDescriptor) (Stream, error) {
	conn, err := solana.DialWS(ctx, endpoint.URL, endpoint.Token, d.Config)
	if err != nil {
		return nil, err
	}

	filter := solana.LogsFilter{Mentions: d.Programs, Commitment: d.Commitment}
	if _, err := conn.SubscribeLogs(ctx, filter); err != nil {
		conn.Close()
		return nil, err
	}

	return &wsStream{conn: conn, endpoint: endpoint.Name}, nil
}

type wsStream struct {
	conn     *solana.WSConn
	endpoint string
}

func (s *wsStream) Recv(ctx context.Context) (domain.RawEvent, error) {
	n, err := s.conn.Next(ctx)
	if err != nil {
		return domain.RawEvent{}, err
	}
	return domain.RawEvent{
		Key:        n.Signature,
		Slot:       n.Slot,
		Logs:       n.Logs,
		Payload:    n.Raw,
		Failed:     n.Err != nil,
		Endpoint:   s.endpoint,
		ReceivedAt: time.Now(),
	}, nil
}

func (s *wsStream) Ping(ctx context.Context) (time.Duration, error) {
	return s.conn.Ping(ctx)
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
