package ipc

import (
	"context"
	"fmt"
	"net"
	"time"

	"humanoid-referee/internal/referee"
)

// RefereeError is a fatal failure reported by the referee.
type RefereeError struct {
	Sequence uint64
	Message  string
}

func (e *RefereeError) Error() string {
	return fmt.Sprintf("referee failed at snapshot %d: %s", e.Sequence, e.Message)
}

// Client is the simulator side of the intake. It is not safe for
// concurrent use; snapshots are sent one tick at a time.
type Client struct {
	conn     net.Conn
	sequence uint64
	timeout  time.Duration
}

// Dial connects to the referee, retrying while it starts up.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	var lastErr error
	for i := 0; i < MaxReconnects; i++ {
		conn, err := ConnectPlatform(socketPath)
		if err == nil {
			return &Client{conn: conn, timeout: 5 * time.Second}, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ReconnectDelay):
		}
	}
	return nil, fmt.Errorf("connect failed after %d attempts: %w", MaxReconnects, lastErr)
}

// Step sends one snapshot and waits for the decision answering it.
func (c *Client) Step(snap *referee.PhysicalSnapshot) (*DecisionMessage, error) {
	c.sequence++
	c.conn.SetDeadline(time.Now().Add(c.timeout))
	if err := WriteMessage(c.conn, MsgTypeSnapshot, NewSnapshotMessage(c.sequence, time.Now(), snap)); err != nil {
		return nil, err
	}

	for {
		msgType, data, err := ReadMessage(c.conn)
		if err != nil {
			return nil, fmt.Errorf("read decision: %w", err)
		}
		switch msgType {
		case MsgTypeDecision:
			var d DecisionMessage
			if err := Decode(data, &d); err != nil {
				return nil, err
			}
			if d.Sequence != c.sequence {
				return nil, fmt.Errorf("decision for snapshot %d, expected %d", d.Sequence, c.sequence)
			}
			return &d, nil
		case MsgTypeError:
			var e ErrorMessage
			if err := Decode(data, &e); err != nil {
				return nil, err
			}
			return nil, &RefereeError{Sequence: e.Sequence, Message: e.Message}
		}
	}
}

// Ping checks that the referee answers.
func (c *Client) Ping() error {
	c.conn.SetDeadline(time.Now().Add(c.timeout))
	if err := WriteMessage(c.conn, MsgTypePing, nil); err != nil {
		return err
	}
	msgType, _, err := ReadMessage(c.conn)
	if err != nil {
		return err
	}
	if msgType != MsgTypePong {
		return fmt.Errorf("unexpected reply type %#x", msgType)
	}
	return nil
}

// Sent returns the number of snapshots sent.
func (c *Client) Sent() uint64 {
	return c.sequence
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
