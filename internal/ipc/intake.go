package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"humanoid-referee/internal/referee"
)

// StepFunc referees one snapshot. An error is fatal for the match.
type StepFunc func(referee.PhysicalSnapshot) (*referee.Decision, error)

// Intake accepts the simulator connection and answers every snapshot with
// the referee decision for that tick. One simulator is served at a time;
// a reconnecting simulator continues the same match.
type Intake struct {
	socketPath string
	listener   net.Listener
	log        zerolog.Logger

	connMu sync.Mutex
	conn   net.Conn

	// Stats
	snapshots   atomic.Int64
	errors      atomic.Int64
	connections atomic.Int64
}

// NewIntake creates an intake for socketPath. Listen opens the socket.
func NewIntake(socketPath string, logger zerolog.Logger) *Intake {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	return &Intake{
		socketPath: socketPath,
		log:        logger.With().Str("component", "intake").Logger(),
	}
}

// Listen opens the platform listener.
func (in *Intake) Listen() error {
	listener, err := CreatePlatformListener(in.socketPath)
	if err != nil {
		return err
	}
	in.listener = listener
	in.log.Info().Str("addr", GetPlatformAddress(in.socketPath)).Msg("snapshot intake listening")
	return nil
}

// Serve runs until ctx is cancelled or step fails. Listen must have
// succeeded.
func (in *Intake) Serve(ctx context.Context, step StepFunc) error {
	if in.listener == nil {
		return fmt.Errorf("intake not listening")
	}

	stop := context.AfterFunc(ctx, func() {
		in.listener.Close()
		in.connMu.Lock()
		if in.conn != nil {
			in.conn.Close()
		}
		in.connMu.Unlock()
	})
	defer stop()
	defer CleanupSocket(in.socketPath)

	for {
		conn, err := in.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			in.log.Warn().Err(err).Msg("accept failed")
			continue
		}

		in.connMu.Lock()
		in.conn = conn
		in.connMu.Unlock()
		in.connections.Add(1)
		in.log.Info().Msg("simulator connected")

		err = in.serveConn(conn, step)

		in.connMu.Lock()
		in.conn = nil
		in.connMu.Unlock()
		conn.Close()

		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		in.log.Info().Msg("simulator disconnected")
	}
}

// serveConn answers messages until the peer goes away. Only a referee
// failure is returned.
func (in *Intake) serveConn(conn net.Conn, step StepFunc) error {
	for {
		msgType, data, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				in.log.Warn().Err(err).Msg("intake read failed")
				in.errors.Add(1)
			}
			return nil
		}

		switch msgType {
		case MsgTypePing:
			conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := WriteMessage(conn, MsgTypePong, nil); err != nil {
				return nil
			}

		case MsgTypeSnapshot:
			var msg SnapshotMessage
			if err := Decode(data, &msg); err != nil {
				in.log.Warn().Err(err).Msg("bad snapshot")
				in.errors.Add(1)
				continue
			}
			in.snapshots.Add(1)

			d, stepErr := step(msg.ToPhysical())
			conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if stepErr != nil {
				WriteMessage(conn, MsgTypeError, ErrorMessage{Sequence: msg.Sequence, Message: stepErr.Error()})
				return stepErr
			}
			if err := WriteMessage(conn, MsgTypeDecision, NewDecisionMessage(msg.Sequence, d)); err != nil {
				in.log.Warn().Err(err).Msg("decision write failed")
				in.errors.Add(1)
				return nil
			}

		default:
			in.log.Debug().Uint8("type", msgType).Msg("ignoring message")
		}
	}
}

// GetStats returns intake counters.
func (in *Intake) GetStats() map[string]interface{} {
	in.connMu.Lock()
	connected := in.conn != nil
	in.connMu.Unlock()
	return map[string]interface{}{
		"connected":   connected,
		"connections": in.connections.Load(),
		"snapshots":   in.snapshots.Load(),
		"errors":      in.errors.Load(),
	}
}
