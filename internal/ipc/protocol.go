// Package ipc carries physical snapshots from the simulator to the referee
// and decisions back, over a Unix domain socket (TCP localhost on Windows).
package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"humanoid-referee/internal/referee"
	"humanoid-referee/internal/referee/field"
)

const (
	// DefaultSocketPath is the Unix socket path for the snapshot intake
	DefaultSocketPath = "/tmp/humanoid-referee.sock"

	// DefaultTCPPort is used where Unix sockets are unavailable
	DefaultTCPPort = "127.0.0.1:7740"

	// Message types
	MsgTypeSnapshot byte = 0x01
	MsgTypePing     byte = 0x02
	MsgTypePong     byte = 0x03
	MsgTypeDecision byte = 0x04
	MsgTypeError    byte = 0x05

	// Protocol version for compatibility checking
	ProtocolVersion uint16 = 1

	// Connection settings
	MaxMessageSize = 1024 * 1024 // 1MB max message
	WriteTimeout   = time.Second
	ReconnectDelay = 500 * time.Millisecond
	MaxReconnects  = 20
)

// SnapshotMessage is the wire form of referee.PhysicalSnapshot.
type SnapshotMessage struct {
	Sequence  uint64
	Timestamp int64 // Unix nano, sender clock

	BallPosition [3]float64
	BallVelocity [3]float64
	Robots       []RobotData
}

// RobotData is the wire form of one robot.
type RobotData struct {
	Team     uint8
	Number   int
	Position [3]float64
	Velocity [3]float64
	Contacts []ContactData
	Dormant  bool
}

// ContactData is the wire form of one contact point.
type ContactData struct {
	Position [3]float64
	Ground   bool
	Part     uint8
}

// DecisionMessage answers one snapshot with what the simulator must act on.
type DecisionMessage struct {
	Sequence     uint64 // snapshot sequence this answers
	Tick         int64
	Phase        string
	Interruption string
	BallInPlay   bool
	Score        [2]int
	Over         bool

	BallPlacement    bool
	BallPosition     [3]float64
	PlayerPlacements []PlacementData
	Messages         []string // rule event messages of this tick
}

// PlacementData is the wire form of a robot placement.
type PlacementData struct {
	Team        uint8
	Number      int
	Translation [3]float64
	Rotation    [4]float64
	Reason      string
}

// ErrorMessage reports a fatal referee failure to the simulator.
type ErrorMessage struct {
	Sequence uint64
	Message  string
}

// Header is the message header for framing
type Header struct {
	Version  uint16
	Type     byte
	Reserved byte
	Length   uint32
}

const HeaderSize = 8 // 2 + 1 + 1 + 4

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// WriteMessage writes a framed, gob encoded message.
func WriteMessage(w io.Writer, msgType byte, data interface{}) error {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	buf.Write(make([]byte, HeaderSize))
	if data != nil {
		if err := gob.NewEncoder(buf).Encode(data); err != nil {
			return fmt.Errorf("gob encode: %w", err)
		}
	}

	frame := buf.Bytes()
	length := len(frame) - HeaderSize
	if length > MaxMessageSize {
		return fmt.Errorf("message too large: %d > %d", length, MaxMessageSize)
	}

	binary.LittleEndian.PutUint16(frame[0:2], ProtocolVersion)
	frame[2] = msgType
	frame[3] = 0
	binary.LittleEndian.PutUint32(frame[4:8], uint32(length))

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message and returns its type and body.
func ReadMessage(r io.Reader) (byte, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return 0, nil, err
	}

	header := Header{
		Version: binary.LittleEndian.Uint16(headerBuf[0:2]),
		Type:    headerBuf[2],
		Length:  binary.LittleEndian.Uint32(headerBuf[4:8]),
	}

	if header.Version != ProtocolVersion {
		return 0, nil, fmt.Errorf("version mismatch: got %d, want %d", header.Version, ProtocolVersion)
	}
	if header.Length > MaxMessageSize {
		return 0, nil, fmt.Errorf("message too large: %d > %d", header.Length, MaxMessageSize)
	}

	var body []byte
	if header.Length > 0 {
		body = make([]byte, header.Length)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, fmt.Errorf("read body: %w", err)
		}
	}
	return header.Type, body, nil
}

// Decode gob decodes a message body into out.
func Decode(data []byte, out interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return fmt.Errorf("gob decode %T: %w", out, err)
	}
	return nil
}

// CleanupSocket removes the socket file if it exists
func CleanupSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	}
	return nil
}

// =============================================================================
// Conversions
// =============================================================================

func vec(v field.Vec3) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func unvec(a [3]float64) field.Vec3 { return field.Vec3{X: a[0], Y: a[1], Z: a[2]} }

// NewSnapshotMessage converts a snapshot for sending.
func NewSnapshotMessage(seq uint64, now time.Time, s *referee.PhysicalSnapshot) *SnapshotMessage {
	msg := &SnapshotMessage{
		Sequence:     seq,
		Timestamp:    now.UnixNano(),
		BallPosition: vec(s.Ball.Position),
		BallVelocity: vec(s.Ball.Velocity),
		Robots:       make([]RobotData, len(s.Robots)),
	}
	for i, r := range s.Robots {
		rd := RobotData{
			Team:     uint8(r.Team),
			Number:   r.Number,
			Position: vec(r.Position),
			Velocity: vec(r.Velocity),
			Dormant:  r.Dormant,
			Contacts: make([]ContactData, len(r.Contacts)),
		}
		for j, c := range r.Contacts {
			rd.Contacts[j] = ContactData{Position: vec(c.Position), Ground: c.Ground, Part: uint8(c.Part)}
		}
		msg.Robots[i] = rd
	}
	return msg
}

// ToPhysical converts a received message back into a snapshot.
func (msg *SnapshotMessage) ToPhysical() referee.PhysicalSnapshot {
	snap := referee.PhysicalSnapshot{
		Ball: referee.BallState{
			Position: unvec(msg.BallPosition),
			Velocity: unvec(msg.BallVelocity),
		},
		Robots: make([]referee.RobotState, len(msg.Robots)),
	}
	for i, r := range msg.Robots {
		rs := referee.RobotState{
			Team:     referee.Color(r.Team),
			Number:   r.Number,
			Position: unvec(r.Position),
			Velocity: unvec(r.Velocity),
			Dormant:  r.Dormant,
		}
		if len(r.Contacts) > 0 {
			rs.Contacts = make([]referee.ContactPoint, len(r.Contacts))
			for j, c := range r.Contacts {
				rs.Contacts[j] = referee.ContactPoint{Position: unvec(c.Position), Ground: c.Ground, Part: referee.BodyPart(c.Part)}
			}
		}
		snap.Robots[i] = rs
	}
	return snap
}

// NewDecisionMessage converts a decision for sending.
func NewDecisionMessage(seq uint64, d *referee.Decision) *DecisionMessage {
	msg := &DecisionMessage{
		Sequence:     seq,
		Tick:         int64(d.Tick),
		Phase:        d.Phase.String(),
		Interruption: d.Interruption.Kind.String(),
		BallInPlay:   d.BallInPlay,
		Score:        d.Score,
		Over:         d.Over,
	}
	if d.BallPlacement != nil {
		msg.BallPlacement = true
		msg.BallPosition = vec(*d.BallPlacement)
	}
	for _, p := range d.PlayerPlacements {
		msg.PlayerPlacements = append(msg.PlayerPlacements, PlacementData{
			Team:        uint8(p.Team),
			Number:      p.Number,
			Translation: vec(p.Pose.Translation),
			Rotation:    p.Pose.Rotation,
			Reason:      p.Reason,
		})
	}
	for _, ev := range d.Events {
		msg.Messages = append(msg.Messages, ev.Message)
	}
	return msg
}
