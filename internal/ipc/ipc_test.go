package ipc

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"humanoid-referee/internal/referee"
	"humanoid-referee/internal/referee/field"
)

func sampleSnapshot() *referee.PhysicalSnapshot {
	return &referee.PhysicalSnapshot{
		Ball: referee.BallState{
			Position: field.Vec3{X: 1, Y: -0.5, Z: 0.07},
			Velocity: field.Vec3{X: 0.2},
		},
		Robots: []referee.RobotState{
			{
				Team:     referee.Blue,
				Number:   3,
				Position: field.Vec3{X: 2, Y: 1, Z: 0.4},
				Contacts: []referee.ContactPoint{
					{Position: field.Vec3{X: 2, Y: 1}, Ground: true, Part: referee.PartFoot},
				},
			},
			{Team: referee.Red, Number: 1, Dormant: true},
		},
	}
}

// TestFraming tests that a framed message reads back with its type and body
func TestFraming(t *testing.T) {
	var buf bytes.Buffer
	msg := NewSnapshotMessage(7, time.Unix(0, 42), sampleSnapshot())
	if err := WriteMessage(&buf, MsgTypeSnapshot, msg); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if err := WriteMessage(&buf, MsgTypePing, nil); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	msgType, data, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msgType != MsgTypeSnapshot {
		t.Errorf("Expected snapshot type, got %#x", msgType)
	}
	var got SnapshotMessage
	if err := Decode(data, &got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Sequence != 7 || got.Timestamp != 42 || len(got.Robots) != 2 {
		t.Errorf("Unexpected message %+v", got)
	}

	msgType, data, err = ReadMessage(&buf)
	if err != nil || msgType != MsgTypePing || len(data) != 0 {
		t.Errorf("Expected empty ping, got %#x %d bytes (%v)", msgType, len(data), err)
	}
}

// TestFramingRejectsBadHeaders tests version and size checks
func TestFramingRejectsBadHeaders(t *testing.T) {
	header := func(version uint16, length uint32) []byte {
		b := make([]byte, HeaderSize)
		binary.LittleEndian.PutUint16(b[0:2], version)
		b[2] = MsgTypeSnapshot
		binary.LittleEndian.PutUint32(b[4:8], length)
		return b
	}

	tests := []struct {
		name  string
		frame []byte
	}{
		{"version mismatch", header(ProtocolVersion+1, 0)},
		{"too large", header(ProtocolVersion, MaxMessageSize+1)},
		{"truncated body", append(header(ProtocolVersion, 10), 1, 2, 3)},
		{"truncated header", []byte{1, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ReadMessage(bytes.NewReader(tt.frame)); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

// TestSnapshotConversion tests that the wire form keeps what the referee
// reads
func TestSnapshotConversion(t *testing.T) {
	want := sampleSnapshot()
	got := NewSnapshotMessage(1, time.Now(), want).ToPhysical()

	if got.Ball != want.Ball {
		t.Errorf("Expected ball %+v, got %+v", want.Ball, got.Ball)
	}
	if len(got.Robots) != 2 {
		t.Fatalf("Expected 2 robots, got %d", len(got.Robots))
	}
	blue := got.Robots[0]
	if blue.Team != referee.Blue || blue.Number != 3 || blue.Position != want.Robots[0].Position {
		t.Errorf("Unexpected robot %+v", blue)
	}
	if len(blue.Contacts) != 1 || blue.Contacts[0] != want.Robots[0].Contacts[0] {
		t.Errorf("Unexpected contacts %+v", blue.Contacts)
	}
	if !got.Robots[1].Dormant || got.Robots[1].Contacts != nil {
		t.Errorf("Expected dormant robot without contacts, got %+v", got.Robots[1])
	}
}

// TestIntakeServesClient tests the request/response loop over a socket,
// including a fatal referee failure
func TestIntakeServesClient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "referee.sock")
	intake := NewIntake(path, zerolog.Nop())
	if err := intake.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	var tick referee.Tick
	step := func(snap referee.PhysicalSnapshot) (*referee.Decision, error) {
		tick++
		if tick == 3 {
			return nil, fmt.Errorf("corrupt state")
		}
		pos := snap.Ball.Position
		return &referee.Decision{
			Tick:          tick,
			Phase:         referee.PhaseReady,
			BallPlacement: &pos,
			PlayerPlacements: []referee.Placement{
				{Team: referee.Red, Number: 2, Pose: field.Pose{Translation: field.Vec3{X: -1}}, Reason: "kickoff"},
			},
			Events: []referee.Event{{Message: "READY"}},
		}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- intake.Serve(ctx, step) }()

	client, err := Dial(ctx, path)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	if err := client.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	for i := 1; i <= 2; i++ {
		d, err := client.Step(sampleSnapshot())
		if err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		if d.Tick != int64(i) || d.Sequence != uint64(i) || d.Phase != "READY" {
			t.Errorf("Step %d: unexpected decision %+v", i, d)
		}
		if !d.BallPlacement || d.BallPosition != [3]float64{1, -0.5, 0.07} {
			t.Errorf("Step %d: expected ball placement, got %v %v", i, d.BallPlacement, d.BallPosition)
		}
		if len(d.PlayerPlacements) != 1 || d.PlayerPlacements[0].Reason != "kickoff" {
			t.Errorf("Step %d: unexpected placements %+v", i, d.PlayerPlacements)
		}
		if len(d.Messages) != 1 || d.Messages[0] != "READY" {
			t.Errorf("Step %d: unexpected messages %v", i, d.Messages)
		}
	}

	_, err = client.Step(sampleSnapshot())
	var refErr *RefereeError
	if !errors.As(err, &refErr) || refErr.Sequence != 3 {
		t.Fatalf("Expected RefereeError for snapshot 3, got %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil || err.Error() != "corrupt state" {
			t.Errorf("Expected Serve to return the step error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}

	stats := intake.GetStats()
	if stats["snapshots"] != int64(3) {
		t.Errorf("Expected 3 snapshots, got %v", stats["snapshots"])
	}
}

// TestIntakeStopsOnCancel tests that cancelling the context ends Serve
func TestIntakeStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "referee.sock")
	intake := NewIntake(path, zerolog.Nop())
	if err := intake.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- intake.Serve(ctx, func(referee.PhysicalSnapshot) (*referee.Decision, error) {
			return &referee.Decision{}, nil
		})
	}()

	client, err := Dial(context.Background(), path)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()
	if _, err := client.Step(sampleSnapshot()); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
