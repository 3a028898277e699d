package cdc

import (
	"bytes"
	"testing"
)

func TestNotification_MarshalTo(t *testing.T) {
	n := ResponseAvailable(2)

	var buf [NotificationSize]byte
	if got := n.MarshalTo(buf[:]); got != NotificationSize {
		t.Fatalf("expected %d bytes, got %d", NotificationSize, got)
	}
	want := []byte{0xA1, 0x01, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00}
	if !bytes.Equal(buf[:], want) {
		t.Errorf("notification = % X, want % X", buf[:], want)
	}

	if got := n.MarshalTo(buf[:4]); got != 0 {
		t.Errorf("short buffer wrote %d bytes", got)
	}
}

func TestNotification_RoundTrip(t *testing.T) {
	original := Notification{
		Code:      NotificationNetworkConnection,
		Value:     1,
		Interface: 0x0102,
		Length:    0,
	}

	var buf [NotificationSize]byte
	original.MarshalTo(buf[:])

	var parsed Notification
	if !ParseNotification(buf[:], &parsed) {
		t.Fatal("parse failed")
	}
	if parsed != original {
		t.Errorf("parsed = %+v, want %+v", parsed, original)
	}
}

func TestParseNotification_Invalid(t *testing.T) {
	var n Notification
	if ParseNotification(make([]byte, 4), &n) {
		t.Error("expected failure for short notification")
	}
	if ParseNotification(make([]byte, NotificationSize), &n) {
		t.Error("expected failure for wrong request type")
	}
}

func TestPacketFilter_String(t *testing.T) {
	tests := []struct {
		f    PacketFilter
		want string
	}{
		{0, "none"},
		{PacketTypeDirected, "directed"},
		{PacketTypeDirected | PacketTypeBroadcast, "directed|broadcast"},
		{PacketTypePromiscuous | PacketTypeAllMulticast, "all-multicast|promiscuous"},
		{0x80, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("PacketFilter(0x%02X).String() = %q, want %q", uint16(tt.f), got, tt.want)
		}
	}
}

func TestPacketFilter_Has(t *testing.T) {
	f := PacketTypeDirected | PacketTypeMulticast
	if !f.Has(PacketTypeDirected) {
		t.Error("expected directed")
	}
	if f.Has(PacketTypeDirected | PacketTypeBroadcast) {
		t.Error("unexpected broadcast")
	}
	if f.Has(0) {
		t.Error("empty filter class matched")
	}
}

func TestFilterStore(t *testing.T) {
	var s FilterStore
	if s.Load() != 0 {
		t.Fatalf("zero store = %v", s.Load())
	}
	s.Store(PacketTypeBroadcast)
	if s.Load() != PacketTypeBroadcast {
		t.Errorf("Load() = %v, want broadcast", s.Load())
	}
}

func TestFunctionalDescriptors(t *testing.T) {
	var buf [5]byte

	header := HeaderDescriptor{CDCVersion: 0x0110}
	if n := header.MarshalTo(buf[:]); n != HeaderDescriptorSize {
		t.Fatalf("header wrote %d bytes", n)
	}
	if !bytes.Equal(buf[:], []byte{5, DescriptorTypeCSInterface, SubtypeHeader, 0x10, 0x01}) {
		t.Errorf("header = % X", buf[:])
	}

	union := UnionDescriptor{MasterInterface: 0, SlaveInterface0: 1}
	union.MarshalTo(buf[:])
	if !bytes.Equal(buf[:], []byte{5, DescriptorTypeCSInterface, SubtypeUnion, 0, 1}) {
		t.Errorf("union = % X", buf[:])
	}

	acm := ACMDescriptor{}
	if n := acm.MarshalTo(buf[:]); n != ACMDescriptorSize {
		t.Errorf("acm wrote %d bytes", n)
	}
	if n := acm.MarshalTo(buf[:2]); n != 0 {
		t.Errorf("acm wrote %d bytes into short buffer", n)
	}

	cm := CallManagementDescriptor{DataInterface: 3}
	cm.MarshalTo(buf[:])
	if buf[2] != SubtypeCallManagement || buf[4] != 3 {
		t.Errorf("call management = % X", buf[:])
	}
}

func TestSetup_RoundTrip(t *testing.T) {
	original := EncapsulatedResponse(1, 1025)

	var buf [SetupSize]byte
	if n := original.MarshalTo(buf[:]); n != SetupSize {
		t.Fatalf("expected %d bytes, got %d", SetupSize, n)
	}
	want := []byte{0xA1, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x04}
	if !bytes.Equal(buf[:], want) {
		t.Errorf("setup = % X, want % X", buf[:], want)
	}

	var parsed Setup
	if err := ParseSetup(buf[:], &parsed); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if parsed != original {
		t.Errorf("parsed = %+v, want %+v", parsed, original)
	}
	if !parsed.IsDeviceToHost() || !parsed.IsClassInterface() {
		t.Errorf("unexpected request type 0x%02X", parsed.RequestType)
	}
}

func TestSetup_Command(t *testing.T) {
	s := EncapsulatedCommand(0, 24)
	if s.RequestType != 0x21 {
		t.Errorf("bmRequestType = 0x%02X, want 0x21", s.RequestType)
	}
	if s.IsDeviceToHost() {
		t.Error("command should flow host to device")
	}
}

func TestParseSetup_TooShort(t *testing.T) {
	var s Setup
	if err := ParseSetup(make([]byte, 7), &s); err == nil {
		t.Error("expected error for short setup packet")
	}
	if n := s.MarshalTo(make([]byte, 4)); n != 0 {
		t.Errorf("short buffer wrote %d bytes", n)
	}
}
