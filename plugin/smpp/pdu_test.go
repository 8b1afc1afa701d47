package smpp

import "testing"

func TestEncodeBindTransmitter_HeaderMatchesLength(t *testing.T) {
	pdu := encodeBindTransmitter(1, "system", "pass", "")
	h, err := decodeHeader(pdu)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if h.CommandID != cmdBindTransmitter {
		t.Errorf("expected cmdBindTransmitter, got 0x%08x", h.CommandID)
	}
	if int(h.CommandLength) != len(pdu) {
		t.Errorf("expected command_length %d to match pdu size %d", h.CommandLength, len(pdu))
	}
	if h.SequenceNumber != 1 {
		t.Errorf("expected sequence 1, got %d", h.SequenceNumber)
	}
}

func TestEncodeSubmitSM_TruncatesLongMessages(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	pdu := encodeSubmitSM(2, "source", "dest", string(long))

	h, err := decodeHeader(pdu)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if h.CommandID != cmdSubmitSM {
		t.Errorf("expected cmdSubmitSM, got 0x%08x", h.CommandID)
	}

	smLength := pdu[len(pdu)-255]
	if smLength != 254 {
		t.Errorf("expected sm_length capped at 254, got %d", smLength)
	}
}

func TestEncodeUnbind_FixedSize(t *testing.T) {
	pdu := encodeUnbind(3)
	if len(pdu) != 16 {
		t.Errorf("expected 16-byte unbind pdu, got %d", len(pdu))
	}
	h, err := decodeHeader(pdu)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if h.CommandID != cmdUnbind {
		t.Errorf("expected cmdUnbind, got 0x%08x", h.CommandID)
	}
}

func TestDecodeHeader_ShortBuffer(t *testing.T) {
	_, err := decodeHeader([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error decoding short buffer")
	}
}
