package smpp

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Minimal SMPP 3.4 PDU encoding, enough to bind as a transmitter and submit
// short messages with no optional TLV parameters.

const (
	cmdBindTransmitter     uint32 = 0x00000002
	cmdBindTransmitterResp uint32 = 0x80000002
	cmdSubmitSM            uint32 = 0x00000004
	cmdSubmitSMResp        uint32 = 0x80000004
	cmdUnbind              uint32 = 0x00000006

	statusOK uint32 = 0x00000000
)

// header is the fixed 16-byte SMPP PDU header.
type header struct {
	CommandLength  uint32
	CommandID      uint32
	CommandStatus  uint32
	SequenceNumber uint32
}

func encodeHeader(buf *bytes.Buffer, h header) {
	binary.Write(buf, binary.BigEndian, h)
}

func cString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	b[len(s)] = 0
	return b
}

// encodeBindTransmitter builds a bind_transmitter PDU.
func encodeBindTransmitter(seq uint32, systemID, password, systemType string) []byte {
	var body bytes.Buffer
	body.Write(cString(systemID))
	body.Write(cString(password))
	body.Write(cString(systemType))
	body.WriteByte(0x34) // interface_version: SMPP 3.4
	body.WriteByte(0x00) // addr_ton
	body.WriteByte(0x00) // addr_npi
	body.Write(cString("")) // address_range

	total := 16 + body.Len()
	var out bytes.Buffer
	encodeHeader(&out, header{CommandLength: uint32(total), CommandID: cmdBindTransmitter, CommandStatus: 0, SequenceNumber: seq})
	out.Write(body.Bytes())
	return out.Bytes()
}

// encodeSubmitSM builds a submit_sm PDU for a single short message with no
// optional TLV parameters.
func encodeSubmitSM(seq uint32, sourceAddr, destAddr, message string) []byte {
	var body bytes.Buffer
	body.Write(cString(""))          // service_type
	body.WriteByte(0x00)             // source_addr_ton
	body.WriteByte(0x00)             // source_addr_npi
	body.Write(cString(sourceAddr))  // source_addr
	body.WriteByte(0x01)             // dest_addr_ton (international)
	body.WriteByte(0x01)             // dest_addr_npi (ISDN)
	body.Write(cString(destAddr))    // destination_addr
	body.WriteByte(0x00)             // esm_class
	body.WriteByte(0x00)             // protocol_id
	body.WriteByte(0x00)             // priority_flag
	body.Write(cString(""))          // schedule_delivery_time
	body.Write(cString(""))          // validity_period
	body.WriteByte(0x00)             // registered_delivery
	body.WriteByte(0x00)             // replace_if_present_flag
	body.WriteByte(0x00)             // data_coding (GSM 7-bit default)
	body.WriteByte(0x00)             // sm_default_msg_id
	sm := []byte(message)
	if len(sm) > 254 {
		sm = sm[:254]
	}
	body.WriteByte(byte(len(sm))) // sm_length
	body.Write(sm)

	total := 16 + body.Len()
	var out bytes.Buffer
	encodeHeader(&out, header{CommandLength: uint32(total), CommandID: cmdSubmitSM, CommandStatus: 0, SequenceNumber: seq})
	out.Write(body.Bytes())
	return out.Bytes()
}

// encodeUnbind builds an unbind PDU.
func encodeUnbind(seq uint32) []byte {
	var out bytes.Buffer
	encodeHeader(&out, header{CommandLength: 16, CommandID: cmdUnbind, CommandStatus: 0, SequenceNumber: seq})
	return out.Bytes()
}

// decodeHeader reads the fixed 16-byte header from the front of buf.
func decodeHeader(buf []byte) (header, error) {
	if len(buf) < 16 {
		return header{}, fmt.Errorf("smpp: short pdu header: %d bytes", len(buf))
	}
	return header{
		CommandLength:  binary.BigEndian.Uint32(buf[0:4]),
		CommandID:      binary.BigEndian.Uint32(buf[4:8]),
		CommandStatus:  binary.BigEndian.Uint32(buf[8:12]),
		SequenceNumber: binary.BigEndian.Uint32(buf[12:16]),
	}, nil
}
