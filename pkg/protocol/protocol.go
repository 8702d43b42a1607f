// Package protocol defines the control channel framing and the voice packet
// format shared by the daemon's TCP and UDP paths.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// VoiceHeaderSize is the byte size of the voice packet header.
	// [sessionID(4) | seqNum(4)] = 8 bytes
	VoiceHeaderSize = 8

	// MaxVoicePayload is the maximum encrypted Opus payload size.
	MaxVoicePayload = 1400

	// MaxControlMessage is the maximum control message payload size (64KB).
	MaxControlMessage = 65536

	// FrameDuration is the Opus frame duration in milliseconds.
	FrameDuration = 20

	// SampleRate is the audio sample rate in Hz.
	SampleRate = 48000

	// AudioChannels is the number of audio channels (mono).
	AudioChannels = 1

	// FrameSize is the number of samples per frame.
	FrameSize = SampleRate * FrameDuration / 1000 // 960

	// ClientVersion is the protocol version announced on connect,
	// encoded as major<<16 | minor<<8 | patch.
	ClientVersion = 1<<16 | 5<<8
)

var (
	ErrPacketTooShort  = errors.New("protocol: packet too short")
	ErrMessageTooLarge = errors.New("protocol: message too large")
	ErrTypeMismatch    = errors.New("protocol: type tag does not match payload")
)

// VoicePacket represents a voice data packet sent over UDP.
type VoicePacket struct {
	Session uint32 // 4 bytes: identifies the sender session
	SeqNum  uint32 // 4 bytes: per-sender sequence number (also the AEAD nonce input)
	Payload []byte // encrypted Opus frame + auth tag
}

// MarshalHeader marshals only the header portion (8 bytes). The header is
// authenticated as AEAD additional data, never encrypted.
func (p *VoicePacket) MarshalHeader() []byte {
	h := make([]byte, VoiceHeaderSize)
	binary.BigEndian.PutUint32(h[0:4], p.Session)
	binary.BigEndian.PutUint32(h[4:8], p.SeqNum)
	return h
}

// Marshal serializes the entire voice packet to bytes.
func (p *VoicePacket) Marshal() []byte {
	buf := make([]byte, VoiceHeaderSize+len(p.Payload))
	copy(buf, p.MarshalHeader())
	copy(buf[VoiceHeaderSize:], p.Payload)
	return buf
}

// UnmarshalVoicePacket parses a voice packet from raw bytes.
func UnmarshalVoicePacket(data []byte) (*VoicePacket, error) {
	if len(data) < VoiceHeaderSize {
		return nil, ErrPacketTooShort
	}
	pkt := &VoicePacket{
		Session: binary.BigEndian.Uint32(data[0:4]),
		SeqNum:  binary.BigEndian.Uint32(data[4:8]),
		Payload: make([]byte, len(data)-VoiceHeaderSize),
	}
	copy(pkt.Payload, data[VoiceHeaderSize:])
	return pkt, nil
}

// WriteControlMessage writes a framed control message to a writer.
// Format: [2-byte big-endian type tag][4-byte big-endian length][payload]
func WriteControlMessage(w io.Writer, msg *ControlMessage) error {
	typ, ok := msg.Type()
	if !ok {
		return errors.New("protocol: empty control message")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("protocol: marshal: %w", err)
	}
	if len(data) > MaxControlMessage {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data))
	}

	header := make([]byte, 6)
	binary.BigEndian.PutUint16(header[0:2], uint16(typ))
	binary.BigEndian.PutUint32(header[2:6], uint32(len(data))) //nolint:gosec // length already bounds-checked above
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("protocol: write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("protocol: write payload: %w", err)
	}
	return nil
}

// ReadControlMessage reads one framed control message from a reader.
// The payload's populated field must agree with the type tag.
func ReadControlMessage(r io.Reader) (*ControlMessage, error) {
	header := make([]byte, 6)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("protocol: read header: %w", err)
	}
	typ := MessageType(binary.BigEndian.Uint16(header[0:2]))
	length := binary.BigEndian.Uint32(header[2:6])
	if length > MaxControlMessage {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("protocol: read payload: %w", err)
	}

	msg := &ControlMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal %s: %w", typ, err)
	}
	got, ok := msg.Type()
	if !ok || got != typ {
		return nil, fmt.Errorf("%w: tag %s", ErrTypeMismatch, typ)
	}
	return msg, nil
}
