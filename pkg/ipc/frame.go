package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// writeFrame writes one length-prefixed JSON value.
func writeFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ipc: marshal: %w", err)
	}
	if len(data) > MaxFrame {
		return fmt.Errorf("ipc: frame too large: %d bytes", len(data))
	}
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(data))) //nolint:gosec // bounds-checked above
	if _, err := w.Write(lenBuf); err != nil {
		return fmt.Errorf("ipc: write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("ipc: write payload: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed JSON value into v.
func readFrame(r io.Reader, v any) error {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length > MaxFrame {
		return fmt.Errorf("ipc: frame too large: %d bytes", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("ipc: read payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ipc: unmarshal: %w", err)
	}
	return nil
}
