// Package comms implements the wire protocol between the logbook and the sync
// server: framed packets, optionally LZW compressed, each carrying one keyword
// message.
package comms

import (
	"bytes"
	"compress/lzw"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic starts every packet
var Magic = [8]byte{'F', 'L', 'I', 'G', 'H', 'T', 'L', 'G'}

const (
	headerSize = len(Magic) + 1 + 4

	// MaxPayload is the largest payload accepted, before or after decompression
	MaxPayload = 16 << 20

	// CompressThreshold is the payload size above which senders try compression
	CompressThreshold = 1024

	flagCompressed = 1 << 0

	lzwLitWidth = 8
)

var (
	// ErrBadMagic is returned when a packet does not start with Magic
	ErrBadMagic       = errors.New("bad packet magic")
	// ErrPacketTooLarge is returned for payloads above MaxPayload
	ErrPacketTooLarge = errors.New("packet too large")
)

// WritePacket frames payload and writes it in a single Write
func WritePacket(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(payload))
	}

	var flags byte
	body := payload
	if len(payload) > CompressThreshold {
		compressed, err := compress(payload)
		if err != nil {
			return err
		}
		if len(compressed) < len(payload) {
			body = compressed
			flags |= flagCompressed
		}
	}

	packet := make([]byte, headerSize+len(body))
	copy(packet, Magic[:])
	packet[len(Magic)] = flags
	binary.BigEndian.PutUint32(packet[len(Magic)+1:], uint32(len(body)))
	copy(packet[headerSize:], body)

	if _, err := w.Write(packet); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}

// ReadPacket reads one packet and returns its decompressed payload
func ReadPacket(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	if !bytes.Equal(header[:len(Magic)], Magic[:]) {
		return nil, ErrBadMagic
	}
	flags := header[len(Magic)]
	length := binary.BigEndian.Uint32(header[len(Magic)+1:])
	if length > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("failed to read packet body: %w", err)
	}

	if flags&flagCompressed == 0 {
		return body, nil
	}
	return decompress(body)
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.LSB, lzwLitWidth)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(data), lzw.LSB, lzwLitWidth)
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, MaxPayload+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}
	if len(out) > MaxPayload {
		return nil, fmt.Errorf("%w: decompressed payload over %d bytes", ErrPacketTooLarge, MaxPayload)
	}
	return out, nil
}
