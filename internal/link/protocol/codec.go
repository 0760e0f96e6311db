package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	domainerrors "enginelink/internal/core/errors"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	headerSize = 4
	// DefaultMaxFrameBytes bounds a single frame body.
	DefaultMaxFrameBytes = 1 << 20
)

var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// CheckFrameSize reports ErrFrameTooLarge if msg would not fit in a frame of
// maxFrame bytes.
func CheckFrameSize(msg Message, maxFrame int) error {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameBytes
	}
	body, err := msgpack.Marshal(&msg)
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeProtocol, "encode message")
	}
	if len(body) > maxFrame {
		return fmt.Errorf("%s %q needs %d bytes: %w", msg.Kind, msg.Name, len(body), ErrFrameTooLarge)
	}
	return nil
}

// WriteMessage writes msg as a length-prefixed msgpack frame.
func WriteMessage(w io.Writer, msg Message, maxFrame int) error {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameBytes
	}
	body, err := msgpack.Marshal(&msg)
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeProtocol, "encode message")
	}
	if len(body) > maxFrame {
		return fmt.Errorf("write %s frame of %d bytes: %w", msg.Kind, len(body), ErrFrameTooLarge)
	}

	frame := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[headerSize:], body)
	if _, err := w.Write(frame); err != nil {
		return err
	}
	return nil
}

// ReadMessage reads one frame. io.EOF is returned unwrapped when the stream
// ends cleanly between frames.
func ReadMessage(r io.Reader, maxFrame int) (Message, error) {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameBytes
	}
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(maxFrame) {
		return Message{}, fmt.Errorf("read frame of %d bytes: %w", size, ErrFrameTooLarge)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Message{}, err
	}

	var msg Message
	if err := msgpack.Unmarshal(body, &msg); err != nil {
		return Message{}, domainerrors.Wrap(err, domainerrors.CodeProtocol, "decode message")
	}
	if msg.Kind < KindHello || msg.Kind > KindBye {
		return Message{}, domainerrors.New(domainerrors.CodeProtocol, fmt.Sprintf("unknown message kind %d", msg.Kind))
	}
	return msg, nil
}
