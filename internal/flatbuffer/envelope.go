package flatbuffer

import (
	"encoding/binary"
	"fmt"

	lzf "github.com/zhuyie/golzf"
)

// lzfHeaderLen is the size of the legacy LZF envelope header that
// follows the message's first 4 bytes: 4-byte schema tag at the standard offset, 4-byte
// compressed length, 4-byte original (decompressed) length, 4-byte
// root table offset of the wrapped message, then the compressed
// payload. The tag stays in the clear at its usual offset so a
// Registry lookup can dispatch before the body is decompressed. A
// handful of older schema modules still wrap their body this way;
// current ones do not.
const lzfHeaderLen = 16

// UnwrapLZF strips an LZF envelope from msg, returning a new Message
// whose Data is the decompressed flatbuffer body with its schema tag
// and root table offset restored at their standard offsets, ready for
// Registry.Find/Reader.Verify. It is an error for payloads shorter
// than the envelope header.
func UnwrapLZF(msg Message) (Message, error) {
	if msg.Size() < 4+lzfHeaderLen {
		return Message{}, fmt.Errorf("flatbuffer: lzf envelope too short: %d bytes", msg.Size())
	}

	tag := msg.Data[4:8]
	compressedLen := binary.LittleEndian.Uint32(msg.Data[8:12])
	originalLen := binary.LittleEndian.Uint32(msg.Data[12:16])
	rootTableOffset := binary.LittleEndian.Uint32(msg.Data[16:20])
	payloadStart := 20
	payloadEnd := payloadStart + int(compressedLen)
	if payloadEnd > msg.Size() {
		return Message{}, fmt.Errorf("flatbuffer: lzf envelope declares %d bytes, message has %d", payloadEnd, msg.Size())
	}

	dst := make([]byte, originalLen)
	n, err := lzf.Decompress(msg.Data[payloadStart:payloadEnd], dst)
	if err != nil {
		return Message{}, fmt.Errorf("flatbuffer: lzf decompress: %w", err)
	}
	if n != int(originalLen) {
		return Message{}, fmt.Errorf("flatbuffer: lzf decompressed length mismatch: expect %d, got %d", originalLen, n)
	}

	out := make([]byte, 8+len(dst))
	binary.LittleEndian.PutUint32(out[0:4], rootTableOffset)
	copy(out[4:8], tag)
	copy(out[8:], dst)

	return Message{
		Data:      out,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		BrokerTS:  msg.BrokerTS,
	}, nil
}
