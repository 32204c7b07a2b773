package flatbuffer

import (
	"encoding/binary"
	"testing"

	lzf "github.com/zhuyie/golzf"
)

// wrapLZF builds an envelope around inner (a full message buffer, tag
// at [4:8], root table at the offset stored in inner[0:4]), the
// inverse of UnwrapLZF, for test fixtures.
func wrapLZF(t *testing.T, inner []byte) Message {
	t.Helper()
	rootTableOffset := binary.LittleEndian.Uint32(inner[0:4])
	tag := inner[4:8]
	body := inner[8:]

	compressed := make([]byte, len(body)*2+16)
	n, err := lzf.Compress(body, compressed)
	if err != nil {
		t.Fatalf("lzf.Compress: %v", err)
	}
	compressed = compressed[:n]

	out := make([]byte, 20+len(compressed))
	copy(out[4:8], tag)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(body)))
	binary.LittleEndian.PutUint32(out[16:20], rootTableOffset)
	copy(out[20:], compressed)

	return Message{Data: out, Partition: 3, Offset: 42, BrokerTS: 99}
}

func TestUnwrapLZFRoundTrip(t *testing.T) {
	inner := make([]byte, 64)
	binary.LittleEndian.PutUint32(inner[0:4], 18)
	copy(inner[4:8], "f142")
	for i := 8; i < len(inner); i++ {
		inner[i] = byte(i)
	}

	wrapped := wrapLZF(t, inner)

	got, err := UnwrapLZF(wrapped)
	if err != nil {
		t.Fatalf("UnwrapLZF: %v", err)
	}
	if len(got.Data) != len(inner) {
		t.Fatalf("unwrapped length = %d, want %d", len(got.Data), len(inner))
	}
	for i := range inner {
		if got.Data[i] != inner[i] {
			t.Fatalf("byte %d = %d, want %d", i, got.Data[i], inner[i])
		}
	}
	if got.Partition != 3 || got.Offset != 42 || got.BrokerTS != 99 {
		t.Errorf("broker coordinates not preserved: %+v", got)
	}
}

func TestUnwrapLZFRejectsShortPayload(t *testing.T) {
	if _, err := UnwrapLZF(Message{Data: make([]byte, 10)}); err == nil {
		t.Fatal("expected an error for a payload shorter than the envelope header")
	}
}
