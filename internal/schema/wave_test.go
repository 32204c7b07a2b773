package schema

import (
	"bytes"
	"testing"
)

func TestWaveRoundTrip(t *testing.T) {
	samples := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	msg := EncodeWave("det1", 42, samples)

	if !(WaveReader{}).Verify(msg) {
		t.Fatal("Verify rejected a well-formed swav message")
	}
	if msg.Tag().String() != WaveTag {
		t.Fatalf("Tag() = %q, want %q", msg.Tag(), WaveTag)
	}

	name, err := WaveReader{}.SourceName(msg)
	if err != nil {
		t.Fatalf("SourceName: %v", err)
	}
	if name != "det1" {
		t.Errorf("SourceName = %q, want det1", name)
	}

	ts, decoded, err := DecodeWaveSamples(msg)
	if err != nil {
		t.Fatalf("DecodeWaveSamples: %v", err)
	}
	if ts != 42 {
		t.Errorf("timestamp = %d, want 42", ts)
	}
	if !bytes.Equal(decoded, samples) {
		t.Errorf("samples = %v, want %v", decoded, samples)
	}
}

func TestWaveEmptySamples(t *testing.T) {
	msg := EncodeWave("det1", 1, nil)
	_, samples, err := DecodeWaveSamples(msg)
	if err != nil {
		t.Fatalf("DecodeWaveSamples: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("samples = %v, want empty", samples)
	}
}
