package schema

import "testing"

func TestF142RoundTrip(t *testing.T) {
	msg := EncodeF142("mot1", 123456789, 3.25)

	if !(F142Reader{}).Verify(msg) {
		t.Fatal("Verify rejected a well-formed f142 message")
	}
	if msg.Tag().String() != F142Tag {
		t.Fatalf("Tag() = %q, want %q", msg.Tag(), F142Tag)
	}

	name, err := F142Reader{}.SourceName(msg)
	if err != nil {
		t.Fatalf("SourceName: %v", err)
	}
	if name != "mot1" {
		t.Errorf("SourceName = %q, want mot1", name)
	}

	ts, err := F142Reader{}.TimestampNs(msg)
	if err != nil {
		t.Fatalf("TimestampNs: %v", err)
	}
	if ts != 123456789 {
		t.Errorf("TimestampNs = %d, want 123456789", ts)
	}

	value, decodedTs, err := DecodeF142Value(msg)
	if err != nil {
		t.Fatalf("DecodeF142Value: %v", err)
	}
	if decodedTs != 123456789 {
		t.Errorf("decoded timestamp = %d, want 123456789", decodedTs)
	}
	f, ok := value.(float64)
	if !ok || f != 3.25 {
		t.Errorf("decoded value = %v, want 3.25", value)
	}
}

func TestF142EmptySourceName(t *testing.T) {
	msg := EncodeF142("", 1, 0.0)
	name, err := F142Reader{}.SourceName(msg)
	if err != nil {
		t.Fatalf("SourceName: %v", err)
	}
	if name != "" {
		t.Errorf("SourceName = %q, want empty string", name)
	}
}

func TestF142VerifyRejectsWrongTag(t *testing.T) {
	msg := EncodeF142("mot1", 1, 1.0)
	copy(msg.Data[4:8], "swav")
	if (F142Reader{}).Verify(msg) {
		t.Fatal("Verify accepted a message whose tag does not match f142")
	}
}

func TestF142VerifyRejectsTruncatedMessage(t *testing.T) {
	msg := EncodeF142("mot1", 1, 1.0)
	msg.Data = msg.Data[:4]
	if (F142Reader{}).Verify(msg) {
		t.Fatal("Verify accepted a truncated message")
	}
}
