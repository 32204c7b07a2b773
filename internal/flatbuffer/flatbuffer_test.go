package flatbuffer

import "testing"

type stubReader struct{}

func (stubReader) Verify(Message) bool                  { return true }
func (stubReader) SourceName(Message) (string, error)    { return "", nil }
func (stubReader) TimestampNs(Message) (uint64, error)   { return 0, nil }

func TestTagFromString(t *testing.T) {
	tag, err := TagFromString("f142")
	if err != nil {
		t.Fatalf("TagFromString: %v", err)
	}
	if tag.String() != "f142" {
		t.Errorf("String() = %q, want f142", tag.String())
	}
}

func TestTagFromStringRejectsWrongLength(t *testing.T) {
	if _, err := TagFromString("abc"); err == nil {
		t.Fatal("expected an error for a 3-byte tag")
	}
	if _, err := TagFromString("abcde"); err == nil {
		t.Fatal("expected an error for a 5-byte tag")
	}
}

func TestRegistryRegisterAndFind(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("f142", stubReader{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tag, _ := TagFromString("f142")
	reader, ok := r.Find(tag)
	if !ok {
		t.Fatal("Find did not return the registered reader")
	}
	if _, ok := reader.(stubReader); !ok {
		t.Fatalf("Find returned %T, want stubReader", reader)
	}
}

func TestRegistryRejectsDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("f142", stubReader{}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register("f142", stubReader{}); err == nil {
		t.Fatal("expected an error registering the same tag twice")
	}
}

func TestRegistryFindUnknownTag(t *testing.T) {
	r := NewRegistry()
	tag, _ := TagFromString("swav")
	if _, ok := r.Find(tag); ok {
		t.Fatal("Find should report ok=false for an unregistered tag")
	}
}

func TestMessageTagAndSize(t *testing.T) {
	data := make([]byte, 16)
	copy(data[4:8], "f142")
	msg := Message{Data: data}
	if msg.Tag().String() != "f142" {
		t.Errorf("Tag() = %q, want f142", msg.Tag())
	}
	if msg.Size() != 16 {
		t.Errorf("Size() = %d, want 16", msg.Size())
	}
}
