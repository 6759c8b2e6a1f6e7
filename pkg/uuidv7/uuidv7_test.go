package uuidv7

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestNew(t *testing.T) {
	u, err := New()
	if err != nil {
		t.Fatalf("expected nil err, got %v", err)
	}
	if u.Version() != 7 {
		t.Fatalf("expected version 7, got %d", u.Version())
	}
	if u.Variant() != uuid.RFC4122 {
		t.Fatalf("expected RFC4122 variant, got %v", u.Variant())
	}
}

func TestNewAtOrdering(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier, err := NewAt(base)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	later, err := NewAt(base.Add(time.Second))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if bytes.Compare(earlier[:], later[:]) >= 0 {
		t.Fatalf("expected %s < %s", earlier, later)
	}
}

func TestNewString(t *testing.T) {
	got, err := NewString()
	if err != nil {
		t.Fatalf("expected nil err, got %v", err)
	}
	if _, err := uuid.Parse(got); err != nil {
		t.Fatalf("expected parseable uuid, got %v", err)
	}
}

func TestNewReadError(t *testing.T) {
	orig := rand.Reader
	rand.Reader = errReader{}
	defer func() { rand.Reader = orig }()

	if _, err := New(); err == nil {
		t.Fatal("expected error")
	}
	if _, err := NewString(); err == nil {
		t.Fatal("expected error")
	}
}

func TestMustNewPanicsOnReadError(t *testing.T) {
	orig := rand.Reader
	rand.Reader = errReader{}
	defer func() { rand.Reader = orig }()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustNew()
}
