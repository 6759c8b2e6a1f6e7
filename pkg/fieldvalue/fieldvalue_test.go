package fieldvalue

import (
	"encoding/json"
	"testing"
)

func TestZeroValueIsUnset(t *testing.T) {
	var v Value[string]
	if v.IsSet() || v.IsNull() || v.HasValue() {
		t.Fatalf("zero value: set=%v null=%v present=%v", v.IsSet(), v.IsNull(), v.HasValue())
	}
	if _, ok := v.Get(); ok {
		t.Fatal("Get on unset reported ok")
	}
}

func TestTriState(t *testing.T) {
	u := Unset[int]()
	n := Null[int]()
	p := Of(42)

	if u.IsSet() {
		t.Fatal("unset reported set")
	}
	if !n.IsSet() || !n.IsNull() || n.HasValue() {
		t.Fatalf("null: set=%v null=%v present=%v", n.IsSet(), n.IsNull(), n.HasValue())
	}
	if !p.IsSet() || p.IsNull() || !p.HasValue() {
		t.Fatalf("present: set=%v null=%v present=%v", p.IsSet(), p.IsNull(), p.HasValue())
	}
	if got, ok := p.Get(); !ok || got != 42 {
		t.Fatalf("Get=%d ok=%v", got, ok)
	}
	if p.OrZero() != 42 || n.OrZero() != 0 || u.OrZero() != 0 {
		t.Fatalf("OrZero: %d %d %d", p.OrZero(), n.OrZero(), u.OrZero())
	}
}

func TestMustGetPanicsOnUnset(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Unset[string]().MustGet()
}

func TestMustGetNullReturnsZero(t *testing.T) {
	if got := Null[string]().MustGet(); got != "" {
		t.Fatalf("got %q", got)
	}
	if got := Of("x").MustGet(); got != "x" {
		t.Fatalf("got %q", got)
	}
}

func TestOfPtr(t *testing.T) {
	if !OfPtr[int](nil).IsNull() {
		t.Fatal("nil pointer should map to null")
	}
	v := 7
	got := OfPtr(&v)
	if val, ok := got.Get(); !ok || val != 7 {
		t.Fatalf("val=%d ok=%v", val, ok)
	}
}

func TestPtrCopies(t *testing.T) {
	v := Of(3)
	p := v.Ptr()
	if p == nil || *p != 3 {
		t.Fatalf("p=%v", p)
	}
	*p = 9
	if got := v.MustGet(); got != 3 {
		t.Fatalf("mutated through Ptr: %d", got)
	}
	if Null[int]().Ptr() != nil || Unset[int]().Ptr() != nil {
		t.Fatal("null/unset Ptr should be nil")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(Of("hi"))
	if err != nil || string(b) != `"hi"` {
		t.Fatalf("b=%s err=%v", b, err)
	}
	b, err = json.Marshal(Null[string]())
	if err != nil || string(b) != "null" {
		t.Fatalf("b=%s err=%v", b, err)
	}

	var v Value[string]
	if err := json.Unmarshal([]byte(`"hi"`), &v); err != nil {
		t.Fatalf("err=%v", err)
	}
	if got := v.MustGet(); got != "hi" {
		t.Fatalf("got=%q", got)
	}
	if err := json.Unmarshal([]byte("null"), &v); err != nil {
		t.Fatalf("err=%v", err)
	}
	if !v.IsNull() {
		t.Fatal("expected null")
	}
}

func TestString(t *testing.T) {
	if s := Unset[int]().String(); s != "unset" {
		t.Fatalf("s=%q", s)
	}
	if s := Null[int]().String(); s != "null" {
		t.Fatalf("s=%q", s)
	}
	if s := Of(5).String(); s != "5" {
		t.Fatalf("s=%q", s)
	}
}
