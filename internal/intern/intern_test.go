package intern

import "testing"

func TestInternIdempotent(t *testing.T) {
	in := New()
	a := in.Intern("foo")
	b := in.Intern("foo")
	if a != b {
		t.Fatalf("Intern(\"foo\") returned different keys: %v != %v", a, b)
	}
	c := in.Intern("bar")
	if a == c {
		t.Fatalf("Intern(\"foo\") and Intern(\"bar\") collided")
	}
}

func TestLookupRoundTrip(t *testing.T) {
	in := New()
	k := in.Intern("hello world")
	if got := in.Lookup(k); got != "hello world" {
		t.Fatalf("Lookup(%v) = %q, want %q", k, got, "hello world")
	}
}

func TestUIDGeneratorMonotone(t *testing.T) {
	g := NewUIDGenerator()
	seen := make(map[uint32]bool)
	prev := int64(-1)
	for i := 0; i < 100; i++ {
		uid := g.Next()
		if seen[uid] {
			t.Fatalf("UID %d reused", uid)
		}
		seen[uid] = true
		if int64(uid) <= prev {
			t.Fatalf("UID generator not monotone: %d after %d", uid, prev)
		}
		prev = int64(uid)
	}
}
