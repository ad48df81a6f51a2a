package session

import (
	"encoding/json"
	"testing"
)

// FuzzDecodeUser feeds arbitrary stored values to the profile decoder.
// Goal: no panics, and every accepted value re-encodes.
func FuzzDecodeUser(f *testing.F) {
	encoded, err := EncodeUser(UserProfile{ID: "1", Name: "Ada", Role: RoleAdmin, Status: StatusActive})
	if err == nil {
		f.Add(encoded)
	}
	f.Add("")
	f.Add("null")
	f.Add("not-json")
	f.Add(`{"id":"abc","role":"user"}`)
	f.Add(`{"id":{"nested":true}}`)
	f.Add(`[1,2,3]`)
	f.Add(`{"id":1.5e3}`)

	f.Fuzz(func(t *testing.T, raw string) {
		u, ok := DecodeUser(raw)
		if !ok {
			if u != nil {
				t.Fatal("rejected value returned a profile")
			}
			return
		}
		if _, err := EncodeUser(*u); err != nil {
			t.Fatalf("accepted profile failed to encode: %v", err)
		}
	})
}

func TestUserRoundTrip(t *testing.T) {
	want := UserProfile{ID: "42", Name: "Grace", Email: "g@lib.org", Role: RoleLibrarian, Status: StatusInactive}
	raw, err := EncodeUser(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, ok := DecodeUser(raw)
	if !ok || *got != want {
		t.Fatalf("round trip mismatch: %+v ok=%v", got, ok)
	}
}

func TestIDAcceptsNumberAndString(t *testing.T) {
	var u UserProfile
	if err := json.Unmarshal([]byte(`{"id":7,"role":"user"}`), &u); err != nil {
		t.Fatalf("numeric id: %v", err)
	}
	if u.ID != "7" {
		t.Fatalf("expected id 7, got %q", u.ID)
	}
	out, _ := json.Marshal(u)
	if string(out) != `{"id":7,"role":"user"}` {
		t.Fatalf("numeric id not preserved: %s", out)
	}

	if err := json.Unmarshal([]byte(`{"id":"u-7","role":"user"}`), &u); err != nil {
		t.Fatalf("string id: %v", err)
	}
	if u.ID != "u-7" {
		t.Fatalf("expected id u-7, got %q", u.ID)
	}
}

func TestDecodeUserRejectsNonObject(t *testing.T) {
	for _, raw := range []string{"", "garbage", "42", `"str"`, "null", "[]"} {
		if u, ok := DecodeUser(raw); ok || u != nil {
			t.Fatalf("expected %q rejected", raw)
		}
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleAdmin, RoleLibrarian, RoleUser} {
		if !r.Valid() {
			t.Fatalf("expected %q valid", r)
		}
	}
	if Role("owner").Valid() {
		t.Fatal("unexpected role accepted")
	}
}
