package canonical

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestMarshalSortsKeys(t *testing.T) {
	in := map[string]any{
		"b": 1,
		"a": map[string]any{"z": true, "y": nil},
		"c": []any{"x", 2.5},
	}
	got, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"a":{"y":null,"z":true},"b":1,"c":["x",2.5]}`
	if string(got) != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestMarshalNormalizesStrings(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"

	a, err := Marshal(map[string]string{decomposed: decomposed})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := Marshal(map[string]string{composed: composed})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected NFC equality, got %s vs %s", a, b)
	}
}

func TestMarshalKeyCollision(t *testing.T) {
	_, err := Marshal(map[string]int{"e\u0301": 1, "\u00e9": 2})
	if err != ErrKeyCollision {
		t.Fatalf("expected key collision, got %v", err)
	}
}

func TestMarshalRejectsUnsupported(t *testing.T) {
	if _, err := Marshal(map[int]string{1: "a"}); err != ErrNonStringMapKey {
		t.Fatalf("expected non-string key error, got %v", err)
	}
	if _, err := Marshal(make(chan int)); err != ErrUnsupportedType {
		t.Fatalf("expected unsupported type, got %v", err)
	}
	if _, err := Marshal(math.Inf(1)); err != ErrNonFiniteNumber {
		t.Fatalf("expected non-finite error, got %v", err)
	}
}

func TestMarshalStructUsesJSONTags(t *testing.T) {
	type payload struct {
		Name  string   `json:"name"`
		Roles []string `json:"roles"`
	}
	got, err := Marshal(payload{Name: "ALZ-x", Roles: []string{"r1"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(got) != `{"name":"ALZ-x","roles":["r1"]}` {
		t.Fatalf("unexpected output %s", got)
	}
}

func TestMarshalDigestStable(t *testing.T) {
	var decoded any
	if err := json.Unmarshal([]byte(`{"x":[1,2],"a":"b"}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	_, d1, err := MarshalDigest(decoded)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	_, d2, err := MarshalDigest(map[string]any{"a": "b", "x": []int{1, 2}})
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if d1 != d2 {
		t.Fatalf("digest mismatch %s %s", d1, d2)
	}
	if !strings.HasPrefix(d1, "sha256:") || len(d1) != len("sha256:")+64 {
		t.Fatalf("unexpected digest %s", d1)
	}
}

func TestMarshalNilSliceIsEmptyArray(t *testing.T) {
	var roles []string
	got, err := Marshal(map[string]any{"roles": roles})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(got) != `{"roles":[]}` {
		t.Fatalf("unexpected output %s", got)
	}
}
