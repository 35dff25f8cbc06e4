package fingerprint

import (
	"math/rand"
	"testing"
)

func TestKey_Deterministic(t *testing.T) {
	a := Key("https://youtu.be/abc123def45", 30, 1280, 720)
	b := Key("https://youtu.be/abc123def45", 30, 1280, 720)
	if a != b {
		t.Fatalf("same inputs produced different keys: %q vs %q", a, b)
	}
}

func TestKey_FixedLength(t *testing.T) {
	k := Key("https://vimeo.com/12345", 0, 640, 360)
	if len(k) != 64 {
		t.Fatalf("expected 64-char hex key, got %d chars: %q", len(k), k)
	}
}

func TestKey_FieldSensitivity(t *testing.T) {
	base := Key("https://youtu.be/abc123def45", 30, 1280, 720)

	variants := map[string]string{
		"url":       Key("https://youtu.be/abc123def46", 30, 1280, 720),
		"timestamp": Key("https://youtu.be/abc123def45", 31, 1280, 720),
		"width":     Key("https://youtu.be/abc123def45", 30, 1281, 720),
		"height":    Key("https://youtu.be/abc123def45", 30, 1280, 721),
	}
	for field, k := range variants {
		if k == base {
			t.Errorf("changing %s did not change the key", field)
		}
	}
}

func TestKey_RandomizedTuples(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	urls := []string{
		"https://youtube.com/watch?v=x",
		"https://vimeo.com/987",
		"https://example.com/clip.mp4",
	}
	seen := make(map[string][4]any)
	for i := 0; i < 500; i++ {
		u := urls[rng.Intn(len(urls))]
		ts := float64(rng.Intn(3600))
		w := 100 + rng.Intn(1820)
		h := 100 + rng.Intn(980)

		k := Key(u, ts, w, h)
		if k != Key(u, ts, w, h) {
			t.Fatalf("key not pure for (%s, %v, %d, %d)", u, ts, w, h)
		}
		if prev, ok := seen[k]; ok {
			if prev != [4]any{u, ts, w, h} {
				t.Fatalf("collision between %v and (%s, %v, %d, %d)", prev, u, ts, w, h)
			}
		}
		seen[k] = [4]any{u, ts, w, h}
	}
}

func TestKey_NoURLNormalization(t *testing.T) {
	// Two spellings of the same page are distinct keys: the generator does
	// not normalize casing or trailing slashes.
	if Key("https://vimeo.com/1", 0, 640, 360) == Key("https://vimeo.com/1/", 0, 640, 360) {
		t.Fatal("trailing slash should change the key")
	}
}
