package core

import "testing"

func TestTimebaseToSeconds(t *testing.T) {
	tb := NewTimebase(1, 44100)
	got := tb.ToSeconds(44100)
	if got != 1.0 {
		t.Fatalf("ToSeconds(44100) = %v, want 1.0", got)
	}
}

func TestTimebaseScalePTS(t *testing.T) {
	src := NewTimebase(1, 1000)  // milliseconds
	dst := NewTimebase(1, 44100) // samples
	got := src.ScalePTS(1000, dst)
	if got != 44100 {
		t.Fatalf("ScalePTS(1000ms) = %d, want 44100", got)
	}
}

func TestTimebaseScalePTSLargeValues(t *testing.T) {
	// A multi-hour stream at a high sample rate: num*den products must not
	// overflow int64 during the intermediate multiply.
	src := NewTimebase(1, 48000)
	dst := NewTimebase(1, 90000)
	pts := int64(48000) * 3600 * 5 // 5 hours of samples
	got := src.ScalePTS(pts, dst)
	want := int64(90000) * 3600 * 5
	if got != want {
		t.Fatalf("ScalePTS large = %d, want %d", got, want)
	}
}

func TestTimebaseEqual(t *testing.T) {
	a := NewTimebase(1, 48000)
	b := NewTimebase(2, 96000)
	if !a.Equal(b) {
		t.Fatalf("expected %v == %v", a, b)
	}
}
