package backtest

import "testing"

func TestVolumeWindow_Expiry(t *testing.T) {
	var w volumeWindow
	w.Add(100)
	w.Add(0)
	w.Add(-5)

	if w.Total() != 0 {
		t.Errorf("total before advance = %v, want 0", w.Total())
	}
	if w.Len() != 1 {
		t.Errorf("len = %d, want 1", w.Len())
	}

	for i := 0; i < VolumeWindowBars; i++ {
		w.Advance()
	}
	if w.Total() != 100 {
		t.Errorf("total after %d bars = %v, want 100", VolumeWindowBars, w.Total())
	}

	w.Advance()
	if w.Total() != 0 || w.Len() != 0 {
		t.Errorf("entry should expire: total=%v len=%d", w.Total(), w.Len())
	}
}

func TestVolumeWindow_Accumulates(t *testing.T) {
	var w volumeWindow
	w.Add(100)
	w.Advance()
	w.Add(250)
	w.Advance()

	if w.Total() != 350 {
		t.Errorf("total = %v, want 350", w.Total())
	}
}
