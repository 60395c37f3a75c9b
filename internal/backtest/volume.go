package backtest

// VolumeWindowBars is how long a trade counts toward trailing volume:
// 30 days of hourly bars.
const VolumeWindowBars = 720

type volumeEntry struct {
	age      int
	notional float64
}

// volumeWindow tracks trade notional over the trailing VolumeWindowBars.
type volumeWindow struct {
	entries []volumeEntry
	total   float64
}

// Add records a trade executed on the current bar
func (w *volumeWindow) Add(notional float64) {
	if notional <= 0 {
		return
	}
	w.entries = append(w.entries, volumeEntry{notional: notional})
}

// Advance ends the current bar: entries younger than the window are summed
// into the trailing total and aged by one, older entries are dropped.
func (w *volumeWindow) Advance() {
	kept := w.entries[:0]
	var total float64
	for _, e := range w.entries {
		if e.age < VolumeWindowBars {
			total += e.notional
			kept = append(kept, volumeEntry{age: e.age + 1, notional: e.notional})
		}
	}
	w.entries = kept
	w.total = total
}

// Total is the trailing volume as of the last Advance
func (w *volumeWindow) Total() float64 {
	return w.total
}

// Len is the number of retained entries
func (w *volumeWindow) Len() int {
	return len(w.entries)
}
