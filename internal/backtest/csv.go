package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"
)

var fillHeader = []string{"time", "bar", "side", "price", "units", "notional", "fee"}

// WriteFills writes fills as CSV with a header row
func WriteFills(w io.Writer, fills []Fill) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(fillHeader); err != nil {
		return err
	}
	for _, f := range fills {
		if err := cw.Write([]string{
			f.Time.Format(time.RFC3339),
			strconv.Itoa(f.Bar),
			string(f.Side),
			formatF(f.Price),
			formatF(f.Units),
			formatF(f.Notional),
			formatF(f.Fee),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFillsCSV writes fills to the file at path
func WriteFillsCSV(fills []Fill, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteFills(f, fills); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
