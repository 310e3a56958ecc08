package datalog

import (
	"io"

	"github.com/gocarina/gocsv"
	"golang.org/x/xerrors"

	"github.com/pbrmon/pbrmon/lib/history"
)

// exportRecord mirrors the log columns with readings rounded the way the log
// stores them.
type exportRecord struct {
	Timestamp   string  `csv:"Timestamp"`
	Temperature float64 `csv:"Temperature(C)"`
	Humidity    float64 `csv:"Humidity(%)"`
}

// Export writes samples as a CSV document with the log header.
func Export(w io.Writer, samples []history.Sample) error {
	records := make([]exportRecord, 0, len(samples))
	for _, s := range samples {
		records = append(records, exportRecord{
			Timestamp:   s.Timestamp,
			Temperature: history.Round1(s.Temperature),
			Humidity:    history.Round1(s.Humidity),
		})
	}
	if len(records) == 0 {
		// keep the header so an empty export still parses as a log
		if _, err := io.WriteString(w, Header+"\n"); err != nil {
			return xerrors.Errorf("failed to write header: %w", err)
		}
		return nil
	}
	if err := gocsv.Marshal(records, w); err != nil {
		return xerrors.Errorf("failed to marshal csv: %w", err)
	}
	return nil
}
