package output

import (
	"fmt"
	"io"
	"log"
	"time"
)

// maxFileRows bounds the number of data rows a CSV file sink will write,
// after which further rows are silently dropped (with a single notice).
const maxFileRows = 5_000_000

// FileSink serializes flow events to a UTF-8 CSV file: a '#'-prefixed
// banner and column legend, then one data row per event.
type FileSink struct {
	w         io.WriteCloser
	rows      int64
	limitHit  bool
}

// NewFileSink writes the header block to w (banner, creation timestamp,
// column legend) and returns a sink ready to accept packets.
func NewFileSink(w io.WriteCloser) (*FileSink, error) {
	header := fmt.Sprintf(
		"#optic flow event log\n#Date created: %s\n#x,y,t,p,u,v\n",
		time.Now().Format(time.RFC3339),
	)
	if _, err := io.WriteString(w, header); err != nil {
		return nil, fmt.Errorf("output: failed to write CSV header: %w", err)
	}
	return &FileSink{w: w}, nil
}

// Write appends one CSV row per event in p, up to maxFileRows total; rows
// beyond the limit are dropped with a single logged notice.
func (s *FileSink) Write(p *Packet) error {
	for _, e := range p.Events {
		if s.rows >= maxFileRows {
			if !s.limitHit {
				s.limitHit = true
				log.Printf("notice: CSV file log reached limit of %d rows - no more rows will be added", maxFileRows)
			}
			continue
		}
		polarity := 0
		if e.Polarity {
			polarity = 1
		}
		line := fmt.Sprintf("%3d,%3d,%10d,%d,%.3f,%.3f\n", e.X, e.Y, e.Timestamp, polarity, e.U, e.V)
		if _, err := io.WriteString(s.w, line); err != nil {
			return err
		}
		s.rows++
	}
	return nil
}

// Close closes the underlying file.
func (s *FileSink) Close() error { return s.w.Close() }
