package crawl

import (
	"encoding/json"
	"io"
	"sync"
)

// Record is what one crawl step emits to the sink. The full domain-specific
// CSV flattening (per-participant champion/spell/mastery/rune columns) is an
// external collaborator's concern; the core only guarantees every emitted
// record carries the match id and the participant account ids a walker
// picked from, which is enough for an output sink to re-fetch or correlate
// richer data downstream.
type Record struct {
	GameID           int64    `json:"gameId"`
	ParticipantAccts []string `json:"participantAccountIds"`
}

// Sink accepts emitted records. Writes must be atomic per record: concurrent
// walkers may call Write from different goroutines.
type Sink interface {
	Write(Record) error
}

// JSONLineSink is a minimal Sink writing one JSON object per line to w,
// guarded by a single mutex so concurrent walkers never interleave partial
// writes. It is intentionally not the full flattened-CSV format the
// original crawler produced; richer formats are a collaborator's choice.
type JSONLineSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLineSink wraps w as a Sink.
func NewJSONLineSink(w io.Writer) *JSONLineSink {
	return &JSONLineSink{w: w}
}

func (s *JSONLineSink) Write(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = s.w.Write(line)
	return err
}

// MemorySink collects records in memory, for tests and for short-lived
// tooling that wants the records without going through a file.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

// Records returns a copy of everything written so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
