package cluster

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
)

// Probe is one measured distance recorded during a frame's assignment:
// d(frame, anchor(clusterID)).
type Probe struct {
	ClusterID int
	Distance  float64
}

// FrameRecord is the per-frame assignment outcome of spec.md §3: the final
// cluster assignment plus the ordered list of probes taken to reach it.
// Discarded is set when the frame was consumed by the discard overflow
// strategy rather than attached to a cluster.
type FrameRecord struct {
	Index      int
	Assignment int
	Probes     []Probe
	Discarded  bool
}

// ProbeDistance returns the distance recorded for clusterID in this frame's
// probe list, if any. Gprob reweighting relies on this: a visitor v of
// cluster j is guaranteed to have probed j during its own assignment.
func (r FrameRecord) ProbeDistance(clusterID int) (float64, bool) {
	for _, p := range r.Probes {
		if p.ClusterID == clusterID {
			return p.Distance, true
		}
	}
	return 0, false
}

// FrameRecordLog is the append-only, prefix-stable log of FrameRecords
// (spec.md §3, §8), adapted from a write-ahead log. It keeps the
// length-prefixed-JSON-entry shape for the optional persistent backing file,
// but drops the fsync-per-entry durability guarantee: the steady-state probe
// loop forbids per-frame syscall stalls (spec.md §5), so persistence, when
// enabled, is buffered and flushed by the caller rather than on every
// Append. The authoritative state for gprob lookups is always the in-memory
// slice, not the file.
type FrameRecordLog struct {
	mu      sync.RWMutex
	records []FrameRecord

	file   *os.File
	writer *bufio.Writer
}

// NewFrameRecordLog returns an in-memory-only log pre-sized for maxFrames
// records.
func NewFrameRecordLog(maxFrames int) *FrameRecordLog {
	return &FrameRecordLog{records: make([]FrameRecord, 0, maxFrames)}
}

// OpenFrameRecordLog returns a log that also persists appended records to
// path as a length-prefixed JSON stream.
func OpenFrameRecordLog(path string, maxFrames int) (*FrameRecordLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("cluster: open frame record log: %w", err)
	}
	return &FrameRecordLog{
		records: make([]FrameRecord, 0, maxFrames),
		file:    file,
		writer:  bufio.NewWriter(file),
	}, nil
}

// Append adds rec to the log as given. Callers pass the frame's stable index
// in rec.Index; Append does not assign or renumber it.
func (l *FrameRecordLog) Append(rec FrameRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, rec)

	if l.writer == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cluster: marshal frame record: %w", err)
	}
	if err := binary.Write(l.writer, binary.LittleEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("cluster: write frame record length: %w", err)
	}
	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("cluster: write frame record: %w", err)
	}
	return nil
}

// Get returns the record for frame index k, if present.
func (l *FrameRecordLog) Get(k int) (FrameRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := l.position(k)
	if i < 0 {
		return FrameRecord{}, false
	}
	return l.records[i], true
}

// position returns the slice position of the record for frame index k, or
// -1. Records are appended in increasing frame index order, so the position
// is k itself unless frames were skipped; otherwise it is found by binary
// search on Index.
func (l *FrameRecordLog) position(k int) int {
	if k >= 0 && k < len(l.records) && l.records[k].Index == k {
		return k
	}
	i := sort.Search(len(l.records), func(i int) bool { return l.records[i].Index >= k })
	if i < len(l.records) && l.records[i].Index == k {
		return i
	}
	return -1
}

// MarkDiscarded flips the Discarded flag on the record for frame index k, if
// present.
func (l *FrameRecordLog) MarkDiscarded(k int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.position(k); i >= 0 {
		l.records[i].Discarded = true
	}
}

// MarkAllDiscardedForCluster flags every already-recorded frame whose
// assignment equals clusterID as discarded, and returns how many records
// were newly flagged. Used by the discard overflow strategy (spec.md §4.6,
// "their frames are marked 'discarded' in the assignment log") to retire
// every member frame of a discarded cluster, not just the frame that became
// its anchor.
func (l *FrameRecordLog) MarkAllDiscardedForCluster(clusterID int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for i := range l.records {
		if l.records[i].Assignment == clusterID && !l.records[i].Discarded {
			l.records[i].Discarded = true
			n++
		}
	}
	return n
}

// Len returns the number of records currently held.
func (l *FrameRecordLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Truncate discards every record beyond the first n, exercising the
// prefix-stable-log testable property of spec.md §8 (truncating at any point
// yields a valid state).
func (l *FrameRecordLog) Truncate(n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n < 0 || n > len(l.records) {
		return fmt.Errorf("cluster: truncate index %d out of range [0,%d]", n, len(l.records))
	}
	l.records = l.records[:n]
	return nil
}

// SyncToDisk flushes and fsyncs the backing file, if one is open. Callers
// use this at checkpoints (overflow events, shutdown) rather than per frame.
func (l *FrameRecordLog) SyncToDisk() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return nil
	}
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Sync()
}

// Close flushes and closes the backing file, if one is open.
func (l *FrameRecordLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return nil
	}
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}

// Flush writes the spec.md §6 assignment-stream text format,
// "<frame_index> <cluster_id>" per line in input order, to w. Frames
// consumed by the discard overflow strategy are written with a cluster id
// of -1.
func (l *FrameRecordLog) Flush(w io.Writer) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bw := bufio.NewWriter(w)
	for _, r := range l.records {
		id := r.Assignment
		if r.Discarded {
			id = -1
		}
		if _, err := fmt.Fprintf(bw, "%d %d\n", r.Index, id); err != nil {
			return err
		}
	}
	return bw.Flush()
}
