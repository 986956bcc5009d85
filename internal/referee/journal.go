package referee

import (
	"bufio"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	JournalBufferSize     = 1024                   // Circular buffer size
	MaxEventsPerSec       = 2000                   // Global rate limit
	MaxEventsPerPlayer    = 20                     // Per-player rate limit per second
	JournalFlushSize      = 64                     // Events per batch write
	JournalFlushInterval  = 100 * time.Millisecond // How often to flush
	PlayerLimiterCapacity = 64                     // Two full rosters with margin
)

// Journal keeps the most recent rule events in memory and appends them to
// a JSONL file from a background writer. Emission never blocks the tick.
type Journal struct {
	mu       sync.Mutex
	buffer   [JournalBufferSize]Event
	written  uint64 // total events accepted, also the next sequence
	flushed  uint64 // events handed to the writer
	limiters map[string]*rate.Limiter

	// Rate limiting keeps a misbehaving robot from flooding the journal
	globalLimiter *rate.Limiter

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file   *os.File
	fileMu sync.Mutex

	droppedCount uint64 // atomic
}

// NewJournal creates an in-memory journal. Start attaches a file.
func NewJournal() *Journal {
	return &Journal{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		limiters:      make(map[string]*rate.Limiter, PlayerLimiterCapacity),
		stopChan:      make(chan struct{}),
	}
}

// Start opens path for append and begins the writer goroutine. An empty
// path keeps the journal in memory only.
func (j *Journal) Start(path string) error {
	if j.running.Load() {
		return nil
	}
	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		j.file = file
	}

	j.running.Store(true)
	j.writerWg.Add(1)
	go j.writerLoop()
	return nil
}

// Stop flushes pending events and closes the file.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		j.running.Store(false)
		close(j.stopChan)
		j.writerWg.Wait()

		j.fileMu.Lock()
		if j.file != nil {
			j.file.Close()
		}
		j.fileMu.Unlock()
	})
}

// Emit records an event. Returns false when rate limited.
func (j *Journal) Emit(event Event) bool {
	if !j.globalLimiter.Allow() {
		atomic.AddUint64(&j.droppedCount, 1)
		return false
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if event.Player != 0 {
		key := event.Team.String() + "/" + strconv.Itoa(event.Player)
		limiter, ok := j.limiters[key]
		if !ok {
			limiter = rate.NewLimiter(MaxEventsPerPlayer, MaxEventsPerPlayer)
			j.limiters[key] = limiter
		}
		if !limiter.Allow() {
			atomic.AddUint64(&j.droppedCount, 1)
			return false
		}
	}

	// Oldest unflushed events are overwritten when the writer falls behind
	if j.written-j.flushed >= JournalBufferSize {
		j.flushed++
		if j.running.Load() {
			atomic.AddUint64(&j.droppedCount, 1)
		}
	}

	j.written++
	event.Sequence = j.written
	j.buffer[j.written%JournalBufferSize] = event
	return true
}

// Recent returns up to limit of the latest events, oldest first.
func (j *Journal) Recent(limit int) []Event {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := uint64(limit)
	if n > j.written {
		n = j.written
	}
	if n > JournalBufferSize {
		n = JournalBufferSize
	}
	out := make([]Event, 0, n)
	for seq := j.written - n + 1; seq <= j.written; seq++ {
		out = append(out, j.buffer[seq%JournalBufferSize])
	}
	return out
}

func (j *Journal) writerLoop() {
	defer j.writerWg.Done()

	ticker := time.NewTicker(JournalFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, JournalFlushSize)
	for {
		select {
		case <-j.stopChan:
			for {
				batch = j.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				j.flushBatch(batch)
			}
		case <-ticker.C:
			batch = j.collectBatch(batch[:0])
			if len(batch) > 0 {
				j.flushBatch(batch)
			}
		}
	}
}

func (j *Journal) collectBatch(batch []Event) []Event {
	j.mu.Lock()
	defer j.mu.Unlock()

	for j.flushed < j.written && len(batch) < JournalFlushSize {
		j.flushed++
		batch = append(batch, j.buffer[j.flushed%JournalBufferSize])
	}
	return batch
}

// flushBatch appends events as newline-delimited JSON
func (j *Journal) flushBatch(batch []Event) {
	j.fileMu.Lock()
	defer j.fileMu.Unlock()

	if j.file == nil {
		return
	}
	w := bufio.NewWriter(j.file)
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	w.Flush()
}

// GetStats returns counters for the debug endpoints
func (j *Journal) GetStats() map[string]interface{} {
	j.mu.Lock()
	written, flushed := j.written, j.flushed
	j.mu.Unlock()

	return map[string]interface{}{
		"total":   written,
		"dropped": atomic.LoadUint64(&j.droppedCount),
		"pending": written - flushed,
		"running": j.running.Load(),
	}
}

// GetTotalCount returns the number of accepted events
func (j *Journal) GetTotalCount() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

// GetDroppedCount returns the number of rate limited or overwritten events
func (j *Journal) GetDroppedCount() uint64 {
	return atomic.LoadUint64(&j.droppedCount)
}
