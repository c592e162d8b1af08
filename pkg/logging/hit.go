// Package logging adds the "hit" log level used to report successful exploitation.
package logging

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// HitLevel is the level name written for hit events.
	HitLevel = "hit"

	hitMarkerField = "_hit"
)

var (
	globalHitWriter *HitLevelWriter
	globalMu        sync.RWMutex
)

// Hit starts a log event that is always emitted, regardless of the global level,
// and rendered with level "hit" by a HitLevelWriter.
func Hit() *zerolog.Event {
	return log.Log().Bool(hitMarkerField, true)
}

// HitLevelWriter rewrites events created by Hit so that their level field reads "hit".
// All other events pass through unchanged.
type HitLevelWriter struct {
	mu   sync.Mutex
	out  io.Writer
	hits atomic.Int64
}

// SetOutput sets the writer that receives transformed events.
func (w *HitLevelWriter) SetOutput(out io.Writer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.out = out
}

// Hits returns the number of hit events written so far.
func (w *HitLevelWriter) Hits() int64 {
	return w.hits.Load()
}

func (w *HitLevelWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.out == nil {
		return len(p), nil
	}

	var event map[string]interface{}
	if err := json.Unmarshal(p, &event); err != nil {
		return w.out.Write(p)
	}

	if _, ok := event[hitMarkerField]; !ok {
		return w.out.Write(p)
	}

	delete(event, hitMarkerField)
	event[zerolog.LevelFieldName] = HitLevel
	w.hits.Add(1)

	transformed, err := json.Marshal(event)
	if err != nil {
		return w.out.Write(p)
	}
	transformed = append(transformed, '\n')

	if _, err := w.out.Write(transformed); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetGlobalHitWriter registers the writer the root logger uses.
func SetGlobalHitWriter(w *HitLevelWriter) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalHitWriter = w
}

// HitCount returns the number of hits logged through the global writer.
func HitCount() int64 {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalHitWriter == nil {
		return 0
	}
	return globalHitWriter.Hits()
}
