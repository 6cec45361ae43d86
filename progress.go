package ggpk

import (
	"fmt"
	"sync"
)

// ProgressStage identifies the current phase of a long operation.
type ProgressStage uint8

// Progress stages.
const (
	// StageScanning indicates records are being decoded and indexed.
	StageScanning ProgressStage = iota

	// StageLinking indicates the free chain is being threaded.
	StageLinking

	// StageWriting indicates a full rewrite is copying records.
	StageWriting

	// StageExtracting indicates files are being extracted.
	StageExtracting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageScanning:
		return "scanning"
	case StageLinking:
		return "linking free records"
	case StageWriting:
		return "writing"
	case StageExtracting:
		return "extracting"
	default:
		return "unknown"
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	// Stage identifies the current phase.
	Stage ProgressStage

	// Path is the file being processed, if applicable.
	Path string

	// Done is the amount of work completed: bytes while scanning and
	// writing, records while linking, files while extracting.
	Done int64

	// Total is the amount of work in the stage. Zero means unknown.
	Total int64
}

// Percent returns completion in the range [0, 100], or 0 when Total is unknown.
func (e ProgressEvent) Percent() float64 {
	if e.Total <= 0 {
		return 0
	}
	return 100 * float64(min(e.Done, e.Total)) / float64(e.Total)
}

func (e ProgressEvent) String() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %.2f%% %s", e.Stage, e.Percent(), e.Path)
	}
	return fmt.Sprintf("%s %.2f%%", e.Stage, e.Percent())
}

// ProgressFunc receives progress updates.
// During extraction it may be called from several goroutines, one at a time.
type ProgressFunc func(ProgressEvent)

// reporter throttles progress to roughly one event per step percent, always
// emitting the final event.
type reporter struct {
	mu    sync.Mutex
	fn    ProgressFunc
	stage ProgressStage
	total int64
	step  int64
	next  int64
	last  int64
}

func newReporter(fn ProgressFunc, stage ProgressStage, total int64, percent int64) *reporter {
	return &reporter{
		fn:    fn,
		stage: stage,
		total: total,
		step:  max(total*percent/100, 1),
		last:  -1,
	}
}

func (r *reporter) report(done int64, path string) {
	if r == nil || r.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if done == r.last || (done < r.next && done < r.total) {
		return
	}
	r.next = done + r.step
	r.last = done
	r.fn(ProgressEvent{Stage: r.stage, Path: path, Done: done, Total: r.total})
}
