package testutil

import (
	"sync"

	"sag-go/internal/sag"
)

// Progress is one OnProgress call.
type Progress struct {
	Current, Total int
}

// RecordingObserver keeps every callback it receives.
type RecordingObserver struct {
	mu       sync.Mutex
	progress []Progress
	logs     []string
}

var _ sag.Observer = (*RecordingObserver)(nil)

func (o *RecordingObserver) OnProgress(current, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, Progress{Current: current, Total: total})
}

func (o *RecordingObserver) OnLog(message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logs = append(o.logs, message)
}

func (o *RecordingObserver) Progress() []Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Progress(nil), o.progress...)
}

func (o *RecordingObserver) Logs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.logs...)
}
