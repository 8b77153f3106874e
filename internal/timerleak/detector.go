package timerleak

import (
	"sort"
	"strings"
	"sync"
	"time"

	oerrors "github.com/olekukonko/errors"

	"github.com/ads-marketplace/faultline/internal/logging"
)

const (
	DefaultThreshold     = 5 * time.Minute
	DefaultCheckInterval = time.Minute
)

type TimerType string

const (
	TypeTimeout  TimerType = "timeout"
	TypeInterval TimerType = "interval"
)

type TimerRecord struct {
	ID        TimerID
	Type      TimerType
	CreatedAt time.Time
	Stack     []string
}

// Age reports how long the timer has been outstanding at now.
func (r TimerRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// Detector records every timer scheduled through its instrumented Timers
// while monitoring is on.
type Detector struct {
	log           logging.Logger
	threshold     time.Duration
	checkInterval time.Duration
	raw           *runtimeTimers
	now           func() time.Time

	mu      sync.Mutex
	active  *instrumented
	checkID TimerID
	records map[TimerID]TimerRecord
}

func NewDetector(log logging.Logger, threshold, checkInterval time.Duration) *Detector {
	if log == nil {
		log = logging.Nop()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	return &Detector{
		log:           log,
		threshold:     threshold,
		checkInterval: checkInterval,
		raw:           newRuntimeTimers(),
		now:           time.Now,
		records:       make(map[TimerID]TimerRecord),
	}
}

// StartMonitoring installs the instrumented Timers and starts the periodic
// leak check. Calling it again while monitoring returns the same instance.
func (d *Detector) StartMonitoring() Timers {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		return d.active
	}
	d.active = &instrumented{d: d}
	// scheduled on the raw timers so the check never reports itself
	d.checkID = d.raw.SetInterval(d.checkInterval, func() { d.CheckLeaks(d.now()) })
	d.log.Info("timers", "timer leak monitoring started", map[string]any{
		"threshold":      d.threshold.String(),
		"check_interval": d.checkInterval.String(),
	})
	return d.active
}

// StopMonitoring restores the raw Timers and discards all records. Safe to
// call any number of times.
func (d *Detector) StopMonitoring() {
	d.mu.Lock()
	if d.active == nil {
		d.mu.Unlock()
		return
	}
	d.active = nil
	checkID := d.checkID
	d.checkID = 0
	d.records = make(map[TimerID]TimerRecord)
	d.mu.Unlock()

	d.raw.ClearInterval(checkID)
	d.log.Info("timers", "timer leak monitoring stopped", nil)
}

func (d *Detector) IsMonitoring() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil
}

// Timers returns the instrumented Timers while monitoring, the raw ones otherwise.
func (d *Detector) Timers() Timers {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		return d.active
	}
	return d.raw
}

func (d *Detector) ActiveTimersCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// ActiveTimers returns a copy of the outstanding records, oldest first.
func (d *Detector) ActiveTimers() []TimerRecord {
	d.mu.Lock()
	out := make([]TimerRecord, 0, len(d.records))
	for _, r := range d.records {
		out = append(out, r)
	}
	d.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CheckLeaks warns about every record older than the threshold at now and
// returns them. It never fails.
func (d *Detector) CheckLeaks(now time.Time) []TimerRecord {
	var leaks []TimerRecord
	for _, r := range d.ActiveTimers() {
		if r.Age(now) > d.threshold {
			leaks = append(leaks, r)
		}
	}
	for _, r := range leaks {
		d.log.Warn("timers", "possible timer leak", map[string]any{
			"id":    uint64(r.ID),
			"type":  string(r.Type),
			"age":   r.Age(now).Round(time.Second).String(),
			"stack": strings.Join(r.Stack, "\n"),
		})
	}
	return leaks
}

func (d *Detector) record(owner *instrumented, id TimerID, typ TimerType, stack []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != owner {
		return
	}
	d.records[id] = TimerRecord{ID: id, Type: typ, CreatedAt: d.now(), Stack: stack}
}

func (d *Detector) forget(id TimerID) {
	d.mu.Lock()
	delete(d.records, id)
	d.mu.Unlock()
}

// instrumented forwards to the raw timers and keeps the detector's records
// in step with them.
type instrumented struct {
	d *Detector
}

func (t *instrumented) SetTimeout(dur time.Duration, fn func()) TimerID {
	stack := callerStack()
	ready := make(chan struct{})
	var id TimerID
	id = t.d.raw.SetTimeout(dur, func() {
		<-ready
		t.d.forget(id)
		fn()
	})
	t.d.record(t, id, TypeTimeout, stack)
	close(ready)
	return id
}

func (t *instrumented) SetInterval(dur time.Duration, fn func()) TimerID {
	stack := callerStack()
	id := t.d.raw.SetInterval(dur, fn)
	t.d.record(t, id, TypeInterval, stack)
	return id
}

func (t *instrumented) ClearTimeout(id TimerID) {
	t.d.forget(id)
	t.d.raw.ClearTimeout(id)
}

func (t *instrumented) ClearInterval(id TimerID) {
	t.d.forget(id)
	t.d.raw.ClearInterval(id)
}

// callerStack captures the stack of whoever scheduled the timer.
func callerStack() []string {
	e := oerrors.Trace("timer scheduled")
	stack := trimOwnFrames(e.Stack())
	e.Free()
	return stack
}

// trimOwnFrames drops the leading frames of the error library and of the
// instrumented wrapper so the first frame is the scheduling caller.
func trimOwnFrames(stack []string) []string {
	for i, frame := range stack {
		if !isOwnFrame(frame) {
			return stack[i:]
		}
	}
	return nil
}

func isOwnFrame(frame string) bool {
	fn, _, _ := strings.Cut(frame, "\n")
	return strings.Contains(fn, "olekukonko/errors") ||
		strings.HasSuffix(fn, "timerleak.callerStack") ||
		strings.Contains(fn, "timerleak.(*instrumented)")
}
