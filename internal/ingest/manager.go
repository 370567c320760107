package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nickz-gmm/diy-delta/internal/lapstore"
	"github.com/nickz-gmm/diy-delta/internal/monitoring"
	"github.com/nickz-gmm/diy-delta/internal/telemetry"
)

// Source is a live telemetry connector. Run blocks until the context is
// cancelled or the transport fails, emitting decoded samples on the channel.
// Sources form a closed set of variants (f1, gt7, lmu); new simulators are
// added as new variants, never by subclassing anything.
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- Sample) error
}

// Archive is the optional persistence hook invoked for every committed lap.
type Archive interface {
	SaveLap(lap *telemetry.Lap) error
}

// Status describes one connector slot.
type Status struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

// sampleBuffer is the channel depth between a connector and its lap builder.
// Deep enough to ride out a commit without backpressuring the socket reader.
const sampleBuffer = 256

type runningSource struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (rs *runningSource) setErr(err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.err == nil {
		rs.err = err
	}
}

func (rs *runningSource) getErr() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.err
}

// Manager owns the running connectors. Each runs as an independent pair of
// goroutines (transport reader, lap builder) joined by an ownership-passing
// channel; a failure in one connector never touches the others or the store.
type Manager struct {
	store   *lapstore.Store
	archive Archive
	builder BuilderConfig

	mu      sync.Mutex
	sources map[string]*runningSource
}

// NewManager creates a manager committing laps into store. archive may be nil.
func NewManager(store *lapstore.Store, archive Archive, builder BuilderConfig) *Manager {
	return &Manager{
		store:   store,
		archive: archive,
		builder: builder,
		sources: make(map[string]*runningSource),
	}
}

// Start launches a source. A source name can run at most once concurrently.
func (m *Manager) Start(src Source, meta telemetry.LapMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := src.Name()
	if rs, exists := m.sources[name]; exists {
		select {
		case <-rs.done:
			// previous run finished; slot is free again
		default:
			return &telemetry.ValidationError{Reason: fmt.Sprintf("source %s already running", name)}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs := &runningSource{name: name, cancel: cancel, done: make(chan struct{})}
	m.sources[name] = rs

	samples := make(chan Sample, sampleBuffer)
	builder := NewLapBuilder(meta, m.builder, func(lap *telemetry.Lap) {
		m.commitLap(name, lap)
	})

	// Transport reader. A panic in a connector's decode path must not take
	// down the process; it stops this source only.
	go func() {
		defer close(samples)
		defer func() {
			if r := recover(); r != nil {
				rs.setErr(fmt.Errorf("source panic: %v", r))
				monitoring.Logf("%s: recovered panic: %v", name, r)
			}
		}()
		if err := src.Run(ctx, samples); err != nil && ctx.Err() == nil {
			rs.setErr(err)
			monitoring.Logf("%s: source stopped: %v", name, err)
		}
	}()

	// Lap builder. Owns the in-progress buffer exclusively; committed laps
	// leave via commitLap. The in-progress remainder is discarded on stop.
	go func() {
		defer close(rs.done)
		for s := range samples {
			builder.Feed(s)
		}
		if n := builder.InProgressPoints(); n > 0 {
			monitoring.Logf("%s: discarding incomplete lap (%d points)", name, n)
		}
	}()

	monitoring.Logf("%s: source started", name)
	return nil
}

func (m *Manager) commitLap(source string, lap *telemetry.Lap) {
	if err := m.store.Insert(lap); err != nil {
		monitoring.Logf("%s: dropping lap %d: %v", source, lap.LapNumber, err)
		return
	}
	monitoring.Logf("%s: committed lap %d (%d points, %d ms)", source, lap.LapNumber, len(lap.Points), lap.TimeMs)
	if m.archive != nil {
		if err := m.archive.SaveLap(lap); err != nil {
			monitoring.Logf("%s: archive lap %d: %v", source, lap.LapNumber, err)
		}
	}
}

// Stop cancels one source and waits for its builder to drain.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	rs, ok := m.sources[name]
	m.mu.Unlock()
	if !ok {
		return &telemetry.ValidationError{Reason: fmt.Sprintf("source %s not running", name)}
	}
	rs.cancel()
	<-rs.done

	m.mu.Lock()
	delete(m.sources, name)
	m.mu.Unlock()
	monitoring.Logf("%s: source stopped", name)
	return nil
}

// StopAll cancels every running source and waits for them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	all := make([]*runningSource, 0, len(m.sources))
	for _, rs := range m.sources {
		all = append(all, rs)
	}
	m.sources = make(map[string]*runningSource)
	m.mu.Unlock()

	for _, rs := range all {
		rs.cancel()
	}
	for _, rs := range all {
		<-rs.done
	}
}

// Statuses reports every known source slot, sorted by name.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.sources))
	for name, rs := range m.sources {
		st := Status{Name: name}
		select {
		case <-rs.done:
			st.Running = false
		default:
			st.Running = true
		}
		if err := rs.getErr(); err != nil {
			st.Error = err.Error()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
