package stages

import (
	"sync"

	"git.home.luguber.info/inful/tilepipe/internal/config"
)

// Resolution carries column choices resolved at runtime when the
// configuration leaves them unset. The first worker to resolve a column wins
// and every later stage reuses its choice, so concurrent tiles agree on the
// table schema.
type Resolution struct {
	mu           sync.Mutex
	streamID     string
	simulationID string
	flowColumns  []string
}

// NewResolution seeds the resolution with any configured columns.
func NewResolution(settings *config.Settings) *Resolution {
	return &Resolution{
		streamID:     settings.StreamIDColumn,
		simulationID: settings.SimulationIDColumn,
		flowColumns:  settings.SimulationFlowColumns,
	}
}

// StreamID returns the stream identifier column, resolving it with fallback
// on first use.
func (r *Resolution) StreamID(fallback func() string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.streamID == "" && fallback != nil {
		r.streamID = fallback()
	}
	return r.streamID
}

// SimulationID returns the simulation table identifier column, resolving it
// with fallback on first use.
func (r *Resolution) SimulationID(fallback func() string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.simulationID == "" && fallback != nil {
		r.simulationID = fallback()
	}
	return r.simulationID
}

// OverrideSimulationID replaces the resolved simulation column. Used when a
// configured name turns out to be absent from the table.
func (r *Resolution) OverrideSimulationID(column string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.simulationID = column
}

// FlowColumns returns the resolved flow columns.
func (r *Resolution) FlowColumns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flowColumns
}

// SetFlowColumns records the flow columns the tabular join settled on when the
// configuration left them unset.
func (r *Resolution) SetFlowColumns(columns []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.flowColumns) == 0 {
		r.flowColumns = columns
	}
}
