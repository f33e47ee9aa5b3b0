// Package dispatcher implements fan-out of one logical request
// across the configured overlay layers, first-valid-wins collection,
// and the in-flight request table a layer-set change cancels
// atomically.
package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/session-network/snrr/internal/config"
	"github.com/session-network/snrr/internal/metrics"
	"github.com/session-network/snrr/internal/snrrerr"
	"github.com/session-network/snrr/internal/transport"
)

// Outcome classifies a single sub-request for the diagnostics ring.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeError
	OutcomeTimeout
	OutcomeIncomplete // cancelled because another layer already won
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeIncomplete:
		return "incomplete"
	default:
		return "error"
	}
}

// Stat is one ring-buffer entry, one per sub-request.
type Stat struct {
	Layer     string
	RequestID string
	StartNs   int64
	EndNs     int64
	Outcome   Outcome
}

const ringSize = 512

// Dispatcher fans a logical request out across whichever layers are
// currently selected and collects the first structurally valid
// response.
type Dispatcher struct {
	layers map[config.Layer]transport.Layer

	mu       sync.RWMutex
	selected config.LayerSet
	inflight map[string]context.CancelFunc

	ringMu sync.Mutex
	ring   []Stat
	ringAt int

	onLayerChange func(old, new config.LayerSet) error // teardown hook, e.g. stop lokinet context
}

// New builds a Dispatcher over the given layer implementations, starting
// with initial as the selected set.
func New(layers map[config.Layer]transport.Layer, initial config.LayerSet) *Dispatcher {
	return &Dispatcher{
		layers:   layers,
		selected: initial,
		inflight: make(map[string]context.CancelFunc),
		ring:     make([]Stat, ringSize),
	}
}

// OnLayerChange registers a hook invoked synchronously during SetLayers
// after in-flight requests are cancelled but before the new set takes
// effect — used to stop the Lokinet context.
func (d *Dispatcher) OnLayerChange(fn func(old, new config.LayerSet) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onLayerChange = fn
}

// SetLayers cancels every in-flight request, runs the teardown hook,
// then switches the active layer set. The cancellation and teardown
// happen synchronously before new layers are enabled.
func (d *Dispatcher) SetLayers(newSet config.LayerSet) error {
	d.mu.Lock()
	old := d.selected
	hook := d.onLayerChange
	d.mu.Unlock()

	d.cancelAll()

	if hook != nil {
		if err := hook(old, newSet); err != nil {
			return err
		}
	}

	d.mu.Lock()
	d.selected = newSet
	d.mu.Unlock()
	return nil
}

// SetLayersMap installs the overlay implementations the dispatcher fans
// requests out across. It exists separately from New because the onion
// layer's GuardSource is normally the snode pool, which in turn needs a
// Dispatcher to query peers during refresh — construction wires the
// dispatcher first with no layers, builds the pool against it, then
// calls SetLayersMap once the onion/lokinet/direct layers exist.
func (d *Dispatcher) SetLayersMap(layers map[config.Layer]transport.Layer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.layers = layers
}

// Layers returns the currently selected layer set.
func (d *Dispatcher) Layers() config.LayerSet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selected
}

func (d *Dispatcher) cancelAll() {
	d.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(d.inflight))
	for id, cancel := range d.inflight {
		cancels = append(cancels, cancel)
		delete(d.inflight, id)
	}
	d.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

func (d *Dispatcher) register(id string, cancel context.CancelFunc) {
	d.mu.Lock()
	d.inflight[id] = cancel
	d.mu.Unlock()
}

func (d *Dispatcher) unregister(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

func (d *Dispatcher) record(s Stat) {
	d.ringMu.Lock()
	d.ring[d.ringAt%ringSize] = s
	d.ringAt++
	d.ringMu.Unlock()

	seconds := float64(s.EndNs-s.StartNs) / float64(time.Second)
	metrics.Default.RecordDispatch(s.Layer, s.Outcome.String(), seconds)
}

// RecentStats returns a snapshot of the diagnostics ring, most recent
// last.
func (d *Dispatcher) RecentStats() []Stat {
	d.ringMu.Lock()
	defer d.ringMu.Unlock()
	n := d.ringAt
	if n > ringSize {
		n = ringSize
	}
	out := make([]Stat, n)
	for i := 0; i < n; i++ {
		out[i] = d.ring[(d.ringAt-n+i)%ringSize]
	}
	return out
}

type subResult struct {
	layerName string
	info      transport.Info
	body      []byte
	err       error
	hasT      bool
}

// Dispatch issues the request over every currently selected layer and
// returns the first structurally valid (numeric "t" field) response.
// If no response carries "t", it returns the first raw success. If all
// layers fail, it returns the first error encountered.
func (d *Dispatcher) Dispatch(ctx context.Context, method, endpoint string, headers map[string]string, body []byte, dest transport.Destination, timeout time.Duration) (transport.Info, []byte, error) {
	d.mu.RLock()
	selected := d.selected
	d.mu.RUnlock()

	active := d.activeLayers(selected)
	if len(active) == 0 {
		return transport.Info{}, nil, nil
	}
	if len(active) == 1 {
		return d.sendOne(ctx, active[0], method, endpoint, headers, body, dest, timeout)
	}

	callID := uuid.NewString()
	resultCh := make(chan subResult, len(active))
	subCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	var wg sync.WaitGroup
	for _, layer := range active {
		wg.Add(1)
		go func(layer transport.Layer) {
			defer wg.Done()
			reqCtx, cancel := context.WithCancel(subCtx)
			reqID := callID + ":" + layer.Name()
			d.register(reqID, cancel)
			defer d.unregister(reqID)

			start := time.Now()
			info, data, err := layer.Send(reqCtx, method, endpoint, headers, body, dest, timeout)
			end := time.Now()

			outcome := OutcomeSuccess
			if err != nil {
				outcome = classify(err)
			}
			d.record(Stat{Layer: layer.Name(), RequestID: reqID, StartNs: start.UnixNano(), EndNs: end.UnixNano(), Outcome: outcome})

			resultCh <- subResult{layerName: layer.Name(), info: info, body: data, err: err, hasT: err == nil && hasNumericT(data)}
		}(layer)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var firstSuccess *subResult
	var firstError *subResult
	for i := 0; i < len(active); i++ {
		res, ok := <-resultCh
		if !ok {
			break
		}
		if res.err == nil && res.hasT {
			cancelAll()
			return res.info, res.body, nil
		}
		if res.err == nil && firstSuccess == nil {
			r := res
			firstSuccess = &r
		}
		if res.err != nil && firstError == nil {
			r := res
			firstError = &r
		}
	}

	if firstSuccess != nil {
		return firstSuccess.info, firstSuccess.body, nil
	}
	if firstError != nil {
		return firstError.info, firstError.body, firstError.err
	}
	return transport.Info{}, nil, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, layer transport.Layer, method, endpoint string, headers map[string]string, body []byte, dest transport.Destination, timeout time.Duration) (transport.Info, []byte, error) {
	reqID := uuid.NewString()
	reqCtx, cancel := context.WithCancel(ctx)
	d.register(reqID, cancel)
	defer func() {
		cancel()
		d.unregister(reqID)
	}()

	start := time.Now()
	info, data, err := layer.Send(reqCtx, method, endpoint, headers, body, dest, timeout)
	end := time.Now()

	outcome := OutcomeSuccess
	if err != nil {
		outcome = classify(err)
	}
	d.record(Stat{Layer: layer.Name(), RequestID: reqID, StartNs: start.UnixNano(), EndNs: end.UnixNano(), Outcome: outcome})
	return info, data, err
}

func (d *Dispatcher) activeLayers(selected config.LayerSet) []transport.Layer {
	var out []transport.Layer
	order := []config.Layer{config.LayerOnion, config.LayerLokinet, config.LayerNativeLokinet, config.LayerDirect}
	for _, l := range order {
		if selected.Has(l) {
			if impl, ok := d.layers[l]; ok {
				out = append(out, impl)
			}
		}
	}
	return out
}

func hasNumericT(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	var probe struct {
		T *float64 `json:"t"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.T != nil
}

func classify(err error) Outcome {
	if snrrerr.Is(err, snrrerr.KindTimeout) {
		return OutcomeTimeout
	}
	if snrrerr.Is(err, snrrerr.KindCancelled) {
		return OutcomeIncomplete
	}
	return OutcomeError
}
