package network

import (
	"container/heap"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/cuemby/warp/pkg/log"
	"github.com/cuemby/warp/pkg/metrics"
	"github.com/cuemby/warp/pkg/simulation"
)

// TransferID identifies a data transfer within one network model.
type TransferID int

// Transfer describes one data transfer between two topology nodes. The
// requester component receives a DataTransferCompleted event when the
// transfer finishes.
type Transfer struct {
	ID        TransferID             `json:"id"`
	Src       NodeID                 `json:"src"`
	Dst       NodeID                 `json:"dst"`
	Size      float64                `json:"size"`
	Requester simulation.ComponentID `json:"requester"`
}

// DataTransferCompleted is emitted to the transfer's requester when the
// last byte has been delivered.
type DataTransferCompleted struct {
	Transfer Transfer `json:"transfer"`
}

// linkUsage tracks a link's load during throughput computation. Entries are
// compared by the fair share each transfer on the link would receive.
type linkUsage struct {
	linkID         LinkID
	transfersCount int
	leftBandwidth  float64
	sharing        SharingPolicy
}

func (l linkUsage) fairShare() float64 {
	if l.sharing == SharingNonShared {
		return l.leftBandwidth
	}
	return l.leftBandwidth / float64(l.transfersCount)
}

// linkHeap is a min-heap of linkUsage entries by fair share. Stale entries
// are left in the heap and filtered lazily against linkData on pop.
type linkHeap []linkUsage

func (h linkHeap) Len() int { return len(h) }

func (h linkHeap) Less(i, j int) bool {
	si, sj := h[i].fairShare(), h[j].fairShare()
	if si != sj {
		return si < sj
	}
	return h[i].linkID < h[j].linkID
}

func (h linkHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *linkHeap) Push(x any) { *h = append(*h, x.(linkUsage)) }

func (h *linkHeap) Pop() any {
	old := *h
	n := len(old)
	l := old[n-1]
	*h = old[:n-1]
	return l
}

type transferInfo struct {
	transfer   Transfer
	path       []LinkID
	sizeLeft   float64
	throughput float64
	lastUpdate float64
}

func (ti *transferInfo) expectedFinish() float64 {
	if ti.throughput == 0 {
		return math.Inf(1)
	}
	return ti.lastUpdate + ti.sizeLeft/ti.throughput
}

// Model is the topology-aware network model. It resolves routes over the
// topology graph and, whenever the set of concurrent transfers changes,
// recomputes per-transfer throughput under max-min fairness and reschedules
// the next completion event.
//
// The model registers itself as the handler of its own component; transfer
// completions arrive as self-events.
type Model struct {
	ctx     *simulation.Context
	topo    *Topology
	routing RoutingAlgorithm

	transfers               map[TransferID]*transferInfo
	transfersThroughLink    [][]TransferID
	tmpTransfersThroughLink [][]TransferID
	linkData                []*linkUsage

	nextEventID     simulation.EventID
	hasNextEvent    bool
	nextTransferID  TransferID
	hasNextTransfer bool

	fullMeshOptimization bool
	transferSeq          TransferID
	logger               zerolog.Logger
}

// NewModel creates a network model over the given topology, registered in
// the simulation under the given component name.
func NewModel(sim *simulation.Simulation, name string, topo *Topology) *Model {
	m := &Model{
		ctx:       sim.CreateContext(name),
		topo:      topo,
		routing:   NewFloydWarshall(),
		transfers: make(map[TransferID]*transferInfo),
		logger:    log.WithComponent(name),
	}
	sim.AddHandler(name, m)
	m.routing.Init(topo)
	return m
}

// WithRouting replaces the routing algorithm. Must be called before any
// transfer is started.
func (m *Model) WithRouting(routing RoutingAlgorithm) *Model {
	m.routing = routing
	m.routing.Init(m.topo)
	return m
}

// WithFullMeshOptimization enables incremental recomputation: when a
// transfer is added or removed, only transfers reachable through shared
// links (bounded by the throughput cutoff) are re-evaluated. Greatly
// improves simulation times for many non-intersecting transfers.
func (m *Model) WithFullMeshOptimization(enabled bool) *Model {
	m.fullMeshOptimization = enabled
	return m
}

// Topology returns the model's topology. After mutating it, call
// OnTopologyChange.
func (m *Model) Topology() *Topology {
	return m.topo
}

// OnTopologyChange re-initializes routing and recomputes all transfer
// throughputs against the mutated topology.
func (m *Model) OnTopologyChange() {
	m.routing.Init(m.topo)
	m.validateArrayLengths()
	m.calcAll()
	m.updateNextEvent()
}

// Bandwidth returns the bottleneck bandwidth between two nodes, or the
// node's local bandwidth when src == dst. Panics if no path exists.
func (m *Model) Bandwidth(src, dst NodeID) float64 {
	if src == dst {
		return m.topo.Node(src).LocalBandwidth
	}
	return m.topo.PathBandwidth(m.mustPath(src, dst))
}

// Latency returns the summed latency between two nodes, or the node's
// local latency when src == dst. Panics if no path exists.
func (m *Model) Latency(src, dst NodeID) float64 {
	if src == dst {
		return m.topo.Node(src).LocalLatency
	}
	return m.topo.PathLatency(m.mustPath(src, dst))
}

func (m *Model) mustPath(src, dst NodeID) []LinkID {
	path, ok := m.routing.Path(src, dst)
	if !ok {
		panic(fmt.Sprintf("network: no path from %s to %s",
			m.topo.Node(src).Name, m.topo.Node(dst).Name))
	}
	return path
}

// StartTransfer begins a transfer of size bytes from src to dst. The
// requester component receives a DataTransferCompleted event when it
// finishes. Panics if no path between the nodes exists.
func (m *Model) StartTransfer(src, dst NodeID, size float64, requester simulation.ComponentID) TransferID {
	if size < 0 || math.IsNaN(size) {
		panic(fmt.Sprintf("network: invalid transfer size %g", size))
	}
	m.validateArrayLengths()

	id := m.transferSeq
	m.transferSeq++
	transfer := Transfer{ID: id, Src: src, Dst: dst, Size: size, Requester: requester}

	m.logger.Debug().
		Float64("t", m.ctx.Time()).
		Int("transfer_id", int(id)).
		Str("src", m.topo.Node(src).Name).
		Str("dst", m.topo.Node(dst).Name).
		Float64("size", size).
		Msg("transfer started")

	// Intra-node transfers bypass the link model and use the node's local
	// bandwidth and latency.
	if src == dst {
		node := m.topo.Node(src)
		delay := node.LocalLatency
		if node.LocalBandwidth > 0 {
			delay += size / node.LocalBandwidth
		}
		m.ctx.Emit(DataTransferCompleted{Transfer: transfer}, requester, delay)
		metrics.TransfersCompleted.Inc()
		return id
	}

	path := m.mustPath(src, dst)
	if len(path) == 0 {
		panic(fmt.Sprintf("network: no path from %s to %s",
			m.topo.Node(src).Name, m.topo.Node(dst).Name))
	}

	// Zero-size transfers complete at the current time.
	if size == 0 {
		m.ctx.EmitNow(DataTransferCompleted{Transfer: transfer}, requester)
		metrics.TransfersCompleted.Inc()
		return id
	}

	for _, link := range path {
		m.transfersThroughLink[link] = append(m.transfersThroughLink[link], id)
	}
	m.transfers[id] = &transferInfo{
		transfer:   transfer,
		path:       path,
		sizeLeft:   size,
		lastUpdate: m.ctx.Time(),
	}
	metrics.TransfersActive.Set(float64(len(m.transfers)))

	if m.fullMeshOptimization {
		m.calc(m.affectedTransfers(id))
	} else {
		m.calcAll()
	}
	m.updateNextEvent()
	return id
}

// On dispatches the model's self-events.
func (m *Model) On(event simulation.Event) {
	switch event.Data.(type) {
	case DataTransferCompleted:
		m.onTransferCompletion()
	default:
		m.logger.Warn().
			Float64("t", event.Time).
			Str("type", simulation.TypeTag(event.Data)).
			Msg("unexpected event")
	}
}

// onTransferCompletion removes the finished transfer, notifies its
// requester, and recomputes throughput for the remaining transfers.
func (m *Model) onTransferCompletion() {
	m.validateArrayLengths()
	if !m.hasNextTransfer {
		panic("network: transfer completion without a scheduled transfer")
	}
	finished := m.nextTransferID

	affected := map[TransferID]bool{}
	if m.fullMeshOptimization {
		affected = m.affectedTransfers(finished)
		delete(affected, finished)
	}

	info := m.transfers[finished]
	delete(m.transfers, finished)
	for _, link := range info.path {
		m.transfersThroughLink[link] = removeTransfer(m.transfersThroughLink[link], finished)
	}
	m.hasNextEvent = false
	m.hasNextTransfer = false

	if m.fullMeshOptimization {
		m.calc(affected)
	} else {
		m.calcAll()
	}
	m.updateNextEvent()

	metrics.TransfersActive.Set(float64(len(m.transfers)))
	metrics.TransfersCompleted.Inc()
	m.logger.Debug().
		Float64("t", m.ctx.Time()).
		Int("transfer_id", int(finished)).
		Msg("transfer completed")

	m.ctx.EmitNow(DataTransferCompleted{Transfer: info.transfer}, info.transfer.Requester)
}

func removeTransfer(transfers []TransferID, id TransferID) []TransferID {
	for i, t := range transfers {
		if t == id {
			return append(transfers[:i], transfers[i+1:]...)
		}
	}
	return transfers
}

// affectedTransfers finds the smallest subset of transfers containing the
// updated transfer such that the link sets used inside and outside the
// subset don't intersect. Transfers whose throughput is below the updated
// transfer's cannot be affected and bound the traversal.
func (m *Model) affectedTransfers(updated TransferID) map[TransferID]bool {
	if len(m.transfers) == 0 {
		return map[TransferID]bool{}
	}
	limit := m.transfers[updated].throughput

	processedLinks := make(map[LinkID]bool)
	processed := map[TransferID]bool{updated: true}
	queue := []TransferID{updated}
	for len(queue) > 0 {
		transfer := queue[0]
		queue = queue[1:]
		for _, link := range m.transfers[transfer].path {
			if processedLinks[link] {
				continue
			}
			processedLinks[link] = true
			for _, t := range m.transfersThroughLink[link] {
				if m.transfers[t].throughput < limit {
					continue
				}
				if !processed[t] {
					processed[t] = true
					queue = append(queue, t)
				}
			}
		}
	}
	return processed
}

// updateNextEvent schedules the completion self-event for the transfer
// expected to finish first.
func (m *Model) updateNextEvent() {
	best := math.Inf(1)
	var bestID TransferID
	found := false
	for _, id := range m.sortedTransferIDs() {
		if finish := m.transfers[id].expectedFinish(); finish < best {
			best = finish
			bestID = id
			found = true
		}
	}
	if !found {
		return
	}
	m.nextTransferID = bestID
	m.hasNextTransfer = true
	delay := best - m.ctx.Time()
	if delay < 0 {
		delay = 0
	}
	m.nextEventID = m.ctx.EmitSelf(DataTransferCompleted{Transfer: m.transfers[bestID].transfer}, delay)
	m.hasNextEvent = true
}

func (m *Model) sortedTransferIDs() []TransferID {
	ids := make([]TransferID, 0, len(m.transfers))
	for id := range m.transfers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// advance updates a transfer's remaining size for the time elapsed at its
// previous throughput.
func (ti *transferInfo) advance(now float64) {
	ti.sizeLeft -= ti.throughput * (now - ti.lastUpdate)
	if ti.sizeLeft < 0 {
		ti.sizeLeft = 0
	}
	ti.lastUpdate = now
}

// calc recomputes throughput for the transfers in affected only; all other
// transfers keep their current assignment and are accounted as fixed load
// on the links they traverse.
func (m *Model) calc(affected map[TransferID]bool) {
	if len(affected) == 0 {
		return
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ThroughputRecalcDuration)

	now := m.ctx.Time()
	for id := range affected {
		m.transfers[id].advance(now)
	}
	if m.hasNextEvent {
		m.ctx.CancelEvent(m.nextEventID)
		m.hasNextEvent = false
	}

	affectedLinks := make(map[LinkID]bool)
	for id := range affected {
		for _, link := range m.transfers[id].path {
			affectedLinks[link] = true
		}
	}

	m.resetLinkData()
	for link := range affectedLinks {
		var current []TransferID
		for _, t := range m.transfersThroughLink[link] {
			if affected[t] {
				current = append(current, t)
			}
		}
		if len(current) == 0 {
			continue
		}
		m.tmpTransfersThroughLink[link] = current
		m.linkData[link] = &linkUsage{
			linkID:         link,
			transfersCount: len(current),
			leftBandwidth:  m.topo.Link(link).Bandwidth,
			sharing:        m.topo.Link(link).Sharing,
		}
	}

	// Unaffected transfers consume a fixed share of their links.
	for _, id := range m.sortedTransferIDs() {
		if affected[id] {
			continue
		}
		for _, link := range m.transfers[id].path {
			if m.linkData[link] != nil {
				m.linkData[link].leftBandwidth -= m.transfers[id].throughput
			}
		}
	}

	usage := linkHeap{}
	for link := range affectedLinks {
		if m.linkData[link] != nil {
			heap.Push(&usage, *m.linkData[link])
		}
	}

	m.assignLoop(&usage, m.tmpTransfersThroughLink, true)
}

// calcAll recomputes throughput for every transfer. Equivalent to calc with
// the full transfer set, but skips the affected-set bookkeeping.
func (m *Model) calcAll() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ThroughputRecalcDuration)

	now := m.ctx.Time()
	for _, id := range m.sortedTransferIDs() {
		m.transfers[id].advance(now)
	}
	if m.hasNextEvent {
		m.ctx.CancelEvent(m.nextEventID)
		m.hasNextEvent = false
	}

	m.resetLinkData()
	usage := linkHeap{}
	for linkID, transfers := range m.transfersThroughLink {
		if len(transfers) == 0 {
			continue
		}
		link := LinkID(linkID)
		lu := &linkUsage{
			linkID:         link,
			transfersCount: len(transfers),
			leftBandwidth:  m.topo.Link(link).Bandwidth,
			sharing:        m.topo.Link(link).Sharing,
		}
		m.linkData[link] = lu
		heap.Push(&usage, *lu)
	}

	m.assignLoop(&usage, m.transfersThroughLink, false)
}

// assignLoop is the max-min fair assignment: repeatedly take the link with
// the smallest fair share, assign that share to its unassigned transfers,
// and discount those transfers from every other link they cross. Stale heap
// entries are resolved lazily against linkData. The assigned bandwidth
// sequence is monotonically non-decreasing; regression beyond float drift
// is a bug.
func (m *Model) assignLoop(usage *linkHeap, throughLink [][]TransferID, clearProcessed bool) {
	assigned := make(map[TransferID]bool)
	lastBandwidth := 0.0
	for usage.Len() > 0 {
		minLink := heap.Pop(usage).(linkUsage)
		cur := m.linkData[minLink.linkID]
		if cur == nil {
			// delayed removal
			continue
		}
		if *cur != minLink {
			// delayed update
			heap.Push(usage, *cur)
			continue
		}

		bandwidth := minLink.fairShare()
		if bandwidth < lastBandwidth-1e-12 {
			panic(fmt.Sprintf("network: fair share regressed: %.20f < %.20f", bandwidth, lastBandwidth))
		}
		if bandwidth < lastBandwidth {
			bandwidth = lastBandwidth
		}
		lastBandwidth = bandwidth

		for _, tid := range throughLink[minLink.linkID] {
			if assigned[tid] {
				continue
			}
			assigned[tid] = true
			m.transfers[tid].throughput = bandwidth
			for _, link := range m.transfers[tid].path {
				if link == minLink.linkID {
					continue
				}
				lu := m.linkData[link]
				if lu == nil {
					continue
				}
				if lu.transfersCount == 1 {
					m.linkData[link] = nil
					continue
				}
				lu.transfersCount--
				if lu.sharing == SharingShared {
					lu.leftBandwidth -= bandwidth
				}
			}
		}
		if clearProcessed {
			throughLink[minLink.linkID] = nil
		}
	}
}

func (m *Model) resetLinkData() {
	for i := range m.linkData {
		m.linkData[i] = nil
	}
}

func (m *Model) validateArrayLengths() {
	for len(m.linkData) < m.topo.LinkCount() {
		m.linkData = append(m.linkData, nil)
	}
	for len(m.transfersThroughLink) < m.topo.LinkCount() {
		m.transfersThroughLink = append(m.transfersThroughLink, nil)
	}
	for len(m.tmpTransfersThroughLink) < m.topo.LinkCount() {
		m.tmpTransfersThroughLink = append(m.tmpTransfersThroughLink, nil)
	}
}
