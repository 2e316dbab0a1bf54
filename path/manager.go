package path

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/opd-ai/onionrelay/instrument"
	"github.com/opd-ai/onionrelay/snode"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type entry struct {
	// path is nil while the entry is Building or Rebuilding.
	path  *Path
	state State
}

// Manager maintains the set of onion paths over a node pool.
type Manager struct {
	pool   *snode.Pool
	config Config

	mu      sync.Mutex
	guards  []snode.Node
	entries map[uuid.UUID]*entry
	closed  bool

	builds singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager over pool. If config.Store is set, the pool
// and the pinned guards are restored from it.
func NewManager(pool *snode.Pool, config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	cfg.fixup()

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		pool:    pool,
		config:  cfg,
		entries: make(map[uuid.UUID]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
	m.restore()
	return m
}

func (m *Manager) restore() {
	store := m.config.Store
	if store == nil {
		return
	}

	nodes, err := store.LoadNodes()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "restore",
			"error":    err.Error(),
		}).Warn("Could not load cached node pool")
	}
	added := m.pool.Seed(nodes)

	guards, err := store.LoadGuards()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "restore",
			"error":    err.Error(),
		}).Warn("Could not load pinned guards")
	}
	for _, g := range guards {
		if g.Validate() == nil && len(m.guards) < m.config.GuardCount {
			m.guards = append(m.guards, g)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "restore",
		"nodes":    added,
		"guards":   len(m.guards),
	}).Info("Restored path state from store")
}

// GetPath returns a random Ready path that contains none of the excluded
// node IDs, building paths first if there is none.
func (m *Manager) GetPath(ctx context.Context, exclude ...string) (*Path, error) {
	if p, err := m.pick(exclude); p != nil || err != nil {
		return p, err
	}

	ch := m.builds.DoChan(buildKey(exclude), func() (any, error) {
		return nil, m.fill(exclude)
	})

	select {
	case res := <-ch:
		p, err := m.pick(exclude)
		if p != nil || err != nil {
			return p, err
		}
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoPath, res.Err)
		}
		return nil, ErrNoPath
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func buildKey(exclude []string) string {
	if len(exclude) == 0 {
		return "build"
	}
	sorted := append([]string(nil), exclude...)
	sort.Strings(sorted)
	return "build:" + strings.Join(sorted, ",")
}

func (m *Manager) pick(exclude []string) (*Path, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	var usable []*Path
	for _, e := range m.entries {
		if e.state != Ready || m.expiredLocked(e.path) || containsAny(e.path, exclude) {
			continue
		}
		usable = append(usable, e.path)
	}
	if len(usable) == 0 {
		return nil, nil
	}
	return usable[rand.IntN(len(usable))], nil
}

// fill tops the manager up to PathCount paths and makes sure at least one
// Ready path avoids exclude. It runs under the manager's context so a
// caller giving up does not abort a build other callers wait on.
func (m *Manager) fill(exclude []string) error {
	m.retireExpired()

	need := m.missing()
	if need == 0 {
		need = 1
	}

	var firstErr error
	for i := 0; i < need; i++ {
		if _, err := m.buildOne(m.ctx, Building, exclude); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if m.ctx.Err() != nil {
				break
			}
		}
	}

	if p, _ := m.pick(exclude); p != nil {
		return nil
	}
	if firstErr == nil {
		firstErr = ErrNoPath
	}
	return firstErr
}

// buildOne registers a placeholder in state, builds a path for it and
// publishes it as Ready. On failure the placeholder is removed, so a
// cancelled build never leaves anything behind.
func (m *Manager) buildOne(ctx context.Context, state State, exclude []string) (*Path, error) {
	id := uuid.New()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.entries[id] = &entry{state: state}
	m.mu.Unlock()

	p, err := m.construct(ctx, id, exclude)
	if err != nil {
		m.discard(id, err)
		return nil, err
	}
	return p, nil
}

func (m *Manager) discard(id uuid.UUID, err error) {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()

	instrument.PathBuildFailed()
	logrus.WithFields(logrus.Fields{
		"function": "discard",
		"path":     id.String()[:8],
		"error":    err.Error(),
	}).Warn("Path build failed")
}

// construct selects nodes for the placeholder id and publishes the path.
func (m *Manager) construct(ctx context.Context, id uuid.UUID, exclude []string) (*Path, error) {
	if err := m.ensurePool(ctx); err != nil {
		return nil, err
	}
	guards, err := m.ensureGuards(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	e, ok := m.entries[id]
	if !ok || m.closed {
		return nil, ErrClosed
	}

	p, err := m.selectLocked(id, guards, exclude)
	if err != nil {
		return nil, err
	}
	e.path = p
	e.state = Ready

	instrument.PathBuilt()
	instrument.ReadyPaths(m.readyLocked())
	logrus.WithFields(logrus.Fields{
		"function": "construct",
		"path":     p.String(),
	}).Info("Path built")
	return p, nil
}

func (m *Manager) ensurePool(ctx context.Context) error {
	before := m.pool.RefreshedAt()
	if err := m.pool.EnsureMinimum(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.pool.Len() < m.config.PathLength {
			return fmt.Errorf("%w: %w", ErrInsufficientNodes, err)
		}
		logrus.WithFields(logrus.Fields{
			"function": "ensurePool",
			"nodes":    m.pool.Len(),
			"error":    err.Error(),
		}).Warn("Pool refresh failed, continuing with known nodes")
	}
	if !m.pool.RefreshedAt().Equal(before) {
		m.saveNodes()
	}
	instrument.PoolSize(m.pool.Len())
	return nil
}

// ensureGuards returns the pinned guards, replacing any that left the pool.
// New candidates are probed outside the lock when a Prober is configured.
func (m *Manager) ensureGuards(ctx context.Context) ([]snode.Node, error) {
	m.mu.Lock()
	current := make([]snode.Node, 0, m.config.GuardCount)
	for _, g := range m.guards {
		if m.pool.Contains(g.ID()) {
			current = append(current, g)
		}
	}
	m.mu.Unlock()

	if len(current) >= m.config.GuardCount {
		return current, nil
	}

	tried := make(map[string]bool)
	for _, g := range current {
		tried[g.ID()] = true
	}
	for len(current) < m.config.GuardCount {
		candidates := m.pool.Random(m.config.GuardCount-len(current), tried)
		if len(candidates) == 0 {
			break
		}
		for _, c := range candidates {
			tried[c.ID()] = true
			if m.config.Prober != nil {
				if err := m.config.Prober.Probe(ctx, c); err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					logrus.WithFields(logrus.Fields{
						"function": "ensureGuards",
						"node":     c.String(),
						"error":    err.Error(),
					}).Warn("Guard candidate failed probe")
					m.pool.RecordFailure(c.ID())
					continue
				}
			}
			current = append(current, c)
		}
	}

	if len(current) == 0 {
		return nil, fmt.Errorf("%w: no usable guard", ErrInsufficientNodes)
	}

	m.mu.Lock()
	m.guards = current
	m.mu.Unlock()
	m.saveGuards(current)

	logrus.WithFields(logrus.Fields{
		"function": "ensureGuards",
		"guards":   len(current),
	}).Info("Guard nodes pinned")
	return current, nil
}

// selectLocked picks the least used guard and PathLength-1 relays. Relays
// avoid guards and nodes of other paths when the pool allows it; they never
// repeat within the path.
func (m *Manager) selectLocked(id uuid.UUID, guards []snode.Node, exclude []string) (*Path, error) {
	excluded := make(map[string]bool, len(exclude))
	for _, x := range exclude {
		excluded[x] = true
	}

	usage := make(map[string]int)
	inUse := make(map[string]bool)
	for _, e := range m.entries {
		if e.path == nil {
			continue
		}
		usage[e.path.Guard().ID()]++
		for _, n := range e.path.Nodes {
			inUse[n.ID()] = true
		}
	}

	ordered := append([]snode.Node(nil), guards...)
	rand.Shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })
	sort.SliceStable(ordered, func(i, j int) bool {
		return usage[ordered[i].ID()] < usage[ordered[j].ID()]
	})

	var guard *snode.Node
	for i := range ordered {
		if !excluded[ordered[i].ID()] {
			guard = &ordered[i]
			break
		}
	}

	need := m.config.PathLength - 1
	strict := make(map[string]bool, len(excluded)+len(guards)+len(inUse))
	for k := range excluded {
		strict[k] = true
	}
	for _, g := range guards {
		strict[g.ID()] = true
	}
	for k := range inUse {
		strict[k] = true
	}

	// Every pinned guard is excluded, e.g. the destination is the only
	// guard. The path gets a temporary first hop that is not pinned.
	if guard == nil {
		temp := m.pool.Random(1, strict)
		if len(temp) == 0 {
			fallback := make(map[string]bool, len(excluded)+len(guards))
			for k := range excluded {
				fallback[k] = true
			}
			for _, g := range guards {
				fallback[g.ID()] = true
			}
			temp = m.pool.Random(1, fallback)
		}
		if len(temp) == 0 {
			return nil, fmt.Errorf("%w: every guard is excluded", ErrInsufficientNodes)
		}
		guard = &temp[0]
		strict[guard.ID()] = true

		logrus.WithFields(logrus.Fields{
			"function": "selectLocked",
			"guard":    guard.String(),
		}).Debug("Pinned guards excluded, using temporary guard")
	}

	hops := m.pool.Random(need, strict)
	if len(hops) < need {
		relaxed := make(map[string]bool, len(excluded)+1)
		for k := range excluded {
			relaxed[k] = true
		}
		relaxed[guard.ID()] = true
		hops = m.pool.Random(need, relaxed)
	}
	if len(hops) < need {
		return nil, fmt.Errorf("%w: need %d relays besides the guard, found %d", ErrInsufficientNodes, need, len(hops))
	}

	nodes := make([]snode.Node, 0, m.config.PathLength)
	nodes = append(nodes, *guard)
	nodes = append(nodes, hops...)
	return &Path{ID: id, Nodes: nodes, CreatedAt: m.config.TimeProvider.Now()}, nil
}

// ReportFailure records that a request over p failed. The path is evicted
// and, unless enough paths remain, a replacement is built in the
// background. culprit is the ID of the node at fault, if known. Reports
// for paths that are already gone are ignored.
func (m *Manager) ReportFailure(p *Path, kind FailureKind, culprit string) {
	if p == nil {
		return
	}

	m.mu.Lock()
	e, ok := m.entries[p.ID]
	if !ok || e.state != Ready {
		m.mu.Unlock()
		return
	}
	e.state = Degraded

	switch kind {
	case FailureNodeMissing:
		if culprit != "" {
			m.pool.Remove(culprit)
		}
	case FailureRelay, FailureAuthentication:
		if culprit != "" {
			m.pool.RecordFailure(culprit)
		}
	}
	logrus.WithFields(logrus.Fields{
		"function": "ReportFailure",
		"path":     p.String(),
		"kind":     kind.String(),
	}).Warn("Path degraded, evicting")
	delete(m.entries, p.ID)

	instrument.PathEvicted(kind.String())
	instrument.ReadyPaths(m.readyLocked())

	var replacement uuid.UUID
	rebuild := !m.closed && m.activeLocked() < m.config.PathCount
	if rebuild {
		replacement = uuid.New()
		m.entries[replacement] = &entry{state: Rebuilding}
		m.wg.Add(1)
	}
	m.mu.Unlock()

	if rebuild {
		go m.rebuild(replacement, kind == FailureGlobal)
	}
}

// rebuild builds the replacement path id with backoff between attempts.
func (m *Manager) rebuild(id uuid.UUID, refreshPool bool) {
	defer m.wg.Done()

	if refreshPool {
		if err := m.pool.Refresh(m.ctx); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "rebuild",
				"error":    err.Error(),
			}).Warn("Pool refresh after global failure failed")
		} else {
			m.saveNodes()
		}
	}

	backoff := snode.NewBackoff(m.config.RebuildBackoff, m.config.MaxRebuildBackoff)
	var err error
	for attempt := 1; attempt <= m.config.MaxRebuildAttempts; attempt++ {
		if _, err = m.construct(m.ctx, id, nil); err == nil {
			return
		}
		if errors.Is(err, ErrClosed) || m.ctx.Err() != nil {
			break
		}

		logrus.WithFields(logrus.Fields{
			"function": "rebuild",
			"attempt":  attempt,
			"error":    err.Error(),
		}).Debug("Path rebuild attempt failed")

		if attempt < m.config.MaxRebuildAttempts && backoff.Wait(m.ctx) != nil {
			break
		}
	}
	if err == nil {
		err = m.ctx.Err()
	}
	m.discard(id, err)
}

// retireExpired evicts Ready paths older than MaxAge.
func (m *Manager) retireExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.entries {
		if e.state == Ready && m.expiredLocked(e.path) {
			delete(m.entries, id)
			instrument.PathEvicted("expired")
			logrus.WithFields(logrus.Fields{
				"function": "retireExpired",
				"path":     e.path.String(),
			}).Info("Path expired")
		}
	}
}

func (m *Manager) expiredLocked(p *Path) bool {
	return m.config.MaxAge > 0 && m.config.TimeProvider.Since(p.CreatedAt) > m.config.MaxAge
}

func (m *Manager) missing() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return max(0, m.config.PathCount-m.activeLocked())
}

// activeLocked counts paths that are ready or being built.
func (m *Manager) activeLocked() int {
	n := 0
	for _, e := range m.entries {
		switch e.state {
		case Ready, Building, Rebuilding:
			n++
		}
	}
	return n
}

func (m *Manager) readyLocked() int {
	n := 0
	for _, e := range m.entries {
		if e.state == Ready {
			n++
		}
	}
	return n
}

// State returns the state of the path with the given ID. Paths the manager
// no longer knows about are Dead.
func (m *Manager) State(id uuid.UUID) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[id]; ok {
		return e.state
	}
	return Dead
}

// Paths returns the Ready paths, oldest first.
func (m *Manager) Paths() []*Path {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Path, 0, len(m.entries))
	for _, e := range m.entries {
		if e.state == Ready {
			out = append(out, e.path)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Guards returns the pinned guard nodes.
func (m *Manager) Guards() []snode.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]snode.Node(nil), m.guards...)
}

// Pool returns the node pool the manager draws from.
func (m *Manager) Pool() *snode.Pool {
	return m.pool
}

// Close stops background rebuilds, persists the pool and marks every path
// Dead.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.saveNodes()

	m.mu.Lock()
	m.entries = make(map[uuid.UUID]*entry)
	m.mu.Unlock()
	instrument.ReadyPaths(0)
	return nil
}

func (m *Manager) saveNodes() {
	if m.config.Store == nil {
		return
	}
	if err := m.config.Store.SaveNodes(m.pool.Snapshot()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "saveNodes",
			"error":    err.Error(),
		}).Warn("Could not persist node pool")
	}
}

func (m *Manager) saveGuards(guards []snode.Node) {
	if m.config.Store == nil {
		return
	}
	if err := m.config.Store.SaveGuards(guards); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "saveGuards",
			"error":    err.Error(),
		}).Warn("Could not persist guards")
	}
}

func containsAny(p *Path, ids []string) bool {
	for _, id := range ids {
		if p.Contains(id) {
			return true
		}
	}
	return false
}
