// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
)

// Scheduler owns a fixed-size pool of workers, a table of workgroups
// carving that pool into priority-ranked, contiguous worker ranges, and
// the inboxes each worker/group pair uses to exchange WorkItem values.
// A Scheduler is created with New, configured via CreateGroup while
// stopped, then driven through one or more BeginExecution/EndExecution
// cycles.
type Scheduler struct { // betteralign:ignore
	workers []*Worker

	mu      sync.RWMutex
	groups  []Workgroup
	groupOK []bool
	frozen  bool

	stop    atomic.Bool
	running atomic.Bool

	log         Logger
	allocator   Allocator
	affinity    bool
	entryFunc   func(*Context)
	userContext any

	limiter *catrate.Limiter

	strideMu sync.Mutex
	stride   map[uint64]*atomic.Uint64
	external atomic.Uint64
}

// Option configures a Scheduler at construction, following the
// functional-options pattern used throughout this team's concurrency
// packages.
type Option func(*Scheduler)

// WithLogger installs a structured Logger. Defaults to the package-level
// logger set via SetLogger, or a no-op logger if none was set.
func WithLogger(l Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithAllocator installs a custom Allocator, corresponding to the
// original's allocator template parameter. Defaults to NewDefaultAllocator.
func WithAllocator(a Allocator) Option {
	return func(s *Scheduler) { s.allocator = a }
}

// WithAffinity enables best-effort OS-thread CPU pinning for every worker
// (see affinity_linux.go). Defaults to disabled.
func WithAffinity(enabled bool) Option {
	return func(s *Scheduler) { s.affinity = enabled }
}

// WithWorkScale overrides defaultWorkScale for every group declared
// without an explicit Workgroup.WorkScale.
func WithWorkScale(scale uint32) Option {
	return func(s *Scheduler) {
		if scale > 0 {
			defaultWorkScaleOverride(s, scale)
		}
	}
}

// WithEntryFunc installs a callback invoked once by each worker's
// goroutine before it begins dequeuing, e.g. to run host-specific TLS
// setup. It receives a Context scoped to the worker's lowest-id group.
func WithEntryFunc(fn func(*Context)) Option {
	return func(s *Scheduler) { s.entryFunc = fn }
}

// WithUserContext installs the opaque value returned by every Context's
// UserContext method for the lifetime of this scheduler.
func WithUserContext(v any) Option {
	return func(s *Scheduler) { s.userContext = v }
}

// workScaleOverrides tracks a WithWorkScale override outside the
// Scheduler struct's exported surface; kept as a tiny indirection so
// Workgroup.workScale (which has no Scheduler reference) stays a pure
// value method.
var workScaleOverrides sync.Map // map[*Scheduler]uint32

func defaultWorkScaleOverride(s *Scheduler, scale uint32) {
	workScaleOverrides.Store(s, scale)
}

func (s *Scheduler) effectiveWorkScale(g Workgroup) uint32 {
	if g.WorkScale != 0 {
		return g.WorkScale
	}
	if v, ok := workScaleOverrides.Load(s); ok {
		return v.(uint32)
	}
	return g.workScale()
}

// New constructs a Scheduler with a fixed pool of workerCount workers.
// The pool size cannot change for the scheduler's lifetime; only the
// group table carving it up can be reconfigured, and only while stopped.
func New(workerCount uint32, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		log:       getGlobalLogger(),
		allocator: NewDefaultAllocator(),
		stride:    make(map[uint64]*atomic.Uint64),
		limiter:   catrate.NewLimiter(map[time.Duration]int{time.Second: 4}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.workers = make([]*Worker, workerCount)
	for i := range s.workers {
		s.workers[i] = newWorker(WorkerID(i), s)
	}

	return s, nil
}

func (s *Scheduler) logger() Logger {
	if s.log == nil {
		return getGlobalLogger()
	}
	return s.log
}

// GetWorkerCount returns the total, fixed number of workers in the pool.
func (s *Scheduler) GetWorkerCount() uint32 { return uint32(len(s.workers)) }

// CreateGroup declares a new workgroup and returns its id. Must be called
// before BeginExecution (or after a matching EndExecution); returns
// ErrInvalidState otherwise, and ErrOutOfRange if the declared range
// exceeds the worker pool.
func (s *Scheduler) CreateGroup(g Workgroup) (WorkgroupID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return InvalidWorkgroupID, &StateError{Op: "CreateGroup", Detail: "scheduler is running"}
	}
	if uint64(g.StartThreadIdx)+uint64(g.ThreadCount) > uint64(len(s.workers)) {
		return InvalidWorkgroupID, &RangeError{
			Op: "CreateGroup", Start: g.StartThreadIdx, Count: g.ThreadCount,
			WorkerCount: uint32(len(s.workers)),
		}
	}

	for i, ok := range s.groupOK {
		if !ok {
			s.groups[i] = g
			s.groupOK[i] = true
			return WorkgroupID(i), nil
		}
	}

	id := WorkgroupID(len(s.groups))
	s.groups = append(s.groups, g)
	s.groupOK = append(s.groupOK, true)
	return id, nil
}

// ClearGroup removes a previously declared workgroup, freeing its id for
// reuse by a later CreateGroup. Must be called before BeginExecution.
func (s *Scheduler) ClearGroup(id WorkgroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return &StateError{Op: "ClearGroup", Detail: "scheduler is running"}
	}
	if !id.Valid() || int(id) >= len(s.groupOK) || !s.groupOK[id] {
		return &UnknownGroupError{Op: "ClearGroup", Group: id}
	}
	s.groupOK[id] = false
	return nil
}

func (s *Scheduler) groupLocked(id WorkgroupID) (Workgroup, bool) {
	if !id.Valid() || int(id) >= len(s.groups) || !s.groupOK[id] {
		return Workgroup{}, false
	}
	return s.groups[id], true
}

// GetWorkerStartIdx returns the first worker index belonging to group id.
func (s *Scheduler) GetWorkerStartIdx(id WorkgroupID) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groupLocked(id)
	if !ok {
		return 0, &UnknownGroupError{Op: "GetWorkerStartIdx", Group: id}
	}
	return g.StartThreadIdx, nil
}

// GetWorkerCountForGroup returns the number of workers belonging to group id.
func (s *Scheduler) GetWorkerCountForGroup(id WorkgroupID) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groupLocked(id)
	if !ok {
		return 0, &UnknownGroupError{Op: "GetWorkerCountForGroup", Group: id}
	}
	return g.ThreadCount, nil
}

// GetLogicalDivisor returns the per-worker inbox capacity assigned to
// group id, i.e. ThreadCount * effective WorkScale.
func (s *Scheduler) GetLogicalDivisor(id WorkgroupID) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groupLocked(id)
	if !ok {
		return 0, &UnknownGroupError{Op: "GetLogicalDivisor", Group: id}
	}
	return g.ThreadCount * s.effectiveWorkScale(g), nil
}

// GetContext returns the Context a running worker uses for group id, for
// callers that need one outside of a dispatched WorkItem (e.g. tests
// driving BusyWork directly). Returns ErrUnknownWorker/ErrUnknownGroup if
// either id is invalid, or ErrInvalidState if the scheduler isn't running.
func (s *Scheduler) GetContext(worker WorkerID, group WorkgroupID) (*Context, error) {
	if !s.running.Load() {
		return nil, &StateError{Op: "GetContext", Detail: "scheduler is not running"}
	}
	if !worker.Valid() || int(worker) >= len(s.workers) {
		return nil, &UnknownWorkerError{Op: "GetContext", Worker: worker}
	}
	w := s.workers[worker]
	ctx, ok := w.contexts[group]
	if !ok {
		return nil, &UnknownGroupError{Op: "GetContext", Group: group}
	}
	return ctx, nil
}

// groupMembers returns the (possibly empty) set of worker ids belonging
// to group. Only valid while running: group topology is frozen at
// BeginExecution, so no locking is needed here.
func (s *Scheduler) groupMembers(g WorkgroupID) []WorkerID {
	if !g.Valid() || int(g) >= len(s.groups) || !s.groupOK[g] {
		return nil
	}
	grp := s.groups[g]
	members := make([]WorkerID, grp.ThreadCount)
	for i := range members {
		members[i] = WorkerID(grp.StartThreadIdx + uint32(i))
	}
	return members
}

// BeginExecution freezes the group table and spawns one goroutine per
// worker. Returns ErrInvalidState if already running.
func (s *Scheduler) BeginExecution() error {
	s.mu.Lock()
	if s.frozen {
		s.mu.Unlock()
		return &StateError{Op: "BeginExecution", Detail: "already running"}
	}
	s.frozen = true

	// Build each worker's membership list, sorted by descending priority
	// then ascending group id, and allocate its per-group inbox rings.
	type membership struct {
		group    WorkgroupID
		priority uint32
	}
	byWorker := make(map[WorkerID][]membership, len(s.workers))
	for gid, ok := range s.groupOK {
		if !ok {
			continue
		}
		g := s.groups[gid]
		cap := g.ThreadCount * s.effectiveWorkScale(g)
		for w := range s.groupMembers(WorkgroupID(gid)) {
			wid := WorkerID(g.StartThreadIdx + uint32(w))
			byWorker[wid] = append(byWorker[wid], membership{group: WorkgroupID(gid), priority: g.Priority})
			s.workers[wid].rings[WorkgroupID(gid)] = newWorkItemRing(cap)
			s.workers[wid].contexts[WorkgroupID(gid)] = &Context{
				sched: s, worker: wid, group: WorkgroupID(gid), user: s.userContext,
			}
		}
	}
	for wid, memberships := range byWorker {
		sort.Slice(memberships, func(i, j int) bool {
			if memberships[i].priority != memberships[j].priority {
				return memberships[i].priority > memberships[j].priority
			}
			return memberships[i].group < memberships[j].group
		})
		groups := make([]WorkgroupID, len(memberships))
		for i, m := range memberships {
			groups[i] = m.group
		}
		s.workers[wid].groups = groups
	}
	s.mu.Unlock()

	s.stop.Store(false)
	s.running.Store(true)

	for _, w := range s.workers {
		w.state.Store(int32(workerCreated))
		go w.run(s.entryFunc)
	}

	s.logger().Log(LogEntry{Level: LevelInfo, Category: "scheduler", Message: "execution started"})
	return nil
}

// EndExecution signals stop, waits for every worker to observe
// quiescence and exit, then unfreezes the group table for a subsequent
// BeginExecution. Returns ErrInvalidState if not running.
func (s *Scheduler) EndExecution() error {
	if !s.running.Load() {
		return &StateError{Op: "EndExecution", Detail: "not running"}
	}

	s.stop.Store(true)
	for _, w := range s.workers {
		w.signalWake()
	}
	for _, w := range s.workers {
		<-w.done
	}

	s.mu.Lock()
	s.frozen = false
	s.running.Store(false)
	for _, w := range s.workers {
		w.done = make(chan struct{})
		w.groups = nil
		w.rings = make(map[WorkgroupID]*workItemRing)
		w.contexts = make(map[WorkgroupID]*Context)
		w.spill = nil
		w.state.Store(int32(workerCreated))
	}
	s.mu.Unlock()

	s.logger().Log(LogEntry{Level: LevelInfo, Category: "scheduler", Message: "execution ended"})
	return nil
}

// mixSourceID scrambles a submitter identity into a well-distributed
// starting offset, so distinct submitters begin their round-robin walk
// at different members even before their individual strides diverge.
// A fixed-point multiplicative hash (splitmix64's finalizer) is enough
// here: the goal is spreading starting points across a small member
// list, not cryptographic avalanche.
func mixSourceID(id uint64) uint64 {
	id += 0x9e3779b97f4a7c15
	id = (id ^ (id >> 30)) * 0xbf58476d1ce4e5b9
	id = (id ^ (id >> 27)) * 0x94d049bb133111eb
	return id ^ (id >> 31)
}

func (s *Scheduler) strideFor(sourceID uint64) *atomic.Uint64 {
	s.strideMu.Lock()
	defer s.strideMu.Unlock()
	c, ok := s.stride[sourceID]
	if !ok {
		c = new(atomic.Uint64)
		s.stride[sourceID] = c
	}
	return c
}

// pickMember selects a round-robin target among members for the given
// submitter: each submitter gets its own monotonically advancing stride,
// started at a hash-scrambled offset, so concurrent submitters spread
// load without contending on one shared counter.
func (s *Scheduler) pickMember(members []WorkerID, sourceID uint64) WorkerID {
	if len(members) == 0 {
		return InvalidWorkerID
	}
	if len(members) == 1 {
		return members[0]
	}
	stride := s.strideFor(sourceID).Add(1)
	idx := (mixSourceID(sourceID) + stride) % uint64(len(members))
	return members[idx]
}

// Submit dispatches item to one member of item.Group(), chosen by
// round-robin, with sourceID identifying the caller for stride purposes.
// Workers submitting from within a dispatched item should prefer
// Context.Submit, which supplies sourceID automatically.
func (s *Scheduler) Submit(item WorkItem, sourceID uint64) error {
	if !s.running.Load() {
		return &StateError{Op: "Submit", Detail: "scheduler is not running"}
	}
	members := s.groupMembers(item.Group())
	if members == nil {
		return &UnknownGroupError{Op: "Submit", Group: item.Group()}
	}
	// A workgroup declared with zero member workers is a legal topology
	// (Design Notes §9's open question), but nothing can ever dequeue a
	// submission to it: treated as unknown_group rather than silently
	// accepted or run inline.
	target := s.pickMember(members, sourceID)
	if !target.Valid() {
		return &UnknownGroupError{Op: "Submit", Group: item.Group()}
	}
	s.workers[target].submitLocal(item)
	return nil
}

// SubmitExternal is a Submit convenience for callers outside any worker,
// using an internal rotating counter as the submitter identity.
func (s *Scheduler) SubmitExternal(item WorkItem) error {
	return s.Submit(item, s.external.Add(1))
}

// Submit dispatches item from within a running work-item body, using the
// executing worker's id as the round-robin submitter identity, per the
// scheduler's "per-submitter stride, not a shared counter" fairness rule.
func (c *Context) Submit(item WorkItem) error {
	sourceID := uint64(c.worker) + 1
	if !c.worker.Valid() {
		sourceID = c.sched.external.Add(1)
	}
	return c.sched.Submit(item, sourceID)
}

// SubmitToWorker dispatches item directly to a specific worker's inbox
// for item.Group(), bypassing round-robin selection entirely. Used for
// exclusive-affinity submissions (§8 scenario 2).
func (s *Scheduler) SubmitToWorker(worker WorkerID, item WorkItem) error {
	if !s.running.Load() {
		return &StateError{Op: "SubmitToWorker", Detail: "scheduler is not running"}
	}
	if !worker.Valid() || int(worker) >= len(s.workers) {
		return &UnknownWorkerError{Op: "SubmitToWorker", Worker: worker}
	}
	s.mu.RLock()
	g, ok := s.groupLocked(item.Group())
	s.mu.RUnlock()
	if !ok || !g.contains(worker) {
		return &UnknownGroupError{Op: "SubmitToWorker", Group: item.Group()}
	}
	s.workers[worker].submitLocal(item)
	return nil
}

// BusyWork performs one dequeue-and-invoke step on behalf of worker, from
// a caller that is not that worker's own goroutine. It exists so a
// sync-wait bridge called from inside a worker's dispatched item can make
// forward progress on that same worker's queue instead of deadlocking
// while it waits for a dependency that can only be completed by that
// worker. Returns false if no work was available.
func (s *Scheduler) BusyWork(worker WorkerID) (bool, error) {
	if !s.running.Load() {
		return false, &StateError{Op: "BusyWork", Detail: "scheduler is not running"}
	}
	if !worker.Valid() || int(worker) >= len(s.workers) {
		return false, &UnknownWorkerError{Op: "BusyWork", Worker: worker}
	}
	return s.workers[worker].runOnce(), nil
}

// TakeOwnership installs s as the package-level "current" scheduler
// convenience for the duration of the returned restore call, for hosts
// that want an ambient scheduler reference without threading one through
// every call site. Per Design Notes §9 this is a convenience only: every
// scheduler-owned API also accepts an explicit reference, and that
// explicit form is what this package uses internally.
func (s *Scheduler) TakeOwnership() (restore func()) {
	prev := currentScheduler.Swap(s)
	return func() { currentScheduler.Store(prev) }
}

var currentScheduler atomic.Pointer[Scheduler]

// Current returns the scheduler most recently installed by TakeOwnership,
// or nil if none has been.
func Current() *Scheduler { return currentScheduler.Load() }

// submitContinuation resubmits a coroutine continuation via the normal
// round-robin path, using a rotating internal identity since a
// continuation has no natural submitter worker of its own.
func (s *Scheduler) submitContinuation(item WorkItem) error {
	return s.Submit(item, s.external.Add(1))
}

func (s *Scheduler) reportSpill(worker WorkerID, group WorkgroupID) {
	if _, allow := s.limiter.Allow(spillCategory{worker, group}); allow {
		s.logger().Log(LogEntry{
			Level: LevelWarn, Category: "inbox", Worker: worker, Workgroup: group,
			Message: "ring full, spilling to local deque",
		})
	}
}

func (s *Scheduler) reportStealMiss(worker WorkerID, group WorkgroupID) {
	if !s.logger().IsEnabled(LevelDebug) {
		return
	}
	if _, allow := s.limiter.Allow(stealCategory{worker, group}); allow {
		s.logger().Log(LogEntry{
			Level: LevelDebug, Category: "inbox", Worker: worker, Workgroup: group,
			Message: "steal probe found nothing",
		})
	}
}

type spillCategory struct {
	worker WorkerID
	group  WorkgroupID
}

type stealCategory struct {
	worker WorkerID
	group  WorkgroupID
}
