package props

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-props/pkg/activity"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type nodeResult struct {
	status  FieldStatus
	options ResolvedOptions
	cached  bool
	err     error
	kind    ErrorKind
}

// Session is the per-form-instance resolution state: the value snapshot, a
// private copy of the dependency graph that grows as nested fields expand,
// the cache and the generation counter used to discard superseded passes.
//
// All methods are safe for concurrent use. Value changes are applied in call
// order. Each pass owns the pending fields it will settle; when a change
// touches a field an earlier, still running pass owns, the earlier pass stops
// writing results, the new pass takes over its fields and the earlier caller
// receives ErrSuperseded. Passes over disjoint fields run side by side.
type Session struct {
	id      string
	schema  *Schema
	cfg     sessionConfig
	invoker *invoker
	emitter *activity.Emitter
	cancel  context.CancelFunc

	mu         sync.Mutex
	graph      *Graph
	specs      map[string]PropertySpec
	snapshot   Snapshot
	results    map[string]nodeResult
	pending    map[string]*pass
	passes     map[*pass]struct{}
	generation uint64
	trace      PassTrace
	closed     bool
}

// pass is one resolution run. A pending key with a nil owner was left behind
// by a pass that stopped early and is adopted by the next pass.
type pass struct {
	gen        uint64
	ctx        context.Context
	cancel     context.CancelFunc
	superseded bool
}

// NewSession prepares a session for schema without resolving anything. Every
// Dynamic and NestedDynamic field starts pending.
func NewSession(schema *Schema, initial Snapshot, opts ...SessionOption) (*Session, error) {
	if schema == nil {
		return nil, errors.New("props: schema must not be nil")
	}
	cfg := applyOptions(opts)
	if err := cfg.config.Validate(); err != nil {
		return nil, err
	}
	cfg.config = cfg.config.withDefaults()
	id := cfg.id
	if id == "" {
		id = uuid.NewString()
	}
	base, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:       id,
		schema:   schema,
		cfg:      cfg,
		invoker:  newInvoker(base, cfg.config),
		cancel:   cancel,
		graph:    schema.graph.clone(),
		specs:    make(map[string]PropertySpec, len(schema.specs)),
		snapshot: initial.clone(),
		results:  map[string]nodeResult{},
		pending:  map[string]*pass{},
		passes:   map[*pass]struct{}{},
	}
	s.emitter = activity.NewEmitter(cfg.hooks, activity.Config{Enabled: true}, activity.WithErrorHandler(s.logActivityFailure))
	for _, key := range schema.keys {
		spec := schema.specs[key]
		s.specs[key] = spec.clone()
		if spec.Kind.resolvable() {
			s.pending[key] = nil
			s.results[key] = nodeResult{status: StatusPending}
		}
	}

	s.emitter.EmitAll(context.Background(), activity.BuildSessionOpenedEvent(s.eventInput("")))
	return s, nil
}

// Open creates a session and runs the first full resolution pass.
func Open(ctx context.Context, schema *Schema, initial Snapshot, opts ...SessionOption) (*Session, View, error) {
	s, err := NewSession(schema, initial, opts...)
	if err != nil {
		return nil, View{}, err
	}
	view, err := s.Resolve(ctx)
	if err != nil {
		return s, view, err
	}
	return s, view, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Schema returns the schema the session was opened for.
func (s *Session) Schema() *Schema {
	return s.schema
}

// Snapshot returns the current value snapshot.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.clone()
}

// Graph returns a copy of the materialized graph including expanded children.
func (s *Session) Graph() *Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.clone()
}

// View returns the current materialized view without running a pass.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// LastTrace returns the provenance of the most recent pass.
func (s *Session) LastTrace() PassTrace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trace.clone()
}

// Resolve runs a full pass over every materialized Dynamic and NestedDynamic
// field. Fields whose inputs are unchanged are served from the cache, so a
// repeated Resolve does not call resolvers again; failed fields are retried.
func (s *Session) Resolve(ctx context.Context) (View, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return View{}, ErrSessionClosed
	}
	p := s.beginLocked(nil, true)
	for _, key := range s.graph.order {
		if s.graph.nodes[key].kind.resolvable() {
			s.pending[key] = p
		}
	}
	s.mu.Unlock()
	return s.run(ctx, p, "resolve", invalidation{})
}

// SetValue records a user value for key and re-resolves exactly the fields
// that depend on it, directly or transitively. Setting AuthKey is the same
// as SetAuth.
func (s *Session) SetValue(ctx context.Context, key string, value any) (View, error) {
	if key == AuthKey {
		return s.SetAuth(ctx, value)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return View{}, ErrSessionClosed
	}
	if !s.graph.has(key) {
		s.mu.Unlock()
		return View{}, fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	old, _ := s.snapshot.Value(key)
	s.snapshot = s.snapshot.With(key, value)
	event := s.eventInput(key)
	event.OldValue = old
	event.NewValue = value
	return s.changeLocked(ctx, key, "set:"+key, event)
}

// SetAuth replaces the auth value; nil clears it. Fields declaring the auth
// refresher are re-resolved.
func (s *Session) SetAuth(ctx context.Context, auth any) (View, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return View{}, ErrSessionClosed
	}
	s.snapshot = s.snapshot.WithAuth(auth)
	return s.changeLocked(ctx, AuthKey, "auth", s.eventInput(AuthKey))
}

// Close stops in-flight resolver calls and rejects further use.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for p := range s.passes {
		s.supersedeLocked(p)
	}
	s.cancel()
	return nil
}

// changeLocked runs the invalidation controller for changed and starts a
// pass over the dirty set plus the fields of any pass it supersedes. It is
// called with s.mu held and releases it.
func (s *Session) changeLocked(ctx context.Context, changed, trigger string, event activity.ResolutionEventInput) (View, error) {
	inv := invalidate(s.graph, changed)
	p := s.beginLocked(inv.touched(), false)
	gen := p.gen
	s.dropLocked(inv.pruned)
	s.cfg.cache.InvalidateFields(inv.touched()...)
	for _, key := range inv.dirty {
		s.pending[key] = p
		s.results[key] = nodeResult{status: StatusPending}
	}

	event.Generation = gen
	events := []activity.Event{activity.BuildFieldChangedEvent(event)}
	for _, parent := range sortedKeys(inv.prunedBy) {
		pruned := s.eventInput(parent)
		pruned.Generation = gen
		pruned.Keys = inv.prunedBy[parent]
		events = append(events, activity.BuildChildrenPrunedEvent(pruned))
	}
	s.mu.Unlock()

	s.emitter.EmitAll(ctx, events...)
	return s.run(ctx, p, trigger, inv)
}

// beginLocked starts a pass at the next generation. Running passes that own
// any key in claim, or every running pass when all is set, are superseded and
// their keys move to the new pass together with orphaned keys.
func (s *Session) beginLocked(claim []string, all bool) *pass {
	s.generation++
	ctx, cancel := context.WithCancel(context.Background())
	p := &pass{gen: s.generation, ctx: ctx, cancel: cancel}

	if all {
		for running := range s.passes {
			s.supersedeLocked(running)
		}
	}
	for _, key := range claim {
		if owner := s.pending[key]; owner != nil {
			s.supersedeLocked(owner)
		}
	}
	for key, owner := range s.pending {
		if owner == nil || owner.superseded {
			s.pending[key] = p
		}
	}
	s.passes[p] = struct{}{}
	return p
}

func (s *Session) supersedeLocked(p *pass) {
	if p.superseded {
		return
	}
	p.superseded = true
	p.cancel()
	delete(s.passes, p)
}

// endLocked retires p. Keys it still owns become orphans.
func (s *Session) endLocked(p *pass) {
	for key, owner := range s.pending {
		if owner == p {
			s.pending[key] = nil
		}
	}
	if !p.superseded {
		delete(s.passes, p)
		p.cancel()
	}
}

// ownedLocked returns the pending keys p is responsible for.
func (s *Session) ownedLocked(p *pass) map[string]struct{} {
	owned := map[string]struct{}{}
	for key, owner := range s.pending {
		if owner == p {
			owned[key] = struct{}{}
		}
	}
	return owned
}

// dropLocked forgets pruned nodes: their specs, results and values.
func (s *Session) dropLocked(keys []string) {
	if len(keys) == 0 {
		return
	}
	for _, key := range keys {
		delete(s.specs, key)
		delete(s.results, key)
		delete(s.pending, key)
	}
	s.snapshot = s.snapshot.Without(keys...)
}

// run drives waves until nothing is pending. Nested fields that expand during
// a wave add their children to the pending set, which the next wave resolves.
func (s *Session) run(ctx context.Context, p *pass, trigger string, inv invalidation) (View, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	trace := PassTrace{
		Generation: p.gen,
		Trigger:    trigger,
		Dirty:      append([]string(nil), inv.dirty...),
		Pruned:     append([]string(nil), inv.pruned...),
		StartedAt:  time.Now(),
	}

	var runErr error
	for {
		s.mu.Lock()
		if p.superseded {
			s.mu.Unlock()
			runErr = ErrSuperseded
			break
		}
		keys := s.graph.sortKeys(s.ownedLocked(p))
		deps := make(map[string][]string, len(keys))
		for _, key := range keys {
			deps[key] = append([]string(nil), s.graph.nodes[key].deps...)
		}
		s.mu.Unlock()

		if len(keys) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		w := s.wave(ctx, p, keys, deps)
		trace.Steps = append(trace.Steps, w.steps...)
		trace.Expanded = append(trace.Expanded, w.expanded...)
		trace.Pruned = append(trace.Pruned, w.pruned...)
	}
	trace.Duration = time.Since(trace.StartedAt)
	trace.Superseded = errors.Is(runErr, ErrSuperseded)

	s.mu.Lock()
	if trace.Generation >= s.trace.Generation {
		s.trace = trace
	}
	current := !p.superseded
	s.endLocked(p)
	view := s.viewLocked()
	s.mu.Unlock()

	s.emitter.EmitAll(ctx, s.passEvents(trace)...)
	if runErr == nil && current {
		for _, listener := range s.cfg.listeners {
			listener(view)
		}
	}
	return view, runErr
}

type waveResult struct {
	steps    []TraceStep
	expanded []string
	pruned   []string
}

// wave resolves keys concurrently. Goroutines are started in topological
// order and each waits for its in-wave refreshers to settle first, so the
// concurrency limit can never starve a node of its prerequisites.
func (s *Session) wave(ctx context.Context, p *pass, keys []string, deps map[string][]string) waveResult {
	done := make(map[string]chan struct{}, len(keys))
	for _, key := range keys {
		done[key] = make(chan struct{})
	}

	var (
		mu  sync.Mutex
		out waveResult
		g   errgroup.Group
	)
	g.SetLimit(s.cfg.config.MaxConcurrency)
	for _, key := range keys {
		var waits []chan struct{}
		for _, dep := range deps[key] {
			if ch, ok := done[dep]; ok {
				waits = append(waits, ch)
			}
		}
		g.Go(func() error {
			defer close(done[key])
			for _, ch := range waits {
				<-ch
			}
			st := s.settle(ctx, p, key)
			if st.step.Key == "" {
				return nil
			}
			mu.Lock()
			out.steps = append(out.steps, st.step)
			out.expanded = append(out.expanded, st.expanded...)
			out.pruned = append(out.pruned, st.pruned...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

type settlement struct {
	step     TraceStep
	expanded []string
	pruned   []string
}

// settle resolves one node: short-circuit on a missing required refresher,
// then cache, then the invoker. Results are committed only while p still owns
// key. The resolver context ends when ctx does or p is superseded.
func (s *Session) settle(ctx context.Context, p *pass, key string) (st settlement) {
	if ctx.Err() != nil {
		return settlement{}
	}
	start := time.Now()
	st = settlement{step: TraceStep{Key: key}}
	defer func() {
		st.step.Duration = time.Since(start)
		var err error
		if st.step.Error != "" {
			err = errors.New(st.step.Error)
		}
		s.cfg.logger.Log(LogEvent{
			Kind:       LogEventResolve,
			Session:    s.id,
			Generation: p.gen,
			Key:        key,
			Outcome:    st.step.Outcome,
			Duration:   st.step.Duration,
			Err:        err,
		})
	}()

	s.mu.Lock()
	if p.superseded {
		s.mu.Unlock()
		st.step.Outcome = OutcomeSuperseded
		return st
	}
	if owner, ok := s.pending[key]; !ok || owner != p {
		s.mu.Unlock()
		st.step.Outcome = OutcomeSkipped
		return st
	}
	node, ok := s.graph.nodes[key]
	if !ok {
		delete(s.pending, key)
		s.mu.Unlock()
		st.step.Outcome = OutcomeSkipped
		return st
	}
	spec := s.specs[key]
	in, placeholder := s.inputLocked(node)
	if placeholder != "" {
		delete(s.pending, key)
		s.results[key] = nodeResult{
			status:  StatusDisabled,
			options: disabledOptions(placeholder),
			kind:    ErrorKindMissingPrerequisite,
		}
		if spec.Kind == KindNestedDynamic {
			st.pruned = s.graph.prune(key)
			s.dropLocked(st.pruned)
		}
		s.mu.Unlock()
		st.step.Outcome = OutcomeSkipped
		st.step.ErrorKind = ErrorKindMissingPrerequisite
		return st
	}
	ck := cacheKey(key, in)
	if entry, hit := s.cfg.cache.Get(ck); hit {
		st.expanded, st.pruned, _ = s.commitLocked(p, key, spec, invocation{options: entry.Options, children: entry.Children}, true)
		s.mu.Unlock()
		st.step.Outcome = OutcomeCached
		return st
	}
	s.mu.Unlock()

	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.ctx, cancel)
	out, err := s.invoker.invoke(callCtx, key, spec, in, ck)
	stop()
	cancel()
	if err != nil {
		if p.ctx.Err() != nil {
			st.step.Outcome = OutcomeSuperseded
			return st
		}
		st.step.Outcome = OutcomeSkipped
		st.step.Error = err.Error()
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p.superseded {
		st.step.Outcome = OutcomeSuperseded
		return st
	}
	if owner, ok := s.pending[key]; !ok || owner != p {
		st.step.Outcome = OutcomeSkipped
		return st
	}
	st.expanded, st.pruned, err = s.commitLocked(p, key, spec, out, false)
	if err != nil {
		st.step.Outcome = OutcomeFailed
		st.step.Error = err.Error()
		st.step.ErrorKind = classifyError(err)
		return st
	}
	s.cfg.cache.Set(key, ck, CacheEntry{Options: out.options, Children: out.children})
	st.step.Outcome = OutcomeResolved
	return st
}

// commitLocked stores an outcome for key. A successful nested outcome
// replaces the node's previous expansion; keys present in both expansions
// keep their values. A cached nested outcome leaves an existing expansion
// alone since identical inputs produced it.
func (s *Session) commitLocked(p *pass, key string, spec PropertySpec, out invocation, cached bool) (expanded, pruned []string, err error) {
	delete(s.pending, key)
	res := nodeResult{status: StatusResolved, options: out.options, cached: cached}
	if out.err != nil {
		res = nodeResult{status: StatusFailed, options: out.options, err: out.err, kind: classifyError(out.err)}
	}
	if spec.Kind != KindNestedDynamic {
		s.results[key] = res
		return nil, nil, out.err
	}

	if out.err != nil {
		pruned = s.graph.prune(key)
		s.dropLocked(pruned)
		s.results[key] = res
		return nil, pruned, out.err
	}
	if cached && len(s.graph.nodes[key].children) > 0 {
		s.results[key] = res
		return nil, nil, nil
	}

	prior := s.graph.prune(key)
	added, extendErr := s.graph.extend(s.schema.name, key, out.children)
	if extendErr != nil {
		err = &MalformedResultError{Key: key, Kind: KindNestedDynamic, Got: "children", Err: extendErr}
		s.dropLocked(prior)
		s.results[key] = nodeResult{
			status:  StatusFailed,
			options: disabledOptions(s.cfg.config.errorPlaceholder(err)),
			err:     err,
			kind:    classifyError(err),
		}
		return nil, prior, err
	}

	kept := make(map[string]struct{}, len(added))
	for i, child := range added {
		kept[child] = struct{}{}
		childSpec := out.children[i].clone()
		s.specs[child] = childSpec
		delete(s.results, child)
		if childSpec.Kind.resolvable() {
			s.pending[child] = p
			s.results[child] = nodeResult{status: StatusPending}
		}
	}
	for _, gone := range prior {
		if _, ok := kept[gone]; !ok {
			pruned = append(pruned, gone)
		}
	}
	s.dropLocked(pruned)
	s.results[key] = res
	return added, pruned, nil
}

// inputLocked gathers the refresher subset for node. A non-empty placeholder
// means a required refresher is absent and the resolver must not run.
func (s *Session) inputLocked(node *graphNode) (Input, string) {
	in := Input{key: node.key, values: make(map[string]any, len(node.refs))}
	for i, ref := range node.refs {
		dep := node.deps[i]
		if dep == AuthKey {
			auth, ok := s.snapshot.Auth()
			if !ok || isEmpty(auth) {
				if s.schema.AuthRequired() {
					return Input{}, s.cfg.config.missingPlaceholder(AuthKey, AuthKey)
				}
				continue
			}
			in.auth, in.hasAuth = auth, true
			continue
		}
		value, ok := s.valueLocked(dep)
		if !ok || isEmpty(value) {
			if refSpec := s.specs[dep]; refSpec.Required {
				return Input{}, s.cfg.config.missingPlaceholder(ref, refSpec.label())
			}
			continue
		}
		in.values[ref] = value
	}
	return in, ""
}

// valueLocked returns the snapshot value of key, falling back to its default.
func (s *Session) valueLocked(key string) (any, bool) {
	if value, ok := s.snapshot.Value(key); ok {
		return value, true
	}
	if spec, ok := s.specs[key]; ok && spec.Default != nil {
		return spec.Default, true
	}
	return nil, false
}

func (s *Session) viewLocked() View {
	view := View{
		SessionID:  s.id,
		Schema:     s.schema.name,
		Generation: s.generation,
		Fields:     make(map[string]FieldState, len(s.specs)),
	}
	var add func(key string)
	add = func(key string) {
		node, ok := s.graph.nodes[key]
		if !ok {
			return
		}
		spec := s.specs[key]
		state := FieldState{
			Key:         key,
			Parent:      node.parent,
			Kind:        spec.Kind,
			Required:    spec.Required,
			DisplayName: spec.label(),
			Description: spec.Description,
			Children:    append([]string(nil), node.children...),
			Status:      StatusStatic,
		}
		state.Value, state.HasValue = s.valueLocked(key)
		if spec.Kind.resolvable() {
			res, ok := s.results[key]
			if !ok {
				res = nodeResult{status: StatusPending}
			}
			state.Status = res.status
			state.Cached = res.cached
			state.ErrorKind = res.kind
			if res.err != nil {
				state.Error = res.err.Error()
			}
			if res.status != StatusPending {
				options := res.options.clone()
				state.Options = &options
			}
		}
		view.Order = append(view.Order, key)
		view.Fields[key] = state
		for _, child := range node.children {
			add(child)
		}
	}
	for _, key := range s.schema.keys {
		add(key)
	}
	return view
}

func (s *Session) eventInput(field string) activity.ResolutionEventInput {
	return activity.ResolutionEventInput{
		ActorID:   s.cfg.actorID,
		SessionID: s.id,
		Schema:    s.schema.name,
		Field:     field,
	}
}

func (s *Session) passEvents(trace PassTrace) []activity.Event {
	if !s.emitter.Enabled() {
		return nil
	}
	summary := s.eventInput("")
	summary.Generation = trace.Generation
	summary.Superseded = trace.Superseded
	summary.Duration = trace.Duration
	summary.Resolved = trace.Count(OutcomeResolved) + trace.Count(OutcomeCached)
	for _, step := range trace.Steps {
		summary.Keys = append(summary.Keys, step.Key)
	}
	events := []activity.Event{activity.BuildPassCompletedEvent(summary)}
	for _, step := range trace.Steps {
		if step.Outcome != OutcomeFailed {
			continue
		}
		failed := s.eventInput(step.Key)
		failed.Generation = trace.Generation
		failed.Err = errors.New(step.Error)
		failed.ErrorKind = string(step.ErrorKind)
		events = append(events, activity.BuildFieldFailedEvent(failed))
	}
	return events
}

func (s *Session) logActivityFailure(event activity.Event, err error) {
	s.cfg.logger.Log(LogEvent{
		Kind:    LogEventActivity,
		Session: s.id,
		Key:     event.Verb,
		Err:     err,
	})
}
