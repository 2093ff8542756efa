// Package scheduler supervises one job per Source, driving the
// fetch -> classify -> persist -> notify pipeline on a timer. Each job can be
// started, stopped, refreshed, or triggered out-of-band without disturbing
// the others.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brightgate/relwatch/adapters"
	"github.com/brightgate/relwatch/channelfilter"
	"github.com/brightgate/relwatch/credentialresolver"
	"github.com/brightgate/relwatch/metrics"
	"github.com/brightgate/relwatch/notifier"
	"github.com/brightgate/relwatch/relmodel"
	"github.com/brightgate/relwatch/store"
)

const (
	draftLimitPeriodic  = 30
	draftLimitStartup   = 10
	draftLimitImmediate = 30

	sessionCleanupInterval = 15 * time.Minute
)

// job supervises one source's ticker. in-flight guards against a slow
// check still running when the next tick fires.
type job struct {
	name     string
	cancel   context.CancelFunc
	inFlight sync.Mutex
}

// Scheduler owns the full set of per-source jobs.
type Scheduler struct {
	store      store.DataStore
	resolver   *credentialresolver.Resolver
	dispatcher *notifier.Dispatcher
	metrics    *metrics.Metrics
	log        *zap.Logger

	mu   sync.Mutex
	jobs map[string]*job

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New builds a Scheduler. Call Initialize then Start to bring it up.
func New(ds store.DataStore, resolver *credentialresolver.Resolver, dispatcher *notifier.Dispatcher, m *metrics.Metrics, log *zap.Logger) *Scheduler {
	return &Scheduler{
		store:      ds,
		resolver:   resolver,
		dispatcher: dispatcher,
		metrics:    m,
		log:        log,
		jobs:       map[string]*job{},
	}
}

// Initialize loads every configured source and registers a job for it
// without starting any ticker or triggering a check.
func (s *Scheduler) Initialize(ctx context.Context) error {
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range sources {
		s.jobs[src.Name] = &job{name: src.Name}
	}
	if s.metrics != nil {
		s.metrics.SourcesRegistered.Set(float64(len(s.jobs)))
	}
	return nil
}

// Start launches every registered job's ticker and performs one parallel
// initial sweep across all sources, swallowing per-source errors (each is
// still recorded in that source's status).
func (s *Scheduler) Start(ctx context.Context) {
	s.rootCtx, s.rootCancel = context.WithCancel(ctx)

	s.mu.Lock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.mu.Unlock()

	var sweep sync.WaitGroup
	for _, name := range names {
		sweep.Add(1)
		go func(name string) {
			defer sweep.Done()
			s.runCheck(s.rootCtx, name, draftLimitStartup)
		}(name)
	}
	sweep.Wait()

	for _, name := range names {
		s.startTicker(name)
	}

	s.wg.Add(1)
	go s.cleanupSessionsLoop()
}

func (s *Scheduler) startTicker(name string) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(s.rootCtx)
	j.cancel = cancel

	src, err := s.store.GetSource(s.rootCtx, name)
	interval := 15 * time.Minute
	if err == nil && src.IntervalMinutes > 0 {
		interval = time.Duration(src.IntervalMinutes) * time.Minute
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runCheck(ctx, name, draftLimitPeriodic)
			}
		}
	}()
}

// Refresh reloads a source's configuration and recreates its job, so an
// interval or locator change takes effect without a process restart. It is
// idempotent: refreshing a source with no prior job simply creates one.
func (s *Scheduler) Refresh(ctx context.Context, name string) error {
	if _, err := s.store.GetSource(ctx, name); err != nil {
		return err
	}

	s.mu.Lock()
	if j, ok := s.jobs[name]; ok && j.cancel != nil {
		j.cancel()
	}
	s.jobs[name] = &job{name: name}
	s.mu.Unlock()

	s.startTicker(name)
	return nil
}

// Remove stops and forgets a source's job.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		if j.cancel != nil {
			j.cancel()
		}
		delete(s.jobs, name)
	}
}

// CheckNow runs the pipeline for name out-of-band and returns the
// resulting status rather than propagating an error — a failed check is a
// normal outcome recorded in the status, not an operation failure.
func (s *Scheduler) CheckNow(ctx context.Context, name string) relmodel.SourceStatus {
	return s.runCheck(ctx, name, draftLimitImmediate)
}

// Stop cancels every job and waits for in-flight work to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for _, j := range s.jobs {
		if j.cancel != nil {
			j.cancel()
		}
	}
	s.mu.Unlock()
	if s.rootCancel != nil {
		s.rootCancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) cleanupSessionsLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.rootCtx.Done():
			return
		case <-ticker.C:
			n, err := s.store.PurgeExpiredSessions(s.rootCtx, time.Now())
			if err != nil && s.log != nil {
				s.log.Warn("purging expired sessions", zap.Error(err))
				continue
			}
			if n > 0 && s.log != nil {
				s.log.Debug("purged expired sessions", zap.Int64("count", n))
			}
		}
	}
}

// runCheck is the full per-source pipeline. Any error encountered is
// written into the source's status rather than returned, so a bug in one
// adapter can never take the scheduler down.
func (s *Scheduler) runCheck(ctx context.Context, name string, limit int) relmodel.SourceStatus {
	j := s.getOrCreateJob(name)
	j.inFlight.Lock()
	defer j.inFlight.Unlock()

	src, err := s.store.GetSource(ctx, name)
	if err != nil {
		st := relmodel.SourceStatus{SourceName: name, LastCheck: time.Now(), LastError: err.Error()}
		s.writeStatus(ctx, st)
		return st
	}

	if !src.Enabled {
		st := relmodel.SourceStatus{
			SourceName: name, Kind: src.Kind, Enabled: false,
			LastCheck: time.Now(), LastError: "disabled", ChannelCount: len(src.Channels),
		}
		s.writeStatus(ctx, st)
		return st
	}

	status := s.check(ctx, src, limit)
	s.writeStatus(ctx, status)
	if s.metrics != nil {
		s.metrics.LastCheckTimestamp.WithLabelValues(name).Set(float64(status.LastCheck.Unix()))
	}
	return status
}

func (s *Scheduler) check(ctx context.Context, src relmodel.Source, limit int) relmodel.SourceStatus {
	base := relmodel.SourceStatus{
		SourceName: src.Name, Kind: src.Kind, Enabled: true,
		LastCheck: time.Now(), ChannelCount: len(src.Channels),
	}

	adapter, err := adapters.For(src.Kind)
	if err != nil {
		base.LastError = err.Error()
		return base
	}

	credential := s.resolver.Resolve(ctx, src.CredentialName)

	drafts, err := adapter.FetchDrafts(ctx, src, credential, limit)
	if err != nil {
		base.LastError = err.Error()
		return base
	}

	// fetch_all -> fetch_latest degrade fallback: an empty bulk listing
	// doesn't necessarily mean there's nothing new, some upstreams only
	// expose a single-latest endpoint reliably.
	if len(drafts) == 0 {
		latest, err := adapter.FetchLatest(ctx, src, credential)
		if err != nil {
			base.LastError = err.Error()
			return base
		}
		if latest != nil {
			drafts = []relmodel.Draft{*latest}
		}
	}

	if len(drafts) == 0 {
		base.LastError = "no versions found"
		return base
	}

	classified := make([]relmodel.Draft, 0, len(drafts))
	for _, d := range drafts {
		name, included := channelfilter.Classify(src.Channels, d, s.log)
		if !included {
			continue
		}
		d.ChannelName = name
		classified = append(classified, d)
	}

	// Dedupe survivors by version. Each draft already carries one channel
	// (the first enabled channel that accepted it, per Classify); when two
	// drafts share a version, the later one in fetch order is saved.
	byVersion := map[string]relmodel.Draft{}
	order := make([]string, 0, len(classified))
	for _, d := range classified {
		if _, seen := byVersion[d.Version]; !seen {
			order = append(order, d.Version)
		}
		byVersion[d.Version] = d
	}

	for _, v := range order {
		d := byVersion[v]
		verdict, err := s.store.Save(ctx, src.Name, d)
		if err != nil {
			if s.log != nil {
				s.log.Error("saving release", zap.String("source", src.Name), zap.String("tag", d.Tag), zap.Error(err))
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.ReleasesSaved.Inc()
		}
		s.notifyIfNeeded(ctx, src.Name, verdict)
	}

	base.LastKnownVersion = latestVersionAmong(drafts)
	return base
}

func (s *Scheduler) notifyIfNeeded(ctx context.Context, sourceName string, verdict relmodel.Verdict) {
	var kind relmodel.EventKind
	switch verdict.Kind {
	case relmodel.VerdictNew:
		kind = relmodel.EventNewRelease
	case relmodel.VerdictRepublish:
		kind = relmodel.EventRepublish
	default:
		return
	}
	if s.metrics != nil {
		s.metrics.NotificationsSent.Inc()
	}
	s.dispatcher.Dispatch(ctx, sourceName, kind, verdict.Release)
}

// latestVersionAmong returns the version of whichever draft, among ALL
// fetched drafts (not just the ones that survived channel filtering and
// were saved), has the most recent published_at. This is what Source
// Status reports as last_known_version, since it reflects what's actually
// upstream regardless of channel configuration.
func latestVersionAmong(drafts []relmodel.Draft) string {
	if len(drafts) == 0 {
		return ""
	}
	best := drafts[0]
	for _, d := range drafts[1:] {
		if d.PublishedAt.After(best.PublishedAt) {
			best = d
		}
	}
	return best.Version
}

func (s *Scheduler) writeStatus(ctx context.Context, st relmodel.SourceStatus) {
	if err := s.store.PutStatus(ctx, st); err != nil && s.log != nil {
		s.log.Error("writing source status", zap.String("source", st.SourceName), zap.Error(err))
	}
}

func (s *Scheduler) getOrCreateJob(name string) *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		return j
	}
	j := &job{name: name}
	s.jobs[name] = j
	return j
}
