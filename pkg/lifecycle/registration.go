package lifecycle

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"sync"

	"github.com/Sternrassler/wallet-sw/pkg/logging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures a Registration.
type Options struct {
	// Network serves requests while no version is active.
	Network http.RoundTripper

	// Retry controls install retries.
	Retry RetryConfig

	// Logger defaults to the global logger with component=lifecycle.
	Logger *zerolog.Logger
}

// Registration hosts the versions of one worker scope.
//
// At most one version is installing, one waiting, one activating and one
// active at any time. Register, TryActivate and Detach run as jobs one after
// another; requests are dispatched concurrently with them.
type Registration struct {
	network http.RoundTripper
	retry   RetryConfig
	logger  zerolog.Logger

	// jobs serializes lifecycle jobs
	jobs sync.Mutex

	mu         sync.RWMutex
	installing *version
	waiting    *version
	activating *version
	active     *version
	clients    map[string]*version
}

// NewRegistration creates an empty registration.
func NewRegistration(opts Options) *Registration {
	network := opts.Network
	if network == nil {
		network = http.DefaultTransport
	}
	logger := logging.NewLogger("lifecycle")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Registration{
		network: network,
		retry:   opts.Retry,
		logger:  logger,
		clients: make(map[string]*version),
	}
}

// Register installs w as a new version and activates it when possible.
// It returns the new version's ID. On install failure the registration keeps
// whatever versions it had before.
func (r *Registration) Register(ctx context.Context, w Worker) (string, error) {
	r.jobs.Lock()
	defer r.jobs.Unlock()

	v := newVersion(w)
	r.mu.Lock()
	r.installing = v
	r.mu.Unlock()

	logger := r.logger.With().Str("version", v.id).Logger()
	logger.Info().Msg("Installing worker")

	scope := &versionScope{reg: r, v: v}
	err := retryWithBackoff(ctx, r.retry, logger, func(attempt int) error {
		installAttemptsTotal.Inc()
		logger.Debug().Int("attempt", attempt).Msg("Install attempt")
		return w.Install(ctx, scope)
	})

	r.mu.Lock()
	r.installing = nil
	if err != nil {
		v.state = StateRedundant
		r.mu.Unlock()
		installFailuresTotal.Inc()
		logger.Error().Err(err).Msg("Worker install failed")
		return v.id, fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	v.state = StateInstalled
	if r.waiting != nil {
		r.waiting.state = StateRedundant
		logger.Info().Str("replaced", r.waiting.id).Msg("Replacing waiting worker")
	}
	r.waiting = v
	r.mu.Unlock()

	logger.Info().Str("state", string(StateInstalled)).Msg("Worker installed")

	if err := r.tryActivate(ctx); err != nil {
		return v.id, err
	}
	return v.id, nil
}

// TryActivate activates the waiting version if nothing holds it back.
func (r *Registration) TryActivate(ctx context.Context) error {
	r.jobs.Lock()
	defer r.jobs.Unlock()
	return r.tryActivate(ctx)
}

// tryActivate must be called with r.jobs held.
func (r *Registration) tryActivate(ctx context.Context) error {
	r.mu.Lock()
	v := r.waiting
	if v == nil {
		r.mu.Unlock()
		return nil
	}
	if r.active != nil && !v.skipWaiting && r.controlledLocked(r.active) > 0 {
		r.mu.Unlock()
		r.logger.Debug().
			Str("version", v.id).
			Str("active", r.active.id).
			Msg("Worker waiting for clients of the active version to detach")
		return nil
	}

	prevClients := maps.Clone(r.clients)
	r.waiting = nil
	r.activating = v
	v.state = StateActivating
	r.mu.Unlock()

	logger := r.logger.With().Str("version", v.id).Logger()
	logger.Info().Msg("Activating worker")

	err := v.worker.Activate(ctx, &versionScope{reg: r, v: v})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.activating = nil

	if err != nil {
		// Roll back: the previous active version keeps serving
		v.state = StateInstalled
		r.waiting = v
		for id, c := range r.clients {
			if c == v {
				r.clients[id] = prevClients[id]
			}
		}
		activationsTotal.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("Worker activation failed")
		return fmt.Errorf("%w: %w", ErrActivateFailed, err)
	}

	prev := r.active
	r.active = v
	v.state = StateActivated
	if prev != nil {
		prev.state = StateRedundant
		for id, c := range r.clients {
			if c == prev {
				r.clients[id] = v
			}
		}
	}
	activationsTotal.WithLabelValues("ok").Inc()
	logger.Info().Str("state", string(StateActivated)).Msg("Worker activated")
	return nil
}

// Attach adds a client controlled by the active version, if any, and returns
// its ID.
func (r *Registration) Attach() string {
	id := uuid.NewString()
	r.mu.Lock()
	r.clients[id] = r.active
	r.mu.Unlock()
	return id
}

// Detach removes a client. Detaching the last client of the active version
// lets a waiting version activate.
func (r *Registration) Detach(ctx context.Context, id string) error {
	r.jobs.Lock()
	defer r.jobs.Unlock()

	r.mu.Lock()
	if _, ok := r.clients[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownClient, id)
	}
	delete(r.clients, id)
	r.mu.Unlock()

	return r.tryActivate(ctx)
}

// Controller returns the ID of the version controlling a client. It reports
// false for uncontrolled or unknown clients.
func (r *Registration) Controller(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.clients[id]
	if !ok || v == nil {
		return "", false
	}
	return v.id, true
}

// Ready reports whether a version is active.
func (r *Registration) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active != nil
}

// Status returns a snapshot of the registration.
func (r *Registration) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		Installing: r.installing.status(),
		Waiting:    r.waiting.status(),
		Activating: r.activating.status(),
		Active:     r.active.status(),
		Clients:    len(r.clients),
	}
}

// RoundTrip dispatches req to the active version, or to the network when no
// version is active.
func (r *Registration) RoundTrip(req *http.Request) (*http.Response, error) {
	r.mu.RLock()
	active := r.active
	r.mu.RUnlock()

	if active == nil {
		dispatchTotal.WithLabelValues("network").Inc()
		return r.network.RoundTrip(req)
	}
	dispatchTotal.WithLabelValues("worker").Inc()
	return active.worker.RoundTrip(req)
}

func (r *Registration) controlledLocked(v *version) int {
	n := 0
	for _, c := range r.clients {
		if c == v {
			n++
		}
	}
	return n
}

// versionScope is the Scope handed to one version's lifecycle events.
type versionScope struct {
	reg *Registration
	v   *version
}

func (s *versionScope) SkipWaiting() {
	s.reg.mu.Lock()
	s.v.skipWaiting = true
	s.reg.mu.Unlock()
}

func (s *versionScope) Claim(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()

	if s.v.state != StateActivating && s.v.state != StateActivated {
		return fmt.Errorf("%w: %s is %s", ErrNotActive, s.v.id, s.v.state)
	}
	for id := range s.reg.clients {
		s.reg.clients[id] = s.v
	}
	s.reg.logger.Debug().
		Str("version", s.v.id).
		Int("clients", len(s.reg.clients)).
		Msg("Claimed clients")
	return nil
}
