package lifecycle

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeWorker struct {
	name string

	mu          sync.Mutex
	installErrs []error // consumed one per attempt; nil once exhausted
	activateErr error
	skipWaiting bool
	claim       bool
	installs    int
	activations int
}

func (w *fakeWorker) Install(ctx context.Context, scope Scope) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.installs++
	if len(w.installErrs) > 0 {
		err := w.installErrs[0]
		w.installErrs = w.installErrs[1:]
		if err != nil {
			return err
		}
	}
	if w.skipWaiting {
		scope.SkipWaiting()
	}
	return nil
}

func (w *fakeWorker) Activate(ctx context.Context, scope Scope) error {
	w.mu.Lock()
	w.activations++
	err := w.activateErr
	w.mu.Unlock()
	if err != nil {
		return err
	}
	if w.claim {
		return scope.Claim(ctx)
	}
	return nil
}

func (w *fakeWorker) RoundTrip(req *http.Request) (*http.Response, error) {
	return textResponse(w.name), nil
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func textResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestRegistration() *Registration {
	logger := zerolog.Nop()
	return NewRegistration(Options{
		Network: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return textResponse("network"), nil
		}),
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        5 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
		Logger: &logger,
	})
}

func fetchBody(t *testing.T, rt http.RoundTripper) string {
	t.Helper()
	req, _ := http.NewRequest("GET", "http://origin/app.js", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestRegister_FirstWorkerActivates(t *testing.T) {
	reg := newTestRegistration()
	ctx := context.Background()

	if reg.Ready() {
		t.Fatal("empty registration should not be ready")
	}
	if got := fetchBody(t, reg); got != "network" {
		t.Errorf("before activation body = %q, want network", got)
	}

	w := &fakeWorker{name: "v1"}
	id, err := reg.Register(ctx, w)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	status := reg.Status()
	if status.Active == nil || status.Active.ID != id || status.Active.State != StateActivated {
		t.Errorf("Status().Active = %+v", status.Active)
	}
	if status.Waiting != nil || status.Installing != nil || status.Activating != nil {
		t.Errorf("unexpected versions in %+v", status)
	}
	if got := fetchBody(t, reg); got != "v1" {
		t.Errorf("after activation body = %q, want v1", got)
	}
}

func TestRegister_InstallRetried(t *testing.T) {
	reg := newTestRegistration()

	w := &fakeWorker{name: "v1", installErrs: []error{errors.New("precache failed")}}
	if _, err := reg.Register(context.Background(), w); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if w.installs != 2 {
		t.Errorf("installs = %d, want 2", w.installs)
	}
	if !reg.Ready() {
		t.Error("registration should be ready after retried install")
	}
}

func TestRegister_InstallFailureKeepsActive(t *testing.T) {
	reg := newTestRegistration()
	ctx := context.Background()

	if _, err := reg.Register(ctx, &fakeWorker{name: "v1"}); err != nil {
		t.Fatalf("Register v1: %v", err)
	}

	boom := errors.New("precache failed")
	bad := &fakeWorker{name: "v2", installErrs: []error{boom, boom, boom}}
	_, err := reg.Register(ctx, bad)
	if !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("Register v2 error = %v, want ErrInstallFailed", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("install error should wrap the worker error: %v", err)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("install error should report exhausted retries: %v", err)
	}
	if bad.installs != 3 {
		t.Errorf("installs = %d, want 3", bad.installs)
	}
	if bad.activations != 0 {
		t.Error("failed install must not activate")
	}
	if got := fetchBody(t, reg); got != "v1" {
		t.Errorf("body = %q, want v1 still active", got)
	}
	if s := reg.Status(); s.Waiting != nil {
		t.Errorf("failed version left waiting: %+v", s.Waiting)
	}
}

func TestRegister_WaitsForClients(t *testing.T) {
	reg := newTestRegistration()
	ctx := context.Background()

	v1, _ := reg.Register(ctx, &fakeWorker{name: "v1"})
	client := reg.Attach()
	if ctrl, ok := reg.Controller(client); !ok || ctrl != v1 {
		t.Fatalf("Controller() = %q, %v; want %q", ctrl, ok, v1)
	}

	v2, err := reg.Register(ctx, &fakeWorker{name: "v2"})
	if err != nil {
		t.Fatalf("Register v2: %v", err)
	}
	status := reg.Status()
	if status.Waiting == nil || status.Waiting.ID != v2 {
		t.Fatalf("v2 should be waiting, status = %+v", status)
	}
	if got := fetchBody(t, reg); got != "v1" {
		t.Errorf("body = %q, want v1 while v2 waits", got)
	}

	if err := reg.Detach(ctx, client); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	status = reg.Status()
	if status.Active == nil || status.Active.ID != v2 {
		t.Errorf("v2 should be active after last client detached, status = %+v", status)
	}
	if status.Waiting != nil {
		t.Errorf("waiting = %+v, want none", status.Waiting)
	}
}

func TestRegister_NewerWaitingReplacesOlder(t *testing.T) {
	reg := newTestRegistration()
	ctx := context.Background()

	reg.Register(ctx, &fakeWorker{name: "v1"})
	reg.Attach()

	reg.Register(ctx, &fakeWorker{name: "v2"})
	v3, _ := reg.Register(ctx, &fakeWorker{name: "v3"})

	if s := reg.Status(); s.Waiting == nil || s.Waiting.ID != v3 {
		t.Errorf("waiting = %+v, want v3", s.Waiting)
	}
}

func TestRegister_SkipWaiting(t *testing.T) {
	reg := newTestRegistration()
	ctx := context.Background()

	reg.Register(ctx, &fakeWorker{name: "v1"})
	client := reg.Attach()

	v2, err := reg.Register(ctx, &fakeWorker{name: "v2", skipWaiting: true})
	if err != nil {
		t.Fatalf("Register v2: %v", err)
	}
	if s := reg.Status(); s.Active == nil || s.Active.ID != v2 {
		t.Fatalf("v2 should supersede v1 immediately, status = %+v", s)
	}
	if ctrl, _ := reg.Controller(client); ctrl != v2 {
		t.Errorf("client controller = %q, want %q", ctrl, v2)
	}
	if got := fetchBody(t, reg); got != "v2" {
		t.Errorf("body = %q, want v2", got)
	}
}

func TestActivate_ClaimTakesUncontrolledClients(t *testing.T) {
	reg := newTestRegistration()
	ctx := context.Background()

	client := reg.Attach()
	if _, ok := reg.Controller(client); ok {
		t.Fatal("client attached before activation should be uncontrolled")
	}

	v1, err := reg.Register(ctx, &fakeWorker{name: "v1", claim: true})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ctrl, ok := reg.Controller(client); !ok || ctrl != v1 {
		t.Errorf("Controller() = %q, %v; want %q", ctrl, ok, v1)
	}
}

func TestActivate_FailureRollsBack(t *testing.T) {
	reg := newTestRegistration()
	ctx := context.Background()

	v1, _ := reg.Register(ctx, &fakeWorker{name: "v1"})
	client := reg.Attach()

	v2w := &fakeWorker{name: "v2", skipWaiting: true, activateErr: errors.New("purge failed")}
	v2, err := reg.Register(ctx, v2w)
	if !errors.Is(err, ErrActivateFailed) {
		t.Fatalf("Register error = %v, want ErrActivateFailed", err)
	}

	status := reg.Status()
	if status.Active == nil || status.Active.ID != v1 {
		t.Errorf("active = %+v, want v1", status.Active)
	}
	if status.Waiting == nil || status.Waiting.ID != v2 {
		t.Errorf("waiting = %+v, want v2", status.Waiting)
	}
	if ctrl, _ := reg.Controller(client); ctrl != v1 {
		t.Errorf("client controller = %q, want v1", ctrl)
	}

	// Retry once the cause is gone
	v2w.mu.Lock()
	v2w.activateErr = nil
	v2w.mu.Unlock()
	if err := reg.TryActivate(ctx); err != nil {
		t.Fatalf("TryActivate: %v", err)
	}
	if s := reg.Status(); s.Active == nil || s.Active.ID != v2 {
		t.Errorf("active = %+v, want v2", s.Active)
	}
}

func TestClaim_NotActive(t *testing.T) {
	reg := newTestRegistration()
	v := newVersion(&fakeWorker{})
	scope := &versionScope{reg: reg, v: v}

	if err := scope.Claim(context.Background()); !errors.Is(err, ErrNotActive) {
		t.Errorf("Claim() = %v, want ErrNotActive", err)
	}
}

func TestDetach_UnknownClient(t *testing.T) {
	reg := newTestRegistration()
	if err := reg.Detach(context.Background(), "nope"); !errors.Is(err, ErrUnknownClient) {
		t.Errorf("Detach() = %v, want ErrUnknownClient", err)
	}
}

func TestRegistration_ConcurrentDispatch(t *testing.T) {
	reg := newTestRegistration()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest("GET", "http://origin/", nil)
			resp, err := reg.RoundTrip(req)
			if err != nil {
				t.Errorf("RoundTrip: %v", err)
				return
			}
			resp.Body.Close()
		}()
	}
	if _, err := reg.Register(ctx, &fakeWorker{name: "v1"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	wg.Wait()
}
