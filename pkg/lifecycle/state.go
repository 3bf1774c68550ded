// Package lifecycle hosts offline workers: it installs new versions, keeps
// them waiting while an older version still controls clients, activates
// them, and dispatches requests to whichever version is active.
package lifecycle

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of one worker version.
type State string

const (
	// StateInstalling means Install is running.
	StateInstalling State = "installing"

	// StateInstalled means the version installed and is waiting to activate.
	StateInstalled State = "installed"

	// StateActivating means Activate is running.
	StateActivating State = "activating"

	// StateActivated means the version serves requests.
	StateActivated State = "activated"

	// StateRedundant means the version failed to install or was replaced.
	StateRedundant State = "redundant"
)

// Scope is what a worker can ask of its host while handling a lifecycle event.
type Scope interface {
	// SkipWaiting lets the version activate as soon as it has installed,
	// even while an older version still controls clients.
	SkipWaiting()

	// Claim makes the calling version the controller of every attached
	// client. It is only valid during or after activation.
	Claim(ctx context.Context) error
}

// Worker handles the lifecycle events and the requests of one version.
// Install and Activate must not return until every operation that has to
// finish before the event completes has finished.
type Worker interface {
	Install(ctx context.Context, scope Scope) error
	Activate(ctx context.Context, scope Scope) error
	http.RoundTripper
}

type version struct {
	id          string
	worker      Worker
	state       State
	skipWaiting bool
	createdAt   time.Time
}

func newVersion(w Worker) *version {
	return &version{
		id:        uuid.NewString(),
		worker:    w,
		state:     StateInstalling,
		createdAt: time.Now(),
	}
}

// VersionStatus describes one version.
type VersionStatus struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Status is a snapshot of a registration. Nil fields have no version.
type Status struct {
	Installing *VersionStatus `json:"installing,omitempty"`
	Waiting    *VersionStatus `json:"waiting,omitempty"`
	Activating *VersionStatus `json:"activating,omitempty"`
	Active     *VersionStatus `json:"active,omitempty"`
	Clients    int            `json:"clients"`
}

func (v *version) status() *VersionStatus {
	if v == nil {
		return nil
	}
	return &VersionStatus{ID: v.id, State: v.state, CreatedAt: v.createdAt}
}
