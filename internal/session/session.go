// Package session owns the application state of one viewer session: the load
// state machine, the last loaded range and the persisted settings.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"econscour/internal/model"
	"econscour/internal/pipeline"
	"econscour/internal/records"
	"econscour/internal/repository"
)

// Phase is the load state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseLoading  Phase = "loading"
	PhaseAborting Phase = "aborting"
)

var (
	// ErrLoadInProgress rejects a load while another one runs.
	ErrLoadInProgress = errors.New("a load is already in progress")
	// ErrNotLoading is returned by Abort when nothing runs.
	ErrNotLoading = errors.New("no load in progress")
	// ErrNoResult means no load has completed yet.
	ErrNoResult = errors.New("no data loaded")
	// ErrNoSettingsStore is returned when settings cannot be persisted.
	ErrNoSettingsStore = errors.New("settings store not configured")
)

// Request describes one range load.
type Request struct {
	Start     model.DateKey  `json:"start"`
	End       model.DateKey  `json:"end"`
	Policy    records.Policy `json:"policy,omitempty"`
	ShipsOnly *bool          `json:"ships_only,omitempty"`
}

// Status is a snapshot of the controller state.
type Status struct {
	Phase      Phase                  `json:"phase"`
	LoadID     string                 `json:"load_id,omitempty"`
	Start      model.DateKey          `json:"start"`
	End        model.DateKey          `json:"end"`
	Progress   pipeline.Progress      `json:"progress"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Failed     []pipeline.DateFailure `json:"failed,omitempty"`
	Loaded     bool                   `json:"loaded"`
}

// Controller serializes range loads. At most one load runs at a time; a second
// Start is rejected rather than queued.
type Controller struct {
	loader   *pipeline.Loader
	settings repository.SettingsRepository

	mu         sync.Mutex
	phase      Phase
	loadID     string
	req        Request
	progress   pipeline.Progress
	cancel     context.CancelFunc
	done       chan struct{}
	startedAt  time.Time
	finishedAt time.Time
	lastErr    error
	last       *pipeline.Result
	entropy    *ulid.MonotonicEntropy
}

// New creates an idle controller. settings may be nil, in which case settings
// are not persisted.
func New(loader *pipeline.Loader, settings repository.SettingsRepository) *Controller {
	return &Controller{
		loader:   loader,
		settings: settings,
		phase:    PhaseIdle,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// Loader returns the range loader.
func (c *Controller) Loader() *pipeline.Loader { return c.loader }

// begin validates req and moves the controller to loading.
func (c *Controller) begin(ctx context.Context, req Request) (context.Context, string, error) {
	if err := c.loader.Expander().Validate(req.Start, req.End); err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseIdle {
		return nil, "", ErrLoadInProgress
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), c.entropy).String()
	loadCtx, cancel := context.WithCancel(ctx)

	c.phase = PhaseLoading
	c.loadID = id
	c.req = req
	c.progress = pipeline.Progress{Total: req.Start.DaysUntil(req.End) + 1}
	c.cancel = cancel
	c.done = make(chan struct{})
	c.startedAt = time.Now()
	c.finishedAt = time.Time{}
	c.lastErr = nil

	log.Printf("[Session] Load %s started for %s..%s", id, req.Start, req.End)
	return loadCtx, id, nil
}

func (c *Controller) run(ctx context.Context, id string, req Request) (*pipeline.Result, error) {
	res, err := c.loader.Load(ctx, req.Start, req.End, pipeline.Options{
		Policy:    req.Policy,
		ShipsOnly: req.ShipsOnly,
		Progress: func(p pipeline.Progress) {
			c.mu.Lock()
			c.progress = p
			c.mu.Unlock()
		},
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	aborted := c.phase == PhaseAborting
	switch {
	case err == nil:
		c.last = res
	case aborted:
		log.Printf("[Session] Load %s aborted", id)
	default:
		log.Printf("[Session] Load %s failed: %v", id, err)
	}

	c.lastErr = err
	c.phase = PhaseIdle
	c.finishedAt = time.Now()
	c.cancel()
	close(c.done)
	return res, err
}

// Start launches a load in the background and returns its id. The load is not
// tied to ctx's cancellation; use Abort to stop it.
func (c *Controller) Start(ctx context.Context, req Request) (string, error) {
	loadCtx, id, err := c.begin(context.WithoutCancel(ctx), req)
	if err != nil {
		return "", err
	}
	go c.run(loadCtx, id, req)
	return id, nil
}

// Run loads synchronously; canceling ctx aborts the load.
func (c *Controller) Run(ctx context.Context, req Request) (*pipeline.Result, error) {
	loadCtx, id, err := c.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.run(loadCtx, id, req)
}

// Abort stops issuing new fetches for the running load. Results of fetches
// already in flight are discarded and the previous result stays current.
func (c *Controller) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case PhaseAborting:
		return nil
	case PhaseIdle:
		return ErrNotLoading
	}
	c.phase = PhaseAborting
	c.cancel()
	log.Printf("[Session] Aborting load %s", c.loadID)
	return nil
}

// Wait blocks until the current load, if any, has finished.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the load state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Phase:    c.phase,
		LoadID:   c.loadID,
		Start:    c.req.Start,
		End:      c.req.End,
		Progress: c.progress,
		Loaded:   c.last != nil,
	}
	if !c.startedAt.IsZero() {
		t := c.startedAt
		s.StartedAt = &t
	}
	if !c.finishedAt.IsZero() {
		t := c.finishedAt
		s.FinishedAt = &t
	}
	if c.lastErr != nil {
		s.Error = c.lastErr.Error()
		var noData *pipeline.NoDataError
		if errors.As(c.lastErr, &noData) {
			s.Failed = noData.Failed
		}
	}
	if c.last != nil && c.lastErr == nil {
		s.Failed = c.last.Failed
	}
	return s
}

// Result returns the last successful load.
func (c *Controller) Result() (*pipeline.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil, ErrNoResult
	}
	return c.last, nil
}

// Settings returns the settings of profile.
func (c *Controller) Settings(ctx context.Context, profile string) (model.Settings, error) {
	if c.settings == nil {
		return model.DefaultSettings(), nil
	}
	return c.settings.GetSettings(ctx, profile)
}

// SaveSettings validates and stores the settings of profile.
func (c *Controller) SaveSettings(ctx context.Context, profile string, s model.Settings) error {
	if err := repository.ValidateSettings(s); err != nil {
		return err
	}
	if c.settings == nil {
		return ErrNoSettingsStore
	}
	return c.settings.SaveSettings(ctx, profile, s)
}
