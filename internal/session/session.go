// Package session drives the valuation request lifecycle: one request at a
// time, from an explicit submit to a Succeeded or Failed state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-console/internal/property"
	"github.com/sells-group/valuation-console/pkg/valuation"
)

// DefaultTimeout bounds a request so the session can never stay Loading.
const DefaultTimeout = 30 * time.Second

// AlertMessage is what the user sees when a valuation fails.
const AlertMessage = "API Error: valuation service unreachable."

var errEmptyResult = eris.New("session: service returned no result")

// Notifier raises an alert-level notification once per failed request.
type Notifier interface {
	Alert(message string, err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string, err error)

// Alert calls f.
func (f NotifierFunc) Alert(message string, err error) {
	f(message, err)
}

// Dispatcher runs a completion on the caller's event loop.
type Dispatcher func(func())

// Option configures a Session.
type Option func(*Session)

// WithTimeout bounds each request. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithDispatcher delivers request completions through d instead of running
// them on the request goroutine.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Session) {
		s.dispatch = d
	}
}

// WithNotifier sets who hears about failures.
func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		s.notifier = n
	}
}

// Session owns the request state for one property model.
type Session struct {
	model    *property.Model
	client   valuation.Client
	timeout  time.Duration
	dispatch Dispatcher
	notifier Notifier

	mu        sync.Mutex
	state     State
	inFlight  bool
	done      chan struct{}
	submitted property.Description
	observers []observer
	nextID    int
}

type observer struct {
	id int
	fn func(State)
}

// New creates an idle session.
func New(model *property.Model, client valuation.Client, opts ...Option) *Session {
	s := &Session{
		model:    model,
		client:   client,
		timeout:  DefaultTimeout,
		dispatch: func(fn func()) { fn() },
		notifier: NotifierFunc(func(msg string, err error) {
			zap.L().Warn(msg, zap.Error(err))
		}),
		state: State{Kind: Idle},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Submitted returns the snapshot sent with the latest request.
func (s *Session) Submitted() property.Description {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

// Submit snapshots the model and starts a valuation request. It returns
// false without doing anything while a request is already in flight.
//
// ctx carries values for the request but does not cancel it; requests run
// until they finish or hit the session timeout.
func (s *Session) Submit(ctx context.Context) bool {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		zap.L().Debug("session: submit ignored, request in flight")
		return false
	}
	snap := s.model.Snapshot()
	s.inFlight = true
	s.submitted = snap
	s.state = State{Kind: Loading}
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	zap.L().Info("session: valuation requested",
		zap.Int("rooms", snap.Rooms),
		zap.String("region", string(snap.Regionname)),
		zap.Float64("lat", snap.Lattitude),
		zap.Float64("lon", snap.Longtitude),
	)
	s.publish(State{Kind: Loading})

	go s.run(context.WithoutCancel(ctx), snap, done)
	return true
}

func (s *Session) run(ctx context.Context, snap property.Description, done chan struct{}) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	res, err := s.client.Predict(ctx, snap)
	cancel()

	if err == nil && res == nil {
		err = errEmptyResult
	}
	s.dispatch(func() { s.complete(res, err, done) })
}

func (s *Session) complete(res *valuation.Result, err error, done chan struct{}) {
	var next State
	if err != nil {
		next = failed(err)
	} else {
		next = succeeded(*res)
	}

	s.mu.Lock()
	s.state = next
	s.inFlight = false
	s.mu.Unlock()

	if err != nil {
		zap.L().Warn("session: valuation failed", zap.Error(err))
		s.notifier.Alert(AlertMessage, err)
	} else {
		zap.L().Info("session: valuation succeeded",
			zap.Float64("price", res.PredictedPrice),
			zap.String("tier", res.Tier),
			zap.Int("cluster", res.ClusterID),
		)
	}
	s.publish(next)
	close(done)
}

// Wait blocks until no request is in flight and returns the state. It must
// not be called from the goroutine the Dispatcher runs completions on.
func (s *Session) Wait(ctx context.Context) (State, error) {
	s.mu.Lock()
	done := s.done
	inFlight := s.inFlight
	s.mu.Unlock()

	if inFlight && done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return s.State(), ctx.Err()
		}
	}
	return s.State(), nil
}

// Subscribe registers fn for every state change. The returned func removes it.
func (s *Session) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers = append(s.observers, observer{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) publish(st State) {
	s.mu.Lock()
	obs := make([]observer, len(s.observers))
	copy(obs, s.observers)
	s.mu.Unlock()

	for _, o := range obs {
		o.fn(st)
	}
}
