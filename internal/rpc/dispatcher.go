package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sort"
	"time"

	"github.com/geocoder89/forumhub/internal/auth"
)

type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Observer receives one sample per finished call.
type Observer interface {
	ObserveRPC(procedure string, tier string, status int, elapsed time.Duration)
}

type Dispatcher struct {
	procs    map[string]Procedure
	verifier TokenVerifier
	log      *slog.Logger
	observer Observer
}

type DispatcherOption func(*Dispatcher)

func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

func NewDispatcher(verifier TokenVerifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		procs:    make(map[string]Procedure),
		verifier: verifier,
		log:      slog.Default(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Register adds procedures. A malformed procedure is a wiring bug, so it panics
// at startup instead of failing requests later.
func (d *Dispatcher) Register(procs ...Procedure) {
	for _, p := range procs {
		if p.Name == "" || p.Handler == nil {
			panic(fmt.Sprintf("rpc: procedure %q has no name or handler", p.Name))
		}
		if !p.Tier.valid() {
			panic(fmt.Sprintf("rpc: procedure %q has invalid tier %d", p.Name, int(p.Tier)))
		}
		if p.Kind != Query && p.Kind != Mutation {
			panic(fmt.Sprintf("rpc: procedure %q has invalid kind %d", p.Name, int(p.Kind)))
		}
		if _, dup := d.procs[p.Name]; dup {
			panic(fmt.Sprintf("rpc: procedure %q registered twice", p.Name))
		}
		d.procs[p.Name] = p
	}
}

func (d *Dispatcher) Lookup(name string) (Procedure, bool) {
	p, ok := d.procs[name]
	return p, ok
}

// Procedures lists the registered procedures by name.
func (d *Dispatcher) Procedures() []Procedure {
	out := make([]Procedure, 0, len(d.procs))
	for _, p := range d.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs one call end to end: lookup, access gate, handler.
// token is the raw session token, empty when the caller sent none.
func (d *Dispatcher) Invoke(ctx context.Context, name, token string, input json.RawMessage) Envelope {
	p, ok := d.procs[name]
	if !ok {
		return NotFound("Unknown procedure")
	}

	return d.invoke(ctx, p, token, input)
}

func (d *Dispatcher) invoke(ctx context.Context, p Procedure, token string, input json.RawMessage) (env Envelope) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.log.ErrorContext(ctx, "rpc_panic",
				"procedure", p.Name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			env = Fail(http.StatusInternalServerError, "Something went wrong")
		}

		if d.observer != nil {
			d.observer.ObserveRPC(p.Name, p.Tier.String(), env.Status, time.Since(start))
		}
	}()

	identity, err := d.authorize(p.Tier, token)
	if err != nil {
		accessErr, _ := err.(*AccessError)
		d.log.DebugContext(ctx, "rpc_rejected", "procedure", p.Name, "tier", p.Tier.String(), "err", err)
		return accessErr.envelope()
	}

	if identity != nil {
		ctx = auth.WithIdentity(ctx, *identity)
	}

	return p.Handler(ctx, NewCall(p.Name, identity, input))
}

func (d *Dispatcher) authorize(tier Tier, token string) (*auth.Identity, error) {
	switch tier {
	case Public:
		// an optional identity: a bad or missing token just means anonymous
		if token == "" {
			return nil, nil
		}
		id, err := d.verifier.Verify(token)
		if err != nil {
			return nil, nil
		}
		return &id, nil

	case Authenticated, Privileged:
		if token == "" {
			return nil, &AccessError{Status: http.StatusUnauthorized, Tier: tier, Cause: ErrNoToken}
		}

		id, err := d.verifier.Verify(token)
		if err != nil {
			return nil, &AccessError{Status: http.StatusUnauthorized, Tier: tier, Cause: err}
		}

		if tier == Privileged && !id.Role.IsDeveloper() {
			return nil, &AccessError{Status: http.StatusForbidden, Tier: tier, Role: id.Role}
		}
		return &id, nil

	default:
		return nil, &AccessError{Status: http.StatusForbidden, Tier: tier, Cause: fmt.Errorf("unknown tier %d", int(tier))}
	}
}
