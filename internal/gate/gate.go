// Package gate decides whether a realtime connection may be open.
package gate

import (
	"log/slog"
	"sync"
)

// Inputs are everything the decision depends on.
type Inputs struct {
	AccessToken    string
	RefreshToken   string
	OnboardingStep int
	RequiredStep   int
	ProfileFetched bool
}

// Allowed requires both tokens and either a finished onboarding or a profile
// fetched at least once, so the server already knows the session.
func (in Inputs) Allowed() bool {
	if in.AccessToken == "" || in.RefreshToken == "" {
		return false
	}
	return in.OnboardingStep >= in.RequiredStep || in.ProfileFetched
}

// Gate recomputes Allowed on every input change and notifies subscribers
// when the result flips. Notifications are delivered one at a time, in
// order, and the last one always matches Allowed. Subscribers must not call
// back into the gate.
type Gate struct {
	mu      sync.Mutex
	in      Inputs
	revoked bool
	reason  error
	allowed bool
	subs    map[int]func(bool)
	nextID  int
	logger  *slog.Logger

	// notifyMu serialises fan-out; published is the value subscribers last saw.
	notifyMu  sync.Mutex
	published bool
}

func New(requiredStep int, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		in:     Inputs{RequiredStep: requiredStep},
		subs:   make(map[int]func(bool)),
		logger: logger,
	}
}

func (g *Gate) Allowed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.allowed
}

func (g *Gate) Inputs() Inputs {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.in
}

// RevokedReason is the error passed to the last Revoke still in effect.
func (g *Gate) RevokedReason() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.revoked {
		return nil
	}
	return g.reason
}

// SetTokens replaces the token pair. A new pair lifts a previous revocation.
func (g *Gate) SetTokens(access, refresh string) {
	g.update(func(in *Inputs) {
		if in.AccessToken != access || in.RefreshToken != refresh {
			g.revoked = false
			g.reason = nil
		}
		in.AccessToken = access
		in.RefreshToken = refresh
	})
}

// StartSession installs a new token pair and forgets what the gate learned
// about the previous one, so the new session waits for its own onboarding
// step or profile.
func (g *Gate) StartSession(access, refresh string) {
	g.update(func(in *Inputs) {
		g.revoked = false
		g.reason = nil
		in.AccessToken = access
		in.RefreshToken = refresh
		in.OnboardingStep = 0
		in.ProfileFetched = false
	})
}

func (g *Gate) SetOnboardingStep(step int) {
	g.update(func(in *Inputs) { in.OnboardingStep = step })
}

func (g *Gate) SetRequiredStep(step int) {
	g.update(func(in *Inputs) { in.RequiredStep = step })
}

func (g *Gate) MarkProfileFetched() {
	g.update(func(in *Inputs) { in.ProfileFetched = true })
}

// Revoke closes the gate until the tokens change, e.g. after the server
// rejected them.
func (g *Gate) Revoke(reason error) {
	g.update(func(*Inputs) {
		g.revoked = true
		g.reason = reason
	})
	g.logger.Warn("realtime authorization revoked", "reason", reason)
}

// Subscribe calls fn with the current value and then on every change.
func (g *Gate) Subscribe(fn func(bool)) func() {
	g.notifyMu.Lock()
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.subs[id] = fn
	cur := g.published
	g.mu.Unlock()

	fn(cur)
	g.notifyMu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.subs, id)
		g.mu.Unlock()
	}
}

func (g *Gate) update(mutate func(*Inputs)) {
	g.mu.Lock()
	mutate(&g.in)
	g.allowed = !g.revoked && g.in.Allowed()
	g.mu.Unlock()

	g.publish()
}

// publish delivers the current value if subscribers have not seen it yet.
// Reading the value under notifyMu means a slow fan-out can never be
// overtaken by an older one.
func (g *Gate) publish() {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	cur := g.allowed
	if cur == g.published {
		g.mu.Unlock()
		return
	}
	g.published = cur
	fns := make([]func(bool), 0, len(g.subs))
	for _, fn := range g.subs {
		fns = append(fns, fn)
	}
	g.mu.Unlock()

	g.logger.Info("realtime gate changed", "allowed", cur)
	for _, fn := range fns {
		fn(cur)
	}
}
