package gate

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/logging"
)

func TestInputs_Allowed(t *testing.T) {
	cases := []struct {
		name string
		in   Inputs
		want bool
	}{
		{"no tokens", Inputs{RequiredStep: 1, OnboardingStep: 5}, false},
		{"access only", Inputs{AccessToken: "a", OnboardingStep: 5, RequiredStep: 1}, false},
		{"onboarding incomplete, no profile", Inputs{AccessToken: "a", RefreshToken: "r", OnboardingStep: 1, RequiredStep: 3}, false},
		{"onboarding complete", Inputs{AccessToken: "a", RefreshToken: "r", OnboardingStep: 3, RequiredStep: 3}, true},
		{"profile fetched", Inputs{AccessToken: "a", RefreshToken: "r", OnboardingStep: 0, RequiredStep: 3, ProfileFetched: true}, true},
	}
	for _, tc := range cases {
		if got := tc.in.Allowed(); got != tc.want {
			t.Errorf("%s: Allowed() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestGate_SubscribeNotifiesOnChangeOnly(t *testing.T) {
	g := New(2, logging.Discard())
	var seen []bool
	g.Subscribe(func(v bool) { seen = append(seen, v) })

	g.SetTokens("a", "r")
	g.SetOnboardingStep(1)
	g.SetOnboardingStep(2)
	g.SetOnboardingStep(3)
	g.SetTokens("", "")

	want := []bool{false, true, false}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, seen)
		}
	}
}

func TestGate_ProfileFetchedOpensGate(t *testing.T) {
	g := New(5, logging.Discard())
	g.SetTokens("a", "r")
	if g.Allowed() {
		t.Fatal("gate open before onboarding or profile")
	}
	g.MarkProfileFetched()
	if !g.Allowed() {
		t.Fatal("gate should open once the profile is fetched")
	}
}

func TestGate_RevokeHoldsUntilTokensChange(t *testing.T) {
	g := New(0, logging.Discard())
	g.SetTokens("a", "r")
	if !g.Allowed() {
		t.Fatal("expected open gate")
	}

	reason := errors.New("401")
	g.Revoke(reason)
	if g.Allowed() {
		t.Fatal("revoked gate should be closed")
	}
	if !errors.Is(g.RevokedReason(), reason) {
		t.Errorf("reason not recorded")
	}

	g.SetTokens("a", "r")
	if g.Allowed() {
		t.Fatal("same token pair must not lift the revocation")
	}
	g.SetTokens("a2", "r2")
	if !g.Allowed() {
		t.Fatal("new token pair should reopen the gate")
	}
	if g.RevokedReason() != nil {
		t.Error("reason should be cleared")
	}
}

func TestGate_Unsubscribe(t *testing.T) {
	g := New(0, logging.Discard())
	calls := 0
	unsub := g.Subscribe(func(bool) { calls++ })
	unsub()
	g.SetTokens("a", "r")
	if calls != 1 {
		t.Fatalf("expected only the initial call, got %d", calls)
	}
}

func TestGate_StartSessionForgetsPreviousSession(t *testing.T) {
	g := New(3, logging.Discard())
	g.SetTokens("a", "r")
	g.SetOnboardingStep(1)
	g.MarkProfileFetched()
	g.Revoke(errors.New("rejected"))

	g.StartSession("a2", "r2")
	if g.Allowed() {
		t.Fatal("new session opened the gate before its profile was fetched")
	}
	in := g.Inputs()
	if in.ProfileFetched || in.OnboardingStep != 0 {
		t.Errorf("inputs carried over: %+v", in)
	}
	if g.RevokedReason() != nil {
		t.Error("revocation should not carry over")
	}

	g.MarkProfileFetched()
	if !g.Allowed() {
		t.Error("profile fetch for the new session should open the gate")
	}
}

func TestGate_ConcurrentUpdatesLastNotificationMatchesAllowed(t *testing.T) {
	for round := 0; round < 200; round++ {
		g := New(3, logging.Discard())
		var mu sync.Mutex
		var last bool
		g.Subscribe(func(v bool) {
			mu.Lock()
			last = v
			mu.Unlock()
		})

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				g.SetTokens(fmt.Sprintf("a%d", i), "r")
				g.MarkProfileFetched()
			}(i)
			go func() {
				defer wg.Done()
				g.Revoke(errors.New("rejected"))
			}()
		}
		wg.Wait()

		mu.Lock()
		got := last
		mu.Unlock()
		if got != g.Allowed() {
			t.Fatalf("round %d: last notification %v, Allowed %v", round, got, g.Allowed())
		}
	}
}
