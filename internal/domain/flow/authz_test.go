package flow

import (
	"context"
	"testing"
)

func TestCheckActorUnknown(t *testing.T) {
	got := CheckActor(context.Background(), "", "owner", "repo#1", "dispatch", []string{"mate"})
	if got != ActorUnknown {
		t.Fatalf("CheckActor() = %q, want unknown", got)
	}
}

func TestCheckActorSelf(t *testing.T) {
	got := CheckActor(context.Background(), "owner", "owner", "repo#1", "dispatch", nil)
	if got != ActorSelf {
		t.Fatalf("CheckActor() = %q, want self", got)
	}
}

func TestCheckActorSelfBeatsTeamListing(t *testing.T) {
	got := CheckActor(context.Background(), "owner", "owner", "repo#1", "dispatch", []string{"owner", "mate"})
	if got != ActorSelf {
		t.Fatalf("CheckActor() = %q, want self even when listed in team", got)
	}
}

func TestCheckActorTeam(t *testing.T) {
	got := CheckActor(context.Background(), "mate", "owner", "repo#1", "dispatch", []string{"mate"})
	if got != ActorTeam {
		t.Fatalf("CheckActor() = %q, want team", got)
	}
}

func TestCheckActorBlocked(t *testing.T) {
	got := CheckActor(context.Background(), "stranger", "owner", "repo#1", "dispatch", []string{"mate"})
	if got != ActorBlocked {
		t.Fatalf("CheckActor() = %q, want blocked", got)
	}
}

func TestCheckActorEmptySelfNeverMatches(t *testing.T) {
	got := CheckActor(context.Background(), "someone", "", "repo#1", "", nil)
	if got != ActorBlocked {
		t.Fatalf("CheckActor() = %q, want blocked when self is unset", got)
	}
}

func TestSplitRepository(t *testing.T) {
	host, owner, name, err := SplitRepository("github.com/acme/widgets")
	if err != nil {
		t.Fatalf("SplitRepository() error = %v", err)
	}
	if host != "github.com" || owner != "acme" || name != "widgets" {
		t.Fatalf("SplitRepository() = %q %q %q", host, owner, name)
	}

	for _, bad := range []string{"acme/widgets", "github.com//widgets", "", "github.com/acme/widgets/extra"} {
		if _, _, _, err := SplitRepository(bad); err == nil {
			t.Fatalf("SplitRepository(%q) expected error", bad)
		}
	}
}
