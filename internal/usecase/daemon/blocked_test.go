package daemon

import (
	"context"
	"reflect"
	"testing"

	"autoflow/internal/ports"
)

func TestIsBlockedNoFrontMatter(t *testing.T) {
	svc, board, _ := setupService(t, nil)
	item := testItem("github.com/acme/api", 10, "Todo")
	board.bodies[board.key(item.Repository, item.IssueNumber)] = "Just a plain description."

	blocked, unresolved := svc.isBlocked(context.Background(), item)
	if blocked || unresolved != nil {
		t.Fatalf("isBlocked() = (%v, %v), want (false, nil)", blocked, unresolved)
	}
}

func TestIsBlockedIssueWithoutPullRequestsStaysBlocked(t *testing.T) {
	svc, board, _ := setupService(t, nil)
	item := testItem("github.com/acme/api", 10, "Todo")
	board.bodies[board.key(item.Repository, item.IssueNumber)] = "---\nblocked_by: 115\n---\n"

	blocked, unresolved := svc.isBlocked(context.Background(), item)
	if !blocked {
		t.Fatalf("isBlocked() = false, want true for a blocker with no linked PRs")
	}
	if !reflect.DeepEqual(unresolved, []int{115}) {
		t.Fatalf("unresolved = %v, want [115]", unresolved)
	}
}

func TestIsBlockedPreservesBlockerOrder(t *testing.T) {
	svc, board, _ := setupService(t, nil)
	item := testItem("github.com/acme/api", 10, "Todo")
	board.bodies[board.key(item.Repository, item.IssueNumber)] = "---\nblocked_by: [300, 100, 200]\n---\n"

	_, unresolved := svc.isBlocked(context.Background(), item)
	if !reflect.DeepEqual(unresolved, []int{300, 100, 200}) {
		t.Fatalf("unresolved = %v, want declaration order [300 100 200]", unresolved)
	}
}

func TestIsBlockedFailSafeOnBodyError(t *testing.T) {
	svc, board, _ := setupService(t, nil)
	board.bodyErr = errUpstream
	item := testItem("github.com/acme/api", 10, "Todo")

	blocked, unresolved := svc.isBlocked(context.Background(), item)
	if blocked || unresolved != nil {
		t.Fatalf("isBlocked() = (%v, %v) on body error, want fail-safe (false, nil)", blocked, unresolved)
	}
}

func TestIsBlockedFailSafeOnLinkedPullRequestError(t *testing.T) {
	svc, board, _ := setupService(t, nil)
	item := testItem("github.com/acme/api", 10, "Todo")
	board.bodies[board.key(item.Repository, item.IssueNumber)] = "---\nblocked_by: [115]\n---\n"
	board.prErr = errUpstream

	blocked, unresolved := svc.isBlocked(context.Background(), item)
	if blocked || unresolved != nil {
		t.Fatalf("isBlocked() = (%v, %v) on PR fetch error, want fail-safe (false, nil)", blocked, unresolved)
	}
}

func TestIsBlockedFailSafeOnUnreadableFrontMatter(t *testing.T) {
	svc, board, _ := setupService(t, nil)
	item := testItem("github.com/acme/api", 10, "Todo")
	board.bodies[board.key(item.Repository, item.IssueNumber)] = "---\nblocked_by: [115\n---\n"

	blocked, unresolved := svc.isBlocked(context.Background(), item)
	if blocked || unresolved != nil {
		t.Fatalf("isBlocked() = (%v, %v) on bad front matter, want fail-safe (false, nil)", blocked, unresolved)
	}
}

func TestResolveStatusActorFailSafe(t *testing.T) {
	t.Run("timeline error", func(t *testing.T) {
		svc, board, _ := setupService(t, nil)
		board.timelineErr = errUpstream

		if actor := svc.resolveStatusActor(context.Background(), testItem("github.com/acme/api", 5, "Todo")); actor != "" {
			t.Fatalf("resolveStatusActor() = %q on timeline error, want empty", actor)
		}
	})

	t.Run("ticket not found", func(t *testing.T) {
		svc, board, _ := setupService(t, nil)
		board.timelineErr = ports.ErrTicketNotFound

		if actor := svc.resolveStatusActor(context.Background(), testItem("github.com/acme/api", 5, "Todo")); actor != "" {
			t.Fatalf("resolveStatusActor() = %q for a missing ticket, want empty", actor)
		}
	})

	t.Run("empty timeline", func(t *testing.T) {
		svc, _, _ := setupService(t, nil)

		if actor := svc.resolveStatusActor(context.Background(), testItem("github.com/acme/api", 5, "Todo")); actor != "" {
			t.Fatalf("resolveStatusActor() = %q for an empty timeline, want empty", actor)
		}
	})
}
