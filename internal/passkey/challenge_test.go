package passkey

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestChallengeStoreConsumeClearsSlot(t *testing.T) {
	store := NewChallengeStore()
	sessionID := uuid.New()

	store.Issue(sessionID, &Pending{Kind: ChallengeRegistration, Challenge: "c1"})

	pending, ok := store.Consume(sessionID)
	if !ok {
		t.Fatal("expected a pending challenge")
	}
	if pending.Challenge != "c1" {
		t.Fatalf("expected challenge c1, got %q", pending.Challenge)
	}

	if _, ok := store.Consume(sessionID); ok {
		t.Fatal("second consume should find nothing")
	}
}

func TestChallengeStoreIssueOverwrites(t *testing.T) {
	store := NewChallengeStore()
	sessionID := uuid.New()

	store.Issue(sessionID, &Pending{Kind: ChallengeRegistration, Challenge: "old"})
	store.Issue(sessionID, &Pending{Kind: ChallengeLogin, Challenge: "new"})

	pending, ok := store.Consume(sessionID)
	if !ok {
		t.Fatal("expected a pending challenge")
	}
	if pending.Challenge != "new" || pending.Kind != ChallengeLogin {
		t.Fatalf("expected the later challenge to win, got %+v", pending)
	}

	if _, ok := store.Consume(sessionID); ok {
		t.Fatal("overwritten challenge should not linger in a second slot")
	}
}

func TestChallengeStoreSessionsAreIndependent(t *testing.T) {
	store := NewChallengeStore()
	a, b := uuid.New(), uuid.New()

	store.Issue(a, &Pending{Challenge: "for-a"})
	store.Issue(b, &Pending{Challenge: "for-b"})

	pending, ok := store.Consume(a)
	if !ok || pending.Challenge != "for-a" {
		t.Fatalf("session a got %+v, ok=%v", pending, ok)
	}
	pending, ok = store.Consume(b)
	if !ok || pending.Challenge != "for-b" {
		t.Fatalf("session b got %+v, ok=%v", pending, ok)
	}
}

func TestChallengeStoreExpiredChallengeIsAbsent(t *testing.T) {
	store := NewChallengeStore()
	sessionID := uuid.New()

	store.Issue(sessionID, &Pending{
		Challenge: "stale",
		ExpiresAt: time.Now().Add(-time.Second),
	})

	if _, ok := store.Consume(sessionID); ok {
		t.Fatal("expired challenge should be treated as absent")
	}
}

func TestChallengeStoreDrop(t *testing.T) {
	store := NewChallengeStore()
	sessionID := uuid.New()

	store.Issue(sessionID, &Pending{Challenge: "c"})
	store.Drop(sessionID)

	if _, ok := store.Consume(sessionID); ok {
		t.Fatal("dropped challenge should be gone")
	}
	store.Drop(sessionID) // dropping an empty slot is a no-op
}

func TestChallengeStoreConcurrentConsumeSingleWinner(t *testing.T) {
	store := NewChallengeStore()
	sessionID := uuid.New()
	store.Issue(sessionID, &Pending{Challenge: "contested"})

	const goroutines = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := store.Consume(sessionID); ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winner, got %d", count)
	}
}
