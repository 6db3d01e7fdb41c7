package domain

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCatalog() []Activity {
	return []Activity{
		{Name: "Chess Club", Description: "Learn strategies and compete in chess tournaments", Schedule: "Fridays, 3:30 PM - 5:00 PM", MaxParticipants: 12},
		{Name: "Programming Class", Description: "Learn programming fundamentals", Schedule: "Tuesdays and Thursdays, 3:30 PM - 4:30 PM", MaxParticipants: 2, Participants: []string{"emma@mergington.edu"}},
	}
}

func TestEnrollmentScenario(t *testing.T) {
	store := NewEnrollmentStore(seedCatalog())

	conf, err := store.Enroll("Chess Club", "a@x.com")
	require.NoError(t, err)
	require.Equal(t, "Signed up a@x.com for Chess Club", conf.Message)
	require.Equal(t, []string{"a@x.com"}, store.List()["Chess Club"].Participants)

	_, err = store.Enroll("Chess Club", "a@x.com")
	require.ErrorIs(t, err, ErrAlreadyEnrolled)

	conf, err = store.Remove("Chess Club", "a@x.com")
	require.NoError(t, err)
	require.Equal(t, "Removed a@x.com from Chess Club", conf.Message)
	require.Empty(t, store.List()["Chess Club"].Participants)

	_, err = store.Remove("Chess Club", "a@x.com")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Enroll("Ghost Club", "a@x.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEnrollTwiceKeepsSingleEntry(t *testing.T) {
	store := NewEnrollmentStore(seedCatalog())

	_, err := store.Enroll("Programming Class", "b@x.com")
	require.NoError(t, err)
	_, err = store.Enroll("Programming Class", "b@x.com")
	require.ErrorIs(t, err, ErrAlreadyEnrolled)

	count := 0
	for _, p := range store.List()["Programming Class"].Participants {
		if p == "b@x.com" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestEnrollThenRemoveRestoresParticipants(t *testing.T) {
	for _, a := range seedCatalog() {
		store := NewEnrollmentStore(seedCatalog())
		before := store.List()[a.Name].Participants

		_, err := store.Enroll(a.Name, "roundtrip@x.com")
		require.NoError(t, err)
		_, err = store.Remove(a.Name, "roundtrip@x.com")
		require.NoError(t, err)

		require.Equal(t, before, store.List()[a.Name].Participants, a.Name)
	}
}

func TestRemoveUnknownParticipantLeavesSetUnchanged(t *testing.T) {
	store := NewEnrollmentStore(seedCatalog())
	before := store.List()

	_, err := store.Remove("Programming Class", "nobody@x.com")
	require.ErrorIs(t, err, ErrNotFound)

	var enrollErr *EnrollmentError
	require.True(t, errors.As(err, &enrollErr))
	require.Equal(t, "participant not registered", enrollErr.Reason)
	require.Equal(t, "Programming Class", enrollErr.Activity)
	require.Equal(t, "nobody@x.com", enrollErr.Email)
	require.Equal(t, before, store.List())
}

func TestUnknownActivityLeavesCatalogUnchanged(t *testing.T) {
	store := NewEnrollmentStore(seedCatalog())
	before := store.List()

	for _, email := range []string{"a@x.com", "", "not-an-email"} {
		_, err := store.Enroll("Ghost Club", email)
		require.ErrorIs(t, err, ErrNotFound)
		_, err = store.Remove("Ghost Club", email)
		require.ErrorIs(t, err, ErrNotFound)

		var enrollErr *EnrollmentError
		require.True(t, errors.As(err, &enrollErr))
		require.Equal(t, KindNotFound, enrollErr.Kind)
		require.Equal(t, "activity does not exist", enrollErr.Reason)
	}
	require.Equal(t, before, store.List())
}

func TestListReturnsDetachedSnapshot(t *testing.T) {
	store := NewEnrollmentStore(seedCatalog())

	snapshot := store.List()
	chess := snapshot["Chess Club"]
	chess.Participants = append(chess.Participants, "sneaky@x.com")
	snapshot["Chess Club"] = chess
	snapshot["Programming Class"].Participants[0] = "mutated@x.com"
	delete(snapshot, "Programming Class")

	fresh := store.List()
	require.Empty(t, fresh["Chess Club"].Participants)
	require.Equal(t, []string{"emma@mergington.edu"}, fresh["Programming Class"].Participants)
}

func TestSeedDuplicatesCollapse(t *testing.T) {
	store := NewEnrollmentStore([]Activity{
		{Name: "Art Club", MaxParticipants: 3, Participants: []string{"x@y.z", "x@y.z", "w@y.z"}},
	})
	require.Equal(t, []string{"x@y.z", "w@y.z"}, store.List()["Art Club"].Participants)
}

func TestCapacityIsNotEnforcedByDefault(t *testing.T) {
	store := NewEnrollmentStore(seedCatalog())

	_, err := store.Enroll("Programming Class", "one@x.com")
	require.NoError(t, err)
	conf, err := store.Enroll("Programming Class", "two@x.com")
	require.NoError(t, err)
	require.Equal(t, 3, conf.Participants)
	require.Zero(t, conf.SpotsLeft)
}

func TestCapacityEnforcementRejectsWhenFull(t *testing.T) {
	store := NewEnrollmentStore(seedCatalog(), WithCapacityEnforcement())

	conf, err := store.Enroll("Programming Class", "one@x.com")
	require.NoError(t, err)
	require.Zero(t, conf.SpotsLeft)

	_, err = store.Enroll("Programming Class", "two@x.com")
	require.ErrorIs(t, err, ErrActivityFull)
	require.Len(t, store.List()["Programming Class"].Participants, 2)

	// removing frees the slot again
	_, err = store.Remove("Programming Class", "one@x.com")
	require.NoError(t, err)
	_, err = store.Enroll("Programming Class", "two@x.com")
	require.NoError(t, err)
}

func TestRemoveKeepsOrder(t *testing.T) {
	store := NewEnrollmentStore([]Activity{
		{Name: "Drama Club", MaxParticipants: 10, Participants: []string{"a", "b", "c", "d"}},
	})
	_, err := store.Remove("Drama Club", "b")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c", "d"}, store.List()["Drama Club"].Participants)
}

func TestConcurrentEnrollSameEmailSucceedsOnce(t *testing.T) {
	store := NewEnrollmentStore(seedCatalog())

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Enroll("Chess Club", "race@x.com"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrAlreadyEnrolled)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, []string{"race@x.com"}, store.List()["Chess Club"].Participants)
}

func TestConcurrentEnrollDistinctEmails(t *testing.T) {
	store := NewEnrollmentStore(seedCatalog())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := fmt.Sprintf("student%d@x.com", i)
			_, err := store.Enroll("Chess Club", email)
			assert.NoError(t, err)
			if i%2 == 0 {
				_, err = store.Remove("Chess Club", email)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	participants := store.List()["Chess Club"].Participants
	require.Len(t, participants, 25)
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		_, dup := seen[p]
		require.False(t, dup, "duplicate participant %s", p)
		seen[p] = struct{}{}
	}
}

func TestBlankEmailRejectedAfterActivityLookup(t *testing.T) {
	store := NewEnrollmentStore(seedCatalog())

	for _, email := range []string{"", " \t"} {
		_, err := store.Enroll("Chess Club", email)
		require.ErrorIs(t, err, ErrInvalidEmail)
		_, err = store.Remove("Chess Club", email)
		require.ErrorIs(t, err, ErrInvalidEmail)
	}
	require.Empty(t, store.List()["Chess Club"].Participants)
}
