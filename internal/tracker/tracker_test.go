package tracker_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leo-lp/rowwatch/internal/diff"
	"github.com/leo-lp/rowwatch/internal/store"
	"github.com/leo-lp/rowwatch/internal/testutil"
	"github.com/leo-lp/rowwatch/internal/tracker"
)

// createPlayerStore opens an in-memory store with an empty players table.
func createPlayerStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.DB().Exec("CREATE TABLE players (id INTEGER PRIMARY KEY, name TEXT NOT NULL, score INTEGER DEFAULT 0)")
	require.NoError(t, err)
	return st
}

func rowComparator() diff.Comparator[tracker.Row, string] {
	return diff.Comparator[tracker.Row, string]{
		Key:   tracker.RowKey("id"),
		Equal: tracker.EqualColumns(),
	}
}

// insertPlayer runs an insert through the store's write path so the commit
// feed fires.
func insertPlayer(t *testing.T, st *store.Store, id int64, name string, score int64) {
	t.Helper()
	_, err := st.Exec(context.Background(),
		"INSERT INTO players (id, name, score) VALUES (?, ?, ?)", id, name, score)
	require.NoError(t, err)
}

func names(snap *tracker.Snapshot[tracker.Row]) []string {
	var out []string
	for _, r := range snap.Records() {
		out = append(out, r.Get("name").(string))
	}
	return out
}

func TestTracker_InitialNotification(t *testing.T) {
	st := createPlayerStore(t)
	insertPlayer(t, st, 1, "Arthur", 10)

	req := tracker.NewRowRequest("SELECT id, name, score FROM players ORDER BY id")
	tr := tracker.New(st, st, req, rowComparator())
	t.Cleanup(tr.Stop)

	obs := testutil.NewRecordingObserver[tracker.Row]()
	tr.TrackChanges(obs.Observer())

	require.NoError(t, tr.Start(context.Background()))
	assert.Equal(t, tracker.StateTracking, tr.State())

	cycle := obs.Wait(t)
	assert.Nil(t, cycle.Before, "initial notification has no before snapshot")
	assert.Equal(t, []string{"Arthur"}, names(cycle.After))
	require.Len(t, cycle.Script, 1)
	assert.Equal(t, diff.OpInsert, cycle.Script[0].Kind)
}

func TestTracker_InsertCycle(t *testing.T) {
	st := createPlayerStore(t)

	req := tracker.NewRowRequest("SELECT id, name FROM players ORDER BY id")
	tr := tracker.New(st, st, req, rowComparator())
	t.Cleanup(tr.Stop)

	obs := testutil.NewRecordingObserver[tracker.Row]()
	tr.TrackChanges(obs.Observer())

	require.NoError(t, tr.Start(context.Background()))
	initial := obs.Wait(t)
	assert.Equal(t, 0, initial.After.Len())

	insertPlayer(t, st, 1, "Arthur", 10)

	cycle := obs.Wait(t)
	assert.Equal(t, 0, cycle.Before.Len(), "willChange sees the old snapshot")
	assert.Equal(t, []string{"Arthur"}, names(cycle.After))
	require.Len(t, cycle.Script, 1)
	assert.Equal(t, diff.OpInsert, cycle.Script[0].Kind)
	assert.Equal(t, 0, cycle.Script[0].Index)
}

func TestTracker_NoOpWriteStaysSilent(t *testing.T) {
	st := createPlayerStore(t)
	insertPlayer(t, st, 1, "Arthur", 10)

	req := tracker.NewRowRequest("SELECT id, name FROM players ORDER BY id")
	tr := tracker.New(st, st, req, rowComparator())
	t.Cleanup(tr.Stop)

	require.NoError(t, tr.Start(context.Background()))
	seqBefore := tr.CurrentSnapshot().Seq()

	obs := testutil.NewRecordingObserver[tracker.Row]()
	tr.TrackChanges(obs.Observer())
	obs.Wait(t) // synthetic initial

	// The score column is not selected, so this write changes nothing the
	// request can see.
	_, err := st.Exec(context.Background(), "UPDATE players SET score = 99 WHERE id = 1")
	require.NoError(t, err)

	obs.ExpectNone(t)
	assert.Equal(t, seqBefore, tr.CurrentSnapshot().Seq(),
		"silent swap keeps the previous cycle number")
}

func TestTracker_UpdateCycle(t *testing.T) {
	st := createPlayerStore(t)
	insertPlayer(t, st, 1, "Arthur", 10)

	req := tracker.NewRowRequest("SELECT id, name FROM players ORDER BY id")
	tr := tracker.New(st, st, req, rowComparator())
	t.Cleanup(tr.Stop)

	require.NoError(t, tr.Start(context.Background()))

	obs := testutil.NewRecordingObserver[tracker.Row]()
	tr.TrackChanges(obs.Observer())
	obs.Wait(t) // synthetic initial

	_, err := st.Exec(context.Background(), "UPDATE players SET name = 'Craig' WHERE id = 1")
	require.NoError(t, err)

	cycle := obs.Wait(t)
	assert.Equal(t, []string{"Arthur"}, names(cycle.Before))
	assert.Equal(t, []string{"Craig"}, names(cycle.After))
	require.Len(t, cycle.Script, 1)
	assert.Equal(t, diff.OpUpdate, cycle.Script[0].Kind)
	assert.Equal(t, 0, cycle.Script[0].Index)
}

func TestTracker_MoveUnderDisplayOrder(t *testing.T) {
	st := createPlayerStore(t)
	insertPlayer(t, st, 1, "Arthur", 10)
	insertPlayer(t, st, 2, "Barbara", 20)

	req := tracker.NewRowRequest("SELECT id, name FROM players ORDER BY name")
	tr := tracker.New(st, st, req, rowComparator())
	t.Cleanup(tr.Stop)

	require.NoError(t, tr.Start(context.Background()))

	obs := testutil.NewRecordingObserver[tracker.Row]()
	tr.TrackChanges(obs.Observer())
	obs.Wait(t)

	// Renaming Arthur to Zed moves it past Barbara in name order.
	_, err := st.Exec(context.Background(), "UPDATE players SET name = 'Zed' WHERE id = 1")
	require.NoError(t, err)

	cycle := obs.Wait(t)
	assert.Equal(t, []string{"Arthur", "Barbara"}, names(cycle.Before))
	assert.Equal(t, []string{"Barbara", "Zed"}, names(cycle.After))

	var kinds []diff.OpKind
	for _, op := range cycle.Script {
		kinds = append(kinds, op.Kind)
	}
	assert.Contains(t, kinds, diff.OpMove, "reorder plus rename yields a move")
	assert.Contains(t, kinds, diff.OpUpdate)
}

func TestTracker_IrrelevantTableIgnored(t *testing.T) {
	st := createPlayerStore(t)
	_, err := st.DB().Exec("CREATE TABLE audit (id INTEGER PRIMARY KEY, note TEXT)")
	require.NoError(t, err)
	insertPlayer(t, st, 1, "Arthur", 10)

	req := tracker.NewRowRequest("SELECT id, name FROM players ORDER BY id")
	tr := tracker.New(st, st, req, rowComparator())
	t.Cleanup(tr.Stop)

	require.NoError(t, tr.Start(context.Background()))

	obs := testutil.NewRecordingObserver[tracker.Row]()
	tr.TrackChanges(obs.Observer())
	obs.Wait(t)

	_, err = st.Exec(context.Background(), "INSERT INTO audit (note) VALUES ('checked')")
	require.NoError(t, err)

	obs.ExpectNone(t)
}

func TestTracker_SetRequestTriggersCycle(t *testing.T) {
	st := createPlayerStore(t)
	insertPlayer(t, st, 1, "Arthur", 10)
	insertPlayer(t, st, 2, "Barbara", 90)

	req := tracker.NewRowRequest("SELECT id, name FROM players ORDER BY id")
	tr := tracker.New(st, st, req, rowComparator())
	t.Cleanup(tr.Stop)

	require.NoError(t, tr.Start(context.Background()))

	obs := testutil.NewRecordingObserver[tracker.Row]()
	tr.TrackChanges(obs.Observer())
	obs.Wait(t)

	// Swap to a filtered request: no write occurred, but the visible result
	// changes, so a full cycle fires.
	tr.SetRequest(tracker.NewRowRequest(
		"SELECT id, name FROM players WHERE score >= 50 ORDER BY id"))

	cycle := obs.Wait(t)
	assert.Equal(t, []string{"Arthur", "Barbara"}, names(cycle.Before))
	assert.Equal(t, []string{"Barbara"}, names(cycle.After))
}

func TestTracker_FetchErrorKeepsSnapshot(t *testing.T) {
	st := createPlayerStore(t)
	insertPlayer(t, st, 1, "Arthur", 10)

	req := tracker.NewRowRequest("SELECT id, name FROM players ORDER BY id")
	tr := tracker.New(st, st, req, rowComparator())
	t.Cleanup(tr.Stop)

	errs := testutil.NewRecordingErrors[tracker.Row]()
	tr.TrackErrors(errs.Handler())

	require.NoError(t, tr.Start(context.Background()))
	good := tr.CurrentSnapshot()

	// Dropping the table makes the next re-fetch fail. The DROP itself is
	// the commit that triggers the cycle.
	_, err := st.Exec(context.Background(), "DROP TABLE players")
	require.NoError(t, err)

	rec := errs.Wait(t)
	assert.True(t, tracker.IsFetchError(rec.Err))
	assert.Equal(t, []string{"Arthur"}, names(rec.Last))

	assert.Same(t, good, tr.CurrentSnapshot(),
		"the snapshot stays at its last good value")
	assert.Equal(t, tracker.StateTracking, tr.State(), "tracking continues after a failed cycle")
}

func TestTracker_StartFetchErrorReturned(t *testing.T) {
	st := createPlayerStore(t)

	req := tracker.NewRowRequest("SELECT * FROM no_such_table")
	tr := tracker.New(st, st, req, rowComparator())

	err := tr.Start(context.Background())
	require.Error(t, err)
	assert.True(t, tracker.IsFetchError(err))
	assert.Equal(t, tracker.StateIdle, tr.State())
	assert.Nil(t, tr.CurrentSnapshot())
}

func TestTracker_StartDuplicateKeyError(t *testing.T) {
	st := createPlayerStore(t)
	insertPlayer(t, st, 1, "Arthur", 10)

	req := tracker.NewRowRequest(
		"SELECT id, name FROM players UNION ALL SELECT id, name FROM players")
	tr := tracker.New(st, st, req, rowComparator())

	err := tr.Start(context.Background())
	require.Error(t, err)
	assert.True(t, diff.IsDuplicateKeyError(err))
}

func TestTracker_LateObserverGetsSyntheticInitial(t *testing.T) {
	st := createPlayerStore(t)
	insertPlayer(t, st, 1, "Arthur", 10)

	req := tracker.NewRowRequest("SELECT id, name FROM players ORDER BY id")
	tr := tracker.New(st, st, req, rowComparator())
	t.Cleanup(tr.Stop)

	require.NoError(t, tr.Start(context.Background()))

	// Data changed before anyone was listening.
	_, err := st.Exec(context.Background(), "UPDATE players SET name = 'Craig' WHERE id = 1")
	require.NoError(t, err)

	obs := testutil.NewRecordingObserver[tracker.Row]()
	tr.TrackChanges(obs.Observer())

	cycle := obs.Wait(t)
	assert.Nil(t, cycle.Before, "late registration reports against no prior observation")
	assert.Equal(t, []string{"Craig"}, names(cycle.After))
}

func TestTracker_StartTwice(t *testing.T) {
	st := createPlayerStore(t)

	req := tracker.NewRowRequest("SELECT id, name FROM players ORDER BY id")
	tr := tracker.New(st, st, req, rowComparator())
	t.Cleanup(tr.Stop)

	require.NoError(t, tr.Start(context.Background()))
	err := tr.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracking")
}

func TestTracker_StopIsTerminal(t *testing.T) {
	st := createPlayerStore(t)

	req := tracker.NewRowRequest("SELECT id, name FROM players ORDER BY id")
	tr := tracker.New(st, st, req, rowComparator())

	require.NoError(t, tr.Start(context.Background()))
	assert.Equal(t, 1, st.SubscriberCount())

	tr.Stop()
	assert.Equal(t, tracker.StateStopped, tr.State())
	assert.Equal(t, 0, st.SubscriberCount(), "stop deregisters from the commit feed")

	tr.Stop() // idempotent

	err := tr.Start(context.Background())
	require.Error(t, err, "a stopped tracker cannot restart")
}

func TestTracker_SeqMonotonicAcrossCycles(t *testing.T) {
	st := createPlayerStore(t)

	req := tracker.NewRowRequest("SELECT id, name FROM players ORDER BY id")
	tr := tracker.New(st, st, req, rowComparator())
	t.Cleanup(tr.Stop)

	obs := testutil.NewRecordingObserver[tracker.Row]()
	tr.TrackChanges(obs.Observer())

	require.NoError(t, tr.Start(context.Background()))
	initial := obs.Wait(t)
	last := initial.After.Seq()

	for i, name := range []string{"Arthur", "Barbara", "Craig"} {
		insertPlayer(t, st, int64(i+1), name, 0)
		cycle := obs.Wait(t)
		assert.Greater(t, cycle.After.Seq(), last, "cycle numbers strictly increase")
		last = cycle.After.Seq()
	}

	assert.Equal(t, []string{"Arthur", "Barbara", "Craig"}, names(tr.CurrentSnapshot()))
}

func TestTracker_SideFetchTravelsWithSnapshot(t *testing.T) {
	st := createPlayerStore(t)
	insertPlayer(t, st, 1, "Arthur", 10)
	insertPlayer(t, st, 2, "Barbara", 90)

	req := tracker.NewRowRequest("SELECT id, name FROM players WHERE score >= 50 ORDER BY id")
	req.SideFetch = func(ctx context.Context, db tracker.Querier) (any, error) {
		rows, err := db.QueryContext(ctx, "SELECT COUNT(*) FROM players")
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var n int64
		rows.Next()
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		return n, rows.Err()
	}

	tr := tracker.New(st, st, req, rowComparator())
	t.Cleanup(tr.Stop)

	require.NoError(t, tr.Start(context.Background()))
	snap := tr.CurrentSnapshot()
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, int64(2), snap.SideValue())
}

func TestTracker_InitialCycleSerializedWithCommits(t *testing.T) {
	st := createPlayerStore(t)

	req := tracker.NewRowRequest("SELECT id, name FROM players ORDER BY id")
	tr := tracker.New(st, st, req, rowComparator())
	t.Cleanup(tr.Stop)

	release := make(chan struct{})
	dids := make(chan struct{}, 2)
	var mu sync.Mutex
	var order []string

	tr.TrackChanges(tracker.ChangeObserver[tracker.Row]{
		WillChange: func(before *tracker.Snapshot[tracker.Row]) {
			if before == nil {
				// Hold the initial cycle open while a commit lands.
				<-release
			}
			mu.Lock()
			if before == nil {
				order = append(order, "will initial")
			} else {
				order = append(order, "will commit")
			}
			mu.Unlock()
		},
		DidChange: func(after *tracker.Snapshot[tracker.Row]) {
			mu.Lock()
			order = append(order, fmt.Sprintf("did len=%d", after.Len()))
			mu.Unlock()
			dids <- struct{}{}
		},
	})

	require.NoError(t, tr.Start(context.Background()))

	// This commit lands while the initial willChange is still running.
	insertPlayer(t, st, 1, "Arthur", 10)
	close(release)

	for i := 0; i < 2; i++ {
		select {
		case <-dids:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for notification cycles")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t,
		[]string{"will initial", "did len=0", "will commit", "did len=1"},
		order,
		"the initial cycle completes before any commit cycle begins")
}

// gatedQuerier wraps a Querier and, when armed, blocks the next QueryContext
// until released. Later calls pass through.
type gatedQuerier struct {
	inner tracker.Querier

	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

func (q *gatedQuerier) arm() (entered <-chan struct{}, release func()) {
	gate := make(chan struct{})
	ent := make(chan struct{})
	q.mu.Lock()
	q.gate, q.entered = gate, ent
	q.mu.Unlock()
	return ent, func() { close(gate) }
}

func (q *gatedQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	q.mu.Lock()
	gate, entered := q.gate, q.entered
	q.gate, q.entered = nil, nil
	q.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}
	return q.inner.QueryContext(ctx, query, args...)
}

func TestTracker_StaleFetchDiscardedAfterSetRequest(t *testing.T) {
	st := createPlayerStore(t)
	insertPlayer(t, st, 1, "Arthur", 10)

	db := &gatedQuerier{inner: st}
	req := tracker.NewRowRequest("SELECT id, name FROM players ORDER BY id")
	tr := tracker.New(db, st, req, rowComparator())
	t.Cleanup(tr.Stop)

	require.NoError(t, tr.Start(context.Background()))

	obs := testutil.NewRecordingObserver[tracker.Row]()
	tr.TrackChanges(obs.Observer())
	obs.Wait(t) // synthetic initial

	// Block the re-fetch the next commit triggers.
	entered, release := db.arm()
	insertPlayer(t, st, 2, "Barbara", 20)
	<-entered

	// A newer request lands while the old request's fetch is in flight.
	tr.SetRequest(tracker.NewRowRequest(
		"SELECT id, name FROM players WHERE id = 2 ORDER BY id"))
	release()

	// The only cycle reported is the new request's, against the snapshot
	// from before the superseded fetch.
	cycle := obs.Wait(t)
	assert.Equal(t, []string{"Arthur"}, names(cycle.Before),
		"the superseded fetch result is never installed")
	assert.Equal(t, []string{"Barbara"}, names(cycle.After))

	obs.ExpectNone(t)
	assert.Equal(t, []string{"Barbara"}, names(tr.CurrentSnapshot()))
}
