package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault-backend/internal/access"
	"docvault-backend/internal/documents"
	"docvault-backend/internal/users"
)

type recordingScheduler struct {
	mu   sync.Mutex
	jobs []CompletionJob
	err  error
}

func (s *recordingScheduler) Schedule(_ context.Context, job CompletionJob, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *recordingScheduler) drain() []CompletionJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.jobs
	s.jobs = nil
	return out
}

type fixture struct {
	svc   *Service
	repo  *MemoryRepo
	docs  *documents.MemoryRepo
	users *users.MemoryRepo
	sched *recordingScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	docs := documents.NewMemoryRepo()
	usrs := users.NewMemoryRepo()
	repo := NewMemoryRepo(docs, usrs)
	sched := &recordingScheduler{}
	tick := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	svc := &Service{
		Repo:       repo,
		Documents:  docs,
		Users:      usrs,
		Scheduler:  sched,
		Resolver:   DeterministicResolver{},
		Delay:      time.Second,
		RetryRearm: true,
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			tick = tick.Add(time.Second)
			return tick
		},
	}
	f := &fixture{svc: svc, repo: repo, docs: docs, users: usrs, sched: sched}
	f.addUser(t, "admin-1", "admin@document.com", access.RoleAdmin, true)
	f.addUser(t, "editor-yes", "ed@example.com", access.RoleEditor, true)
	f.addUser(t, "editor-no", "ed2@example.com", access.RoleEditor, false)
	f.addUser(t, "viewer-1", "view@example.com", access.RoleViewer, true)
	return f
}

func (f *fixture) addUser(t *testing.T, id, email string, role access.Role, entitled bool) {
	t.Helper()
	require.NoError(t, f.users.Create(context.Background(), users.User{
		ID:                  id,
		Username:            id,
		Email:               email,
		PasswordHash:        "x",
		Role:                role,
		CanTriggerIngestion: entitled,
	}))
}

func (f *fixture) addDoc(t *testing.T, id, title string) {
	t.Helper()
	require.NoError(t, f.docs.Create(context.Background(), documents.Document{
		ID:      id,
		OwnerID: "admin-1",
		Title:   title,
		Status:  documents.StatusUploaded,
	}))
}

func (f *fixture) fire(t *testing.T) {
	t.Helper()
	for _, job := range f.sched.drain() {
		require.NoError(t, f.svc.Complete(context.Background(), job))
	}
}

func principal(id string, role access.Role) access.Principal {
	return access.Principal{UserID: id, Role: role}
}

func assertPolicy(t *testing.T, err error, sentinel error, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	var pe *PolicyError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, msg, pe.Message)
}

func TestTriggerCompletesAndMarksDocumentIngested(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDoc(t, "d1", "Quarterly Report")

	res, err := f.svc.Trigger(ctx, principal("admin-1", access.RoleAdmin), "d1")
	require.NoError(t, err)
	require.NotEmpty(t, res.IngestionID)

	log, err := f.repo.GetByID(ctx, res.IngestionID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, log.Status)
	assert.Equal(t, 1, log.Attempt)

	f.fire(t)

	log, err = f.repo.GetByID(ctx, res.IngestionID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, log.Status)
	assert.Equal(t, MsgCompleted, log.Message)

	doc, err := f.docs.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, documents.StatusIngested, doc.Status)
}

func TestTriggerPolicy(t *testing.T) {
	cases := []struct {
		name     string
		userID   string
		docID    string
		sentinel error
		msg      string
	}{
		{"admin", "admin-1", "d1", nil, ""},
		{"entitled editor", "editor-yes", "d1", nil, ""},
		{"editor without entitlement", "editor-no", "d1", ErrForbidden, MsgTriggerForbidden},
		{"viewer even with flag", "viewer-1", "d1", ErrForbidden, MsgTriggerForbidden},
		{"missing document", "admin-1", "nope", ErrNotFound, MsgDocumentNotFound},
		{"missing user", "ghost", "d1", ErrNotFound, MsgUserNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.addDoc(t, "d1", "Doc")
			// The token role is ignored in favour of the stored user.
			_, err := f.svc.Trigger(context.Background(), principal(tc.userID, access.RoleAdmin), tc.docID)
			if tc.sentinel == nil {
				require.NoError(t, err)
				return
			}
			assertPolicy(t, err, tc.sentinel, tc.msg)
		})
	}
}

func TestTriggerRejectsSecondOpenLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDoc(t, "d1", "Doc")
	admin := principal("admin-1", access.RoleAdmin)

	_, err := f.svc.Trigger(ctx, admin, "d1")
	require.NoError(t, err)
	_, err = f.svc.Trigger(ctx, admin, "d1")
	assertPolicy(t, err, ErrConflict, MsgAlreadyOpen)

	f.fire(t)
	_, err = f.svc.Trigger(ctx, admin, "d1")
	assert.NoError(t, err, "a terminal log frees the document")
}

func TestConcurrentTriggersYieldOneSuccess(t *testing.T) {
	f := newFixture(t)
	f.addDoc(t, "d1", "Doc")
	admin := principal("admin-1", access.RoleAdmin)

	const n = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Trigger(context.Background(), admin, "d1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
}

func TestSchedulerFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.addDoc(t, "d1", "Doc")
	f.sched.err = errors.New("redis down")

	_, err := f.svc.Trigger(context.Background(), principal("admin-1", access.RoleAdmin), "d1")
	require.Error(t, err)
	var pe *PolicyError
	assert.False(t, errors.As(err, &pe))
}

func TestCompletionAfterCancelIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDoc(t, "d1", "Doc")
	admin := principal("admin-1", access.RoleAdmin)

	res, err := f.svc.Trigger(ctx, admin, "d1")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, admin, res.IngestionID)
	require.NoError(t, err)

	f.fire(t)

	log, err := f.repo.GetByID(ctx, res.IngestionID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, log.Status)
	assert.Equal(t, MsgCancelledByUser, log.Message)
	doc, err := f.docs.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, documents.StatusUploaded, doc.Status)
}

func TestRetryRearmsNewAttemptAndDropsOldOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDoc(t, "d1", "Doc")
	admin := principal("admin-1", access.RoleAdmin)

	res, err := f.svc.Trigger(ctx, admin, "d1")
	require.NoError(t, err)
	first := f.sched.drain()
	require.Len(t, first, 1)

	log, err := f.svc.Retry(ctx, admin, res.IngestionID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, log.Status)
	assert.Equal(t, 2, log.Attempt)
	assert.Equal(t, MsgRetrying, log.Message)

	// The first attempt's timer lands late and must not resolve the log.
	require.NoError(t, f.svc.Complete(ctx, first[0]))
	log, err = f.repo.GetByID(ctx, res.IngestionID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, log.Status)

	f.fire(t)
	log, err = f.repo.GetByID(ctx, res.IngestionID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, log.Status)
	assert.True(t, log.Status.IsTerminal())
}

func TestRetryWithoutRearmLeavesPending(t *testing.T) {
	f := newFixture(t)
	f.svc.RetryRearm = false
	ctx := context.Background()
	f.addDoc(t, "d1", "Doc")
	admin := principal("admin-1", access.RoleAdmin)

	res, err := f.svc.Trigger(ctx, admin, "d1")
	require.NoError(t, err)
	f.fire(t)

	_, err = f.svc.Retry(ctx, admin, res.IngestionID)
	require.NoError(t, err)
	assert.Empty(t, f.sched.drain())

	log, err := f.repo.GetByID(ctx, res.IngestionID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, log.Status)
}

func TestRetryRejectsWhenAnotherLogIsOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDoc(t, "d1", "Doc")
	admin := principal("admin-1", access.RoleAdmin)

	first, err := f.svc.Trigger(ctx, admin, "d1")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, admin, first.IngestionID)
	require.NoError(t, err)
	_, err = f.svc.Trigger(ctx, admin, "d1")
	require.NoError(t, err)

	_, err = f.svc.Retry(ctx, admin, first.IngestionID)
	assertPolicy(t, err, ErrConflict, MsgAlreadyOpen)

	_, err = f.svc.Retry(ctx, admin, "missing")
	assertPolicy(t, err, ErrNotFound, MsgLogNotFound)
}

func TestCancelRules(t *testing.T) {
	ctx := context.Background()
	admin := principal("admin-1", access.RoleAdmin)

	for _, terminal := range []Status{StatusCompleted, StatusFailed} {
		t.Run(string(terminal), func(t *testing.T) {
			f := newFixture(t)
			f.addDoc(t, "d1", "Doc")
			f.svc.Resolver = fixedResolver(terminal)
			res, err := f.svc.Trigger(ctx, admin, "d1")
			require.NoError(t, err)
			f.fire(t)

			_, err = f.svc.Cancel(ctx, admin, res.IngestionID)
			assertPolicy(t, err, ErrForbidden, MsgCannotCancel)
		})
	}

	t.Run("cancel twice", func(t *testing.T) {
		f := newFixture(t)
		f.addDoc(t, "d1", "Doc")
		res, err := f.svc.Trigger(ctx, admin, "d1")
		require.NoError(t, err)
		_, err = f.svc.Cancel(ctx, admin, res.IngestionID)
		require.NoError(t, err)
		log, err := f.svc.Cancel(ctx, admin, res.IngestionID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, log.Status)
	})

	t.Run("missing", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Cancel(ctx, admin, "missing")
		assertPolicy(t, err, ErrNotFound, MsgLogNotFound)
	})
}

type fixedResolver Status

func (r fixedResolver) Resolve() Status { return Status(r) }

func TestFailedCompletionLeavesDocumentUploaded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDoc(t, "d1", "Doc")
	f.svc.Resolver = fixedResolver(StatusFailed)

	res, err := f.svc.Trigger(ctx, principal("admin-1", access.RoleAdmin), "d1")
	require.NoError(t, err)
	f.fire(t)

	log, err := f.repo.GetByID(ctx, res.IngestionID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, log.Status)
	assert.Equal(t, MsgFailed, log.Message)
	doc, err := f.docs.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, documents.StatusUploaded, doc.Status)
}

func TestStatusResolvesDocumentAndUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDoc(t, "d1", "Handbook")

	res, err := f.svc.Trigger(ctx, principal("editor-yes", access.RoleEditor), "d1")
	require.NoError(t, err)

	detail, err := f.svc.Status(ctx, res.IngestionID)
	require.NoError(t, err)
	require.NotNil(t, detail.Document)
	require.NotNil(t, detail.User)
	assert.Equal(t, "Handbook", detail.Document.Title)
	assert.Equal(t, "ed@example.com", detail.User.Email)

	_, err = f.svc.Status(ctx, "missing")
	assertPolicy(t, err, ErrNotFound, MsgLogNotFound)
}

func TestHistoryFiltersSearchAndPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := principal("admin-1", access.RoleAdmin)
	f.addDoc(t, "d1", "Annual Report")
	f.addDoc(t, "d2", "Invoice")
	f.addDoc(t, "d3", "report appendix")

	for _, id := range []string{"d1", "d2"} {
		_, err := f.svc.Trigger(ctx, admin, id)
		require.NoError(t, err)
	}
	f.fire(t)
	_, err := f.svc.Trigger(ctx, principal("editor-yes", access.RoleEditor), "d3")
	require.NoError(t, err)

	all, total, err := f.svc.History(ctx, HistoryQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "report appendix", all[0].DocumentTitle, "newest first")
	assert.Equal(t, "ed@example.com", all[0].TriggeredBy)

	completed, total, err := f.svc.History(ctx, HistoryQuery{Page: 1, Limit: 10, Status: StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, e := range completed {
		assert.Equal(t, StatusCompleted, e.Status)
	}

	found, total, err := f.svc.History(ctx, HistoryQuery{Page: 1, Limit: 10, Search: "Report"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, e := range found {
		assert.Contains(t, []string{"Annual Report", "report appendix"}, e.DocumentTitle)
	}

	page2, total, err := f.svc.History(ctx, HistoryQuery{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page2, 1)

	require.NoError(t, f.docs.Delete(ctx, "d2"))
	orphaned, _, err := f.svc.History(ctx, HistoryQuery{Page: 1, Limit: 10, Status: StatusCompleted})
	require.NoError(t, err)
	titles := []string{}
	for _, e := range orphaned {
		titles = append(titles, e.DocumentTitle)
	}
	assert.Contains(t, titles, UnknownDocument)
}

func TestParseHistoryStatus(t *testing.T) {
	for raw, want := range map[string]Status{"": "", "all": "", "ALL": "", "completed": StatusCompleted, "in-progress": StatusInProgress} {
		got, err := ParseHistoryStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseHistoryStatus("done")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDeleteByDocumentPurgesLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDoc(t, "d1", "Doc")
	res, err := f.svc.Trigger(ctx, principal("admin-1", access.RoleAdmin), "d1")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteByDocument(ctx, "d1"))
	_, err = f.repo.GetByID(ctx, res.IngestionID)
	assert.ErrorIs(t, err, ErrNotFound)

	// A late completion for a purged log is a no-op.
	f.fire(t)
}

func TestHistoryOrdersSameInstantByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	same := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"l2", "l3", "l1"} {
		doc := fmt.Sprintf("d%d", i)
		f.addDoc(t, doc, "Plan_"+id)
		require.NoError(t, f.repo.CreateOpen(ctx, Log{ID: id, DocumentID: doc, Status: StatusPending, CreatedAt: same}))
	}

	for i := 0; i < 5; i++ {
		entries, total, err := f.svc.History(ctx, HistoryQuery{Page: 1, Limit: 10, Search: "plan_"})
		require.NoError(t, err)
		require.Equal(t, 3, total)
		assert.Equal(t, []string{"l3", "l2", "l1"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
	}

	_, total, err := f.svc.History(ctx, HistoryQuery{Page: 1, Limit: 10, Search: "plan%"})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}
