package documents

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docvault-backend/internal/access"
	"docvault-backend/internal/shared/storage/object/local"
)

type recordingPurger struct {
	calls []string
}

func (p *recordingPurger) DeleteByDocument(_ context.Context, documentID string) error {
	p.calls = append(p.calls, documentID)
	return nil
}

func newTestService(t *testing.T) (*Service, string, *recordingPurger) {
	t.Helper()
	dir := t.TempDir()
	purger := &recordingPurger{}
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Service{
		Store: local.New(dir),
		Repo:  NewMemoryRepo(),
		Logs:  purger,
		Now: func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		},
	}, dir, purger
}

var (
	admin  = access.Principal{UserID: "admin-1", Role: access.RoleAdmin}
	editor = access.Principal{UserID: "editor-1", Role: access.RoleEditor}
	viewer = access.Principal{UserID: "viewer-1", Role: access.RoleViewer}
)

func upload(t *testing.T, svc *Service, actor access.Principal, title, name, body string) Document {
	t.Helper()
	doc, err := svc.Create(context.Background(), actor, CreateInput{
		Title: title,
		File:  &FileInput{Name: name, ContentType: "application/octet-stream", Body: strings.NewReader(body)},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return doc
}

func TestCreateRecordsUploadedDocument(t *testing.T) {
	svc, dir, _ := newTestService(t)
	doc := upload(t, svc, viewer, "  Quarterly Report ", "report.txt", "hello world")

	if doc.Status != StatusUploaded {
		t.Fatalf("expected uploaded, got %s", doc.Status)
	}
	if doc.Title != "Quarterly Report" || doc.OwnerID != viewer.UserID {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.StorageLocation != local.Kind || !strings.HasPrefix(doc.FilePath, "uploads/") {
		t.Fatalf("unexpected placement: %s %s", doc.StorageLocation, doc.FilePath)
	}
	if !strings.HasPrefix(doc.FileType, "text/plain") {
		t.Fatalf("expected sniffed text/plain, got %q", doc.FileType)
	}
	if doc.SizeBytes != int64(len("hello world")) {
		t.Fatalf("unexpected size %d", doc.SizeBytes)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(doc.FilePath))); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
}

func TestCreateKeepsDeclaredContentType(t *testing.T) {
	svc, _, _ := newTestService(t)
	doc, err := svc.Create(context.Background(), editor, CreateInput{
		Title: "Scan",
		File:  &FileInput{Name: "scan.pdf", ContentType: "application/pdf", Body: strings.NewReader("not really a pdf")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.FileType != "application/pdf" {
		t.Fatalf("expected declared type, got %q", doc.FileType)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	cases := []struct {
		name string
		in   CreateInput
	}{
		{"missing title", CreateInput{File: &FileInput{Name: "a.txt", Body: strings.NewReader("x")}}},
		{"missing file", CreateInput{Title: "A"}},
		{"blank file name", CreateInput{Title: "A", File: &FileInput{Body: strings.NewReader("x")}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), admin, tc.in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestUpdatePolicy(t *testing.T) {
	ctx := context.Background()
	title := "Renamed"

	cases := []struct {
		name     string
		actor    access.Principal
		ingested bool
		wantMsg  string
	}{
		{"viewer non-owner on uploaded", access.Principal{UserID: "other", Role: access.RoleViewer}, false, access.MsgUpdateNotAllowed},
		{"viewer owner on uploaded", viewer, false, ""},
		{"editor on uploaded", editor, false, ""},
		{"editor on ingested", editor, true, access.MsgIngestedAdminOnly},
		{"owner on ingested", viewer, true, access.MsgIngestedAdminOnly},
		{"admin on ingested", admin, true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			doc := upload(t, svc, viewer, "Original", "a.txt", "abc")
			if tc.ingested {
				if err := svc.Repo.SetStatus(ctx, doc.ID, StatusIngested); err != nil {
					t.Fatalf("mark ingested: %v", err)
				}
			}

			updated, err := svc.Update(ctx, tc.actor, doc.ID, UpdateInput{Title: &title})
			if tc.wantMsg != "" {
				var fe *ForbiddenError
				if !errors.As(err, &fe) || fe.Message != tc.wantMsg {
					t.Fatalf("expected forbidden %q, got %v", tc.wantMsg, err)
				}
				if !errors.Is(err, ErrForbidden) {
					t.Fatalf("expected ErrForbidden in chain")
				}
				return
			}
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if updated.Title != title {
				t.Fatalf("title not applied: %q", updated.Title)
			}
			if updated.Status != StatusUploaded {
				t.Fatalf("expected status uploaded after edit, got %s", updated.Status)
			}
		})
	}
}

func TestUpdateReplacesFileAndRemovesOldObject(t *testing.T) {
	ctx := context.Background()
	svc, dir, _ := newTestService(t)
	doc := upload(t, svc, editor, "Notes", "notes.txt", "first")

	updated, err := svc.Update(ctx, editor, doc.ID, UpdateInput{
		File: &FileInput{Name: "notes-v2.txt", Body: strings.NewReader("second version")},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.FilePath == doc.FilePath {
		t.Fatalf("expected new pointer")
	}
	if updated.FileName != "notes-v2.txt" || updated.SizeBytes != int64(len("second version")) {
		t.Fatalf("unexpected file metadata: %+v", updated)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(doc.FilePath))); !os.IsNotExist(err) {
		t.Fatalf("expected old object removed, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(updated.FilePath))); err != nil {
		t.Fatalf("new object missing: %v", err)
	}
}

func TestDeleteRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	svc, dir, purger := newTestService(t)
	doc := upload(t, svc, editor, "Doomed", "d.txt", "bye")

	if err := svc.Delete(ctx, editor, doc.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := svc.Delete(ctx, admin, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(purger.calls) != 1 || purger.calls[0] != doc.ID {
		t.Fatalf("expected logs purged for %s, got %v", doc.ID, purger.calls)
	}
	if _, err := svc.Get(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(doc.FilePath))); !os.IsNotExist(err) {
		t.Fatalf("expected object removed, stat err=%v", err)
	}
	if err := svc.Delete(ctx, admin, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestListSearchAndPaging(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	upload(t, svc, editor, "Annual Report", "a.txt", "a")
	upload(t, svc, editor, "Invoice", "b.txt", "b")
	upload(t, svc, editor, "report draft", "c.txt", "c")

	docs, total, err := svc.List(ctx, ListQuery{Page: 1, Limit: 10, Search: "REPORT"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(docs) != 2 {
		t.Fatalf("expected 2 matches, got total=%d len=%d", total, len(docs))
	}
	if docs[0].Title != "report draft" {
		t.Fatalf("expected newest first, got %q", docs[0].Title)
	}

	docs, total, err = svc.List(ctx, ListQuery{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(docs) != 1 || docs[0].Title != "Annual Report" {
		t.Fatalf("unexpected second page: total=%d docs=%+v", total, docs)
	}
}

func TestOpenStreamsStoredBytes(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	doc := upload(t, svc, editor, "Readme", "readme.txt", "contents here")

	_, rc, err := svc.Open(ctx, doc.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "contents here" {
		t.Fatalf("unexpected body %q", body)
	}
}

// completingRepo lets an ingestion completion land right after the first
// read Update makes, before its write.
type completingRepo struct {
	*MemoryRepo
	fired bool
}

func (r *completingRepo) GetByID(ctx context.Context, id string) (Document, error) {
	doc, err := r.MemoryRepo.GetByID(ctx, id)
	if err == nil && !r.fired {
		r.fired = true
		if err := r.MemoryRepo.SetStatus(ctx, id, StatusIngested); err != nil {
			return Document{}, err
		}
	}
	return doc, err
}

func TestUpdateRechecksPolicyWhenIngestionCompletesMidEdit(t *testing.T) {
	ctx := context.Background()
	svc, dir, _ := newTestService(t)
	doc := upload(t, svc, viewer, "Original", "a.txt", "abc")
	repo := &completingRepo{MemoryRepo: svc.Repo.(*MemoryRepo)}
	svc.Repo = repo

	title := "Renamed"
	_, err := svc.Update(ctx, editor, doc.ID, UpdateInput{
		Title: &title,
		File:  &FileInput{Name: "b.txt", Body: strings.NewReader("replacement")},
	})
	var fe *ForbiddenError
	if !errors.As(err, &fe) || fe.Message != access.MsgIngestedAdminOnly {
		t.Fatalf("expected ingested denial after re-read, got %v", err)
	}

	got, err := repo.MemoryRepo.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusIngested {
		t.Fatalf("completion was overwritten, status=%s", got.Status)
	}
	if got.Title != "Original" || got.FilePath != doc.FilePath {
		t.Fatalf("denied edit leaked into row: %+v", got)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected replacement object discarded, found %d objects", len(entries))
	}
}

func TestUpdateAdminResetSurvivesConcurrentCompletion(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	doc := upload(t, svc, viewer, "Original", "a.txt", "abc")
	svc.Repo = &completingRepo{MemoryRepo: svc.Repo.(*MemoryRepo)}

	title := "Admin edit"
	updated, err := svc.Update(ctx, admin, doc.ID, UpdateInput{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title || updated.Status != StatusUploaded {
		t.Fatalf("expected admin edit to reset status, got %+v", updated)
	}
}

func TestMemoryRepoUpdateGuardsStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	doc := Document{ID: "d1", OwnerID: "u1", Title: "t", Status: StatusIngested}
	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("create: %v", err)
	}
	doc.Title = "changed"
	if err := repo.Update(ctx, doc, StatusUploaded); !errors.Is(err, ErrStatusChanged) {
		t.Fatalf("expected ErrStatusChanged, got %v", err)
	}
	if err := repo.Update(ctx, Document{ID: "missing"}, StatusUploaded); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepoListOrdersTiesByID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	same := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"b", "c", "a"} {
		if err := repo.Create(ctx, Document{ID: id, Title: "100% plan " + id, CreatedAt: same}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := repo.Create(ctx, Document{ID: "z", Title: "1000 plans", CreatedAt: same.Add(-time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 5; i++ {
		docs, total, err := repo.List(ctx, ListQuery{Page: 1, Limit: 10, Search: "100%"})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if total != 3 {
			t.Fatalf("percent sign should match literally, got %d matches", total)
		}
		if docs[0].ID != "c" || docs[1].ID != "b" || docs[2].ID != "a" {
			t.Fatalf("unexpected order: %s %s %s", docs[0].ID, docs[1].ID, docs[2].ID)
		}
	}
}
