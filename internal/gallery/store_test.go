package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/petermazzocco/ai-image-studio/internal/storage"
	"github.com/petermazzocco/ai-image-studio/models"
)

func newTestStore(t *testing.T) (*Store, *storage.Memory) {
	t.Helper()

	mem := storage.NewMemory()
	s := New(mem, slog.New(slog.NewTextHandler(io.Discard, nil)))

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s, mem
}

func prompts(list []models.SavedImage) []string {
	out := make([]string, len(list))
	for i, img := range list {
		out[i] = img.Prompt
	}
	return out
}

func TestKeyFor(t *testing.T) {
	if got := KeyFor("abc-123"); got != "images_abc-123" {
		t.Errorf("expected images_abc-123, got %s", got)
	}
}

func TestStore_LoadEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	list := s.Load(context.Background(), "u1")
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", list)
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "garbage", value: "{not json"},
		{name: "wrong shape", value: `{"id":"x"}`},
		{name: "null", value: "null"},
		{name: "empty", value: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mem := newTestStore(t)
			_ = mem.Set(context.Background(), string(KeyFor("u1")), []byte(tt.value))

			list := s.Load(context.Background(), "u1")
			if len(list) != 0 {
				t.Errorf("expected empty list, got %#v", list)
			}
		})
	}
}

func TestStore_AddPrependsWithUniqueIDs(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var list []models.SavedImage
	for i := 0; i < 20; i++ {
		var err error
		list, _, err = s.Add(ctx, "u1", NewImage{
			Prompt:   fmt.Sprintf("prompt %d", i),
			ImageURL: fmt.Sprintf("https://x/%d", i),
		})
		if err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
	}

	if len(list) != 20 {
		t.Fatalf("expected 20 images, got %d", len(list))
	}

	seen := make(map[string]bool)
	for i, img := range list {
		if seen[img.ID] {
			t.Errorf("duplicate id %s", img.ID)
		}
		seen[img.ID] = true

		if want := fmt.Sprintf("prompt %d", 19-i); img.Prompt != want {
			t.Errorf("position %d: expected %q, got %q", i, want, img.Prompt)
		}
		if i > 0 && !img.CreatedAt.Before(list[i-1].CreatedAt) {
			t.Errorf("position %d is not older than position %d", i, i-1)
		}
	}
}

func TestStore_AddRejectsBlankPrompt(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)

	_, _, err := s.Add(ctx, "u1", NewImage{Prompt: "   \n\t", ImageURL: "https://x/1"})
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
	if len(mem.Keys()) != 0 {
		t.Errorf("expected no writes, have keys %v", mem.Keys())
	}
}

func TestStore_AddPersists(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)

	_, rec, err := s.Add(ctx, "u1", NewImage{Prompt: "a cat", ImageURL: "https://x/1"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	reloaded := New(mem, nil).Load(ctx, "u1")
	if len(reloaded) != 1 || reloaded[0].ID != rec.ID {
		t.Fatalf("expected persisted record %s, got %#v", rec.ID, reloaded)
	}
	if !reloaded[0].CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("created_at did not survive: %v vs %v", reloaded[0].CreatedAt, rec.CreatedAt)
	}
}

func TestStore_GalleriesAreScopedPerUser(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)

	_, _, _ = s.Add(ctx, "alice", NewImage{Prompt: "a cat", ImageURL: "https://x/1"})
	_, _, _ = s.Add(ctx, "bob", NewImage{Prompt: "a dog", ImageURL: "https://x/2"})

	if got := prompts(s.Load(ctx, "alice")); len(got) != 1 || got[0] != "a cat" {
		t.Errorf("alice sees %v", got)
	}
	if got := prompts(s.Load(ctx, "bob")); len(got) != 1 || got[0] != "a dog" {
		t.Errorf("bob sees %v", got)
	}
	if len(mem.Keys()) != 2 {
		t.Errorf("expected two keys, have %v", mem.Keys())
	}
}

func TestStore_RemoveMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)

	before, _, _ := s.Add(ctx, "u1", NewImage{Prompt: "a cat", ImageURL: "https://x/1"})
	mem.FailWrites(true)

	res, err := s.Remove(ctx, "u1", "does-not-exist", "https://x/1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Removed || res.ClearActive {
		t.Errorf("expected not found, got %+v", res)
	}
	if len(res.Images) != len(before) || res.Images[0].ID != before[0].ID {
		t.Errorf("list changed: %#v", res.Images)
	}
}

func TestStore_RemoveKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var list []models.SavedImage
	for _, p := range []string{"one", "two", "three", "four"} {
		list, _, _ = s.Add(ctx, "u1", NewImage{Prompt: p, ImageURL: "https://x/" + p})
	}

	res, err := s.Remove(ctx, "u1", list[1].ID, "")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	got := prompts(res.Images)
	want := []string{"four", "two", "one"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestStore_RemovedNeverReappearsAfterReload(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)

	list, _, _ := s.Add(ctx, "u1", NewImage{Prompt: "a cat", ImageURL: "https://x/1"})
	list, _, _ = s.Add(ctx, "u1", NewImage{Prompt: "a dog", ImageURL: "https://x/2"})

	if _, err := s.Remove(ctx, "u1", list[1].ID, ""); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	for _, img := range New(mem, nil).Load(ctx, "u1") {
		if img.ID == list[1].ID {
			t.Fatalf("removed record %s came back", img.ID)
		}
	}
}

func TestStore_CatDogScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, cat, err := s.Add(ctx, "u1", NewImage{Prompt: "a cat", ImageURL: "https://x/1"})
	if err != nil {
		t.Fatalf("Add cat: %v", err)
	}
	list, dog, err := s.Add(ctx, "u1", NewImage{Prompt: "a dog", ImageURL: "https://x/2"})
	if err != nil {
		t.Fatalf("Add dog: %v", err)
	}
	if got := prompts(list); fmt.Sprint(got) != "[a dog a cat]" {
		t.Fatalf("expected [a dog a cat], got %v", got)
	}

	active := "https://x/2"

	res, err := s.Remove(ctx, "u1", cat.ID, active)
	if err != nil {
		t.Fatalf("Remove cat: %v", err)
	}
	if got := prompts(res.Images); fmt.Sprint(got) != "[a dog]" {
		t.Errorf("expected [a dog], got %v", got)
	}
	if res.ClearActive {
		t.Error("removing cat must not clear the active selection")
	}

	res, err = s.Remove(ctx, "u1", dog.ID, active)
	if err != nil {
		t.Fatalf("Remove dog: %v", err)
	}
	if len(res.Images) != 0 {
		t.Errorf("expected empty list, got %v", prompts(res.Images))
	}
	if !res.ClearActive {
		t.Error("removing the active image must clear the active selection")
	}
}

func TestStore_PersistenceFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	mem.FailWrites(true)

	list, rec, err := s.Add(ctx, "u1", NewImage{Prompt: "a cat", ImageURL: "https://x/1"})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.UserID != "u1" {
		t.Errorf("expected *PersistenceError for u1, got %#v", err)
	}
	if len(list) != 1 || list[0].ID != rec.ID {
		t.Errorf("expected in-memory list to keep the record, got %#v", list)
	}
	if _, ok := s.Find(ctx, "u1", rec.ID); !ok {
		t.Error("expected Find to see the unsaved record")
	}
}

func TestStore_EmptyUserNeverWrites(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)

	if list := s.Load(ctx, ""); len(list) != 0 {
		t.Errorf("expected empty list, got %v", list)
	}
	list, _, err := s.Add(ctx, "", NewImage{Prompt: "a cat", ImageURL: "https://x/1"})
	if err != nil || len(list) != 0 {
		t.Errorf("expected no-op add, got %v %v", list, err)
	}
	res, err := s.Remove(ctx, "", "anything", "")
	if err != nil || res.Removed {
		t.Errorf("expected no-op remove, got %+v %v", res, err)
	}
	if len(mem.Keys()) != 0 {
		t.Errorf("expected no keys written, have %v", mem.Keys())
	}
}

func TestStore_DiscardRehydratesFromStorage(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)

	_, _, _ = s.Add(ctx, "u1", NewImage{Prompt: "a cat", ImageURL: "https://x/1"})
	mem.FailWrites(true)
	_, _, _ = s.Add(ctx, "u1", NewImage{Prompt: "a dog", ImageURL: "https://x/2"})
	mem.FailWrites(false)

	s.Discard("u1")

	if got := prompts(s.Load(ctx, "u1")); fmt.Sprint(got) != "[a cat]" {
		t.Errorf("expected only the persisted record after discard, got %v", got)
	}
}

// flakyStorage fails the next failGets reads, then behaves like its Memory.
type flakyStorage struct {
	*storage.Memory
	failGets int
}

func (f *flakyStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGets > 0 {
		f.failGets--
		return nil, false, errors.New("connection reset")
	}
	return f.Memory.Get(ctx, key)
}

func TestStore_ReadFailureNeverOverwritesStoredGallery(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	seed := New(mem, nil)
	for _, p := range []string{"one", "two", "three"} {
		if _, _, err := seed.Add(ctx, "u1", NewImage{Prompt: p, ImageURL: "https://x/" + p}); err != nil {
			t.Fatalf("seed %s: %v", p, err)
		}
	}

	flaky := &flakyStorage{Memory: mem, failGets: 1}
	s := New(flaky, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, _, err := s.Add(ctx, "u1", NewImage{Prompt: "four", ImageURL: "https://x/four"})
	if !errors.Is(err, ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
	if errors.Is(err, ErrPersistence) {
		t.Error("a refused add must not look like a degraded write")
	}
	if got := prompts(New(mem, nil).Load(ctx, "u1")); fmt.Sprint(got) != "[three two one]" {
		t.Fatalf("stored gallery changed after a failed read: %v", got)
	}

	list, _, err := s.Add(ctx, "u1", NewImage{Prompt: "four", ImageURL: "https://x/four"})
	if err != nil {
		t.Fatalf("Add after recovery: %v", err)
	}
	if got := prompts(list); fmt.Sprint(got) != "[four three two one]" {
		t.Errorf("expected the stored gallery to be extended, got %v", got)
	}
}

func TestStore_ReadFailureRefusesRemove(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	list, _, _ := New(mem, nil).Add(ctx, "u1", NewImage{Prompt: "a cat", ImageURL: "https://x/1"})

	s := New(&flakyStorage{Memory: mem, failGets: 1}, nil)
	if _, err := s.Remove(ctx, "u1", list[0].ID, ""); !errors.Is(err, ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
	if got := prompts(New(mem, nil).Load(ctx, "u1")); fmt.Sprint(got) != "[a cat]" {
		t.Errorf("stored gallery changed: %v", got)
	}
}

func TestStore_LoadReadFailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	_, _, _ = New(mem, nil).Add(ctx, "u1", NewImage{Prompt: "a cat", ImageURL: "https://x/1"})

	s := New(&flakyStorage{Memory: mem, failGets: 1}, nil)
	if list := s.Load(ctx, "u1"); len(list) != 0 {
		t.Fatalf("expected empty list on read failure, got %v", prompts(list))
	}
	if got := prompts(s.List(ctx, "u1")); fmt.Sprint(got) != "[a cat]" {
		t.Errorf("expected the next access to read storage again, got %v", got)
	}
}

func TestStore_ListKeepsUnsavedRecords(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)

	mem.FailWrites(true)
	_, rec, err := s.Add(ctx, "u1", NewImage{Prompt: "a cat", ImageURL: "https://x/1"})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}

	list := s.List(ctx, "u1")
	if len(list) != 1 || list[0].ID != rec.ID {
		t.Errorf("expected the unsaved record to stay listed, got %v", prompts(list))
	}
}

func TestStore_RemovingLastRecordDeletesKey(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)

	_, rec, _ := s.Add(ctx, "u1", NewImage{Prompt: "a cat", ImageURL: "https://x/1"})
	if len(mem.Keys()) != 1 {
		t.Fatalf("expected one key, have %v", mem.Keys())
	}

	if _, err := s.Remove(ctx, "u1", rec.ID, ""); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if len(mem.Keys()) != 0 {
		t.Errorf("expected key to be deleted, have %v", mem.Keys())
	}
	if list := s.Load(ctx, "u1"); len(list) != 0 {
		t.Errorf("expected empty gallery, got %v", prompts(list))
	}
}
