// Package gallery keeps each user's newest-first list of generated images and
// writes it through to a storage backend after every change.
package gallery

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/petermazzocco/ai-image-studio/internal/storage"
	"github.com/petermazzocco/ai-image-studio/models"
)

// NewImage is what a caller hands to Add after a successful generation.
type NewImage struct {
	Prompt   string
	ImageURL string
}

// RemoveResult describes the outcome of Remove.
type RemoveResult struct {
	Images []models.SavedImage
	// Removed is false when no record had the requested id.
	Removed bool
	// ClearActive is true when the removed record's URL was the active one.
	ClearActive bool
}

// Store owns the in-memory galleries of signed-in users. Calls for the same
// user are serialised; different users proceed independently.
type Store struct {
	storage storage.Storage
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	mu    sync.Mutex
	lists map[string][]models.SavedImage
	locks map[string]*sync.Mutex
}

func New(st storage.Storage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		storage: st,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		lists:   make(map[string][]models.SavedImage),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Store) lock(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Store) cached(userID string) ([]models.SavedImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.lists[userID]
	return list, ok
}

func (s *Store) setCached(userID string, list []models.SavedImage) {
	s.mu.Lock()
	s.lists[userID] = list
	s.mu.Unlock()
}

// Load rehydrates the user's gallery from storage. A missing key, a read
// failure or content that does not parse all yield an empty gallery; a failed
// read is not cached, so the next call tries storage again.
func (s *Store) Load(ctx context.Context, userID string) []models.SavedImage {
	if userID == "" {
		return []models.SavedImage{}
	}
	unlock := s.lock(userID)
	defer unlock()

	list, err := s.read(ctx, userID)
	if err != nil {
		s.Discard(userID)
		return []models.SavedImage{}
	}
	s.setCached(userID, list)
	return clone(list)
}

// List returns the in-memory gallery, reading storage only when the user has
// none yet. Unsaved mutations stay visible.
func (s *Store) List(ctx context.Context, userID string) []models.SavedImage {
	if userID == "" {
		return []models.SavedImage{}
	}
	unlock := s.lock(userID)
	defer unlock()

	list, err := s.current(ctx, userID)
	if err != nil {
		return []models.SavedImage{}
	}
	return clone(list)
}

// read only fails when the backend does. Missing or unparsable content is an
// empty gallery.
func (s *Store) read(ctx context.Context, userID string) ([]models.SavedImage, error) {
	key := string(KeyFor(userID))
	data, found, err := s.storage.Get(ctx, key)
	if err != nil {
		s.logger.Warn("gallery read failed", slog.String("key", key), slog.Any("error", err))
		return nil, &ReadError{UserID: userID, Err: err}
	}
	if !found {
		return []models.SavedImage{}, nil
	}

	var list []models.SavedImage
	if err := json.Unmarshal(data, &list); err != nil {
		s.logger.Debug("discarding unparsable gallery", slog.String("key", key), slog.Any("error", err))
		return []models.SavedImage{}, nil
	}
	if list == nil {
		list = []models.SavedImage{}
	}
	return list, nil
}

func (s *Store) current(ctx context.Context, userID string) ([]models.SavedImage, error) {
	if list, ok := s.cached(userID); ok {
		return list, nil
	}
	list, err := s.read(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.setCached(userID, list)
	return list, nil
}

// Add records a freshly generated image at the front of the gallery and
// persists the result. On a *PersistenceError the returned gallery is still
// the updated one. On a *ReadError nothing changes.
func (s *Store) Add(ctx context.Context, userID string, img NewImage) ([]models.SavedImage, models.SavedImage, error) {
	if userID == "" {
		return []models.SavedImage{}, models.SavedImage{}, nil
	}
	if strings.TrimSpace(img.Prompt) == "" {
		return nil, models.SavedImage{}, ErrEmptyPrompt
	}
	unlock := s.lock(userID)
	defer unlock()

	record := models.SavedImage{
		ID:        s.newID(),
		Prompt:    img.Prompt,
		ImageURL:  img.ImageURL,
		CreatedAt: s.now(),
	}

	list, err := s.current(ctx, userID)
	if err != nil {
		return nil, models.SavedImage{}, err
	}
	updated := make([]models.SavedImage, 0, len(list)+1)
	updated = append(updated, record)
	updated = append(updated, list...)
	s.setCached(userID, updated)

	err = s.Persist(ctx, userID, updated)
	return clone(updated), record, err
}

// Remove deletes the record with the given id, keeping the order of the rest.
// An unknown id leaves the gallery untouched and writes nothing. active is the
// URL currently shown to the user.
func (s *Store) Remove(ctx context.Context, userID, id, active string) (RemoveResult, error) {
	if userID == "" {
		return RemoveResult{Images: []models.SavedImage{}}, nil
	}
	unlock := s.lock(userID)
	defer unlock()

	list, err := s.current(ctx, userID)
	if err != nil {
		return RemoveResult{}, err
	}
	idx := -1
	for i, img := range list {
		if img.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return RemoveResult{Images: clone(list)}, nil
	}

	removed := list[idx]
	updated := make([]models.SavedImage, 0, len(list)-1)
	updated = append(updated, list[:idx]...)
	updated = append(updated, list[idx+1:]...)
	s.setCached(userID, updated)

	res := RemoveResult{
		Images:      clone(updated),
		Removed:     true,
		ClearActive: active != "" && removed.ImageURL == active,
	}
	return res, s.Persist(ctx, userID, updated)
}

// Find returns the record with the given id from the user's gallery.
func (s *Store) Find(ctx context.Context, userID, id string) (models.SavedImage, bool) {
	if userID == "" {
		return models.SavedImage{}, false
	}
	unlock := s.lock(userID)
	defer unlock()

	list, err := s.current(ctx, userID)
	if err != nil {
		return models.SavedImage{}, false
	}
	for _, img := range list {
		if img.ID == id {
			return img, true
		}
	}
	return models.SavedImage{}, false
}

// Persist writes the whole list under the user's key in a single storage call.
// An empty list deletes the key.
func (s *Store) Persist(ctx context.Context, userID string, list []models.SavedImage) error {
	if userID == "" {
		return nil
	}
	key := string(KeyFor(userID))
	if len(list) == 0 {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Error("gallery delete failed", slog.String("user_id", userID), slog.Any("error", err))
			return &PersistenceError{UserID: userID, Err: err}
		}
		return nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return &PersistenceError{UserID: userID, Err: err}
	}
	if err := s.storage.Set(ctx, key, data); err != nil {
		s.logger.Error("gallery write failed", slog.String("user_id", userID), slog.Any("error", err))
		return &PersistenceError{UserID: userID, Err: err}
	}
	return nil
}

// Discard forgets the in-memory gallery without touching storage. Called on
// sign-out.
func (s *Store) Discard(userID string) {
	s.mu.Lock()
	delete(s.lists, userID)
	s.mu.Unlock()
}

func clone(list []models.SavedImage) []models.SavedImage {
	out := make([]models.SavedImage, len(list))
	copy(out, list)
	return out
}
