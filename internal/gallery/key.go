package gallery

// StorageKey names the persisted value holding one user's gallery.
type StorageKey string

const keyPrefix = "images_"

// KeyFor is the only place a storage key is derived from a user id.
func KeyFor(userID string) StorageKey {
	return StorageKey(keyPrefix + userID)
}
