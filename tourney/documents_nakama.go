package tourney

import (
	"context"
	"encoding/json"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

const tourneyStorageCollection = "tourney"

// NakamaStorage is the slice of runtime.NakamaModule the storage backend needs.
type NakamaStorage interface {
	StorageRead(ctx context.Context, objectIDs []*runtime.StorageRead) ([]*api.StorageObject, error)
	StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error)
	StorageDelete(ctx context.Context, deletes []*runtime.StorageDelete) error
}

// NakamaDocumentStore saves each document as a system-owned storage object.
type NakamaDocumentStore struct {
	nk         NakamaStorage
	collection string
}

func NewNakamaDocumentStore(nk NakamaStorage) *NakamaDocumentStore {
	return &NakamaDocumentStore{nk: nk, collection: tourneyStorageCollection}
}

func (n *NakamaDocumentStore) Load(ctx context.Context, name string) (Document, error) {
	objects, err := n.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: n.collection,
		Key:        name,
	}})
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 || objects[0].Value == "" {
		return nil, ErrDocumentNotFound
	}
	return decodeDocument([]byte(objects[0].Value))
}

func (n *NakamaDocumentStore) Save(ctx context.Context, name string, doc Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	return n.write(ctx, name, string(data))
}

// Quarantine copies the stored value under name+".corrupt", then deletes the original object.
// Storage values must be JSON objects, so the unreadable text is kept as a string field.
func (n *NakamaDocumentStore) Quarantine(ctx context.Context, name string) error {
	objects, err := n.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: n.collection,
		Key:        name,
	}})
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return ErrDocumentNotFound
	}
	wrapped, err := json.Marshal(map[string]string{"raw": objects[0].Value})
	if err != nil {
		return err
	}
	if err := n.write(ctx, name+corruptSuffix, string(wrapped)); err != nil {
		return err
	}
	return n.nk.StorageDelete(ctx, []*runtime.StorageDelete{{
		Collection: n.collection,
		Key:        name,
	}})
}

func (n *NakamaDocumentStore) write(ctx context.Context, key, value string) error {
	_, err := n.nk.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection:      n.collection,
		Key:             key,
		Value:           value,
		PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}})
	return err
}
