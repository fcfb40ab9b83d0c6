package storage

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"parley/internal/models"
)

type FileMetadata struct {
	ID        string `msgpack:"id"`
	Hash      string `msgpack:"hash"`
	MimeType  string `msgpack:"mimeType"`
	Name      string `msgpack:"name"`
	Size      int64  `msgpack:"size"`
	CreatedAt int64  `msgpack:"createdAt"`
	UserID    string `msgpack:"userId"`
}

func (f *FileMetadata) Key() []byte {
	return []byte(f.ID)
}

func (f *FileMetadata) MarshalBinary() (data []byte, err error) {
	type alias FileMetadata
	return msgpack.Marshal((*alias)(f))
}

func (f *FileMetadata) UnmarshalBinary(data []byte) error {
	type alias FileMetadata
	return msgpack.Unmarshal(data, (*alias)(f))
}

func (s *BboltStorage) UpsertFileMetadata(ctx context.Context, meta FileMetadata) error {
	return s.Update(ctx, func(tx *Tx) error {
		return put(tx.tx.Bucket(bucketFiles), &meta)
	})
}

func (s *BboltStorage) GetFileMetadata(ctx context.Context, id string) (FileMetadata, error) {
	var meta FileMetadata
	err := s.View(ctx, func(tx *Tx) error {
		ok, err := get(tx.tx.Bucket(bucketFiles), []byte(id), &meta)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: file %s", models.ErrNotFound, id)
		}
		return nil
	})
	return meta, err
}
