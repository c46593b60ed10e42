package filestore

import (
	"context"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"google.golang.org/api/option"
)

var _ FileStore = GoogleFileStore{}

type GoogleFileStore struct {
	storageHost string
	client      *storage.Client
}

func NewGoogleFileStore(ctx context.Context, storageHost string, opts ...option.ClientOption) (GoogleFileStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return GoogleFileStore{}, cerr.Wrap(err).Error("Failed to create cloud storage client")
	}

	return GoogleFileStore{
		storageHost: storageHost,
		client:      client,
	}, nil
}

func (g GoogleFileStore) WriteFile(ctx context.Context, fileURL string, fileContent []byte) error {
	bucket, object, err := g.splitFileURL(fileURL)
	if err != nil {
		return cerr.Wrap(err).Error("Failed to parse file URL")
	}

	writer := g.client.Bucket(bucket).Object(object).NewWriter(ctx)

	if _, err := writer.Write(fileContent); err != nil {
		_ = writer.Close()
		return cerr.Field("file_url", fileURL).
			Wrap(err).Error("Failed to write contents to cloud storage")
	}

	if err := writer.Close(); err != nil {
		return cerr.Field("file_url", fileURL).
			Wrap(err).Error("Failed to flush contents to cloud storage")
	}

	return nil
}

func (g GoogleFileStore) GetFile(ctx context.Context, fileURL string) ([]byte, error) {
	bucket, object, err := g.splitFileURL(fileURL)
	if err != nil {
		return nil, cerr.Wrap(err).Error("Failed to parse file URL")
	}

	reader, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, cerr.Field("file_url", fileURL).
			Wrap(err).Error("Failed to open cloud storage object")
	}
	defer reader.Close()

	contents, err := io.ReadAll(reader)
	if err != nil {
		return nil, cerr.Field("file_url", fileURL).
			Wrap(err).Error("Failed to read cloud storage object")
	}

	return contents, nil
}

// splitFileURL breaks <host>/<bucket>/<object path> apart.
func (g GoogleFileStore) splitFileURL(fileURL string) (string, string, error) {
	if !strings.HasPrefix(fileURL, g.storageHost+"/") {
		return "", "", cerr.Field("file_url", fileURL).
			Field("storage_host", g.storageHost).
			Error("File URL does not belong to this storage host")
	}

	remainder := strings.TrimPrefix(fileURL, g.storageHost+"/")
	bucket, object, found := strings.Cut(remainder, "/")
	if !found || bucket == "" || object == "" {
		return "", "", cerr.Field("file_url", fileURL).
			Error("File URL is missing a bucket or object path")
	}

	return bucket, object, nil
}
