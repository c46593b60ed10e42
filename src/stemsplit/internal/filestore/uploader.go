package filestore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/lib/storagepath"
)

// Uploader mirrors a run's stem files to the remote file store.
type Uploader struct {
	fileStore     FileStore
	pathGenerator storagepath.Generator
}

func NewUploader(fileStore FileStore, pathGenerator storagepath.Generator) Uploader {
	return Uploader{
		fileStore:     fileStore,
		pathGenerator: pathGenerator,
	}
}

// UploadStems writes each stem file to the remote store and returns the
// remote URL per stem label.
func (u Uploader) UploadStems(ctx context.Context, runID string, stemPaths map[string]string) (map[string]string, error) {
	remoteURLs := map[string]string{}

	for label, localPath := range stemPaths {
		errctx := cerr.Field("run_id", runID).
			Field("stem_label", label).
			Field("local_path", localPath)

		contents, err := os.ReadFile(localPath)
		if err != nil {
			return nil, errctx.Wrap(err).Error("Failed to read stem file for upload")
		}

		remoteURL := u.pathGenerator.GeneratePath(runID, filepath.Base(localPath))

		log.WithFields(log.Fields{
			"stem_label": label,
			"remote_url": remoteURL,
		}).Info("Uploading stem file")

		if err := u.fileStore.WriteFile(ctx, remoteURL, contents); err != nil {
			return nil, errctx.Field("remote_url", remoteURL).
				Wrap(err).Error("Failed to write stem file to the remote store")
		}

		remoteURLs[label] = remoteURL
	}

	return remoteURLs, nil
}
