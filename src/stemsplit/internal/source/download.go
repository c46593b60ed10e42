package source

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

//counterfeiter:generate . Downloader
type Downloader interface {
	Download(ctx context.Context, sourceURL string, outFilePath string) error
}

var _ Downloader = HTTPDownloader{}

// HTTPDownloader fetches direct file URLs with a bounded timeout per
// attempt and exponential backoff between retries.
type HTTPDownloader struct {
	client  *http.Client
	timeout time.Duration
	retries int
}

func NewHTTPDownloader(timeout time.Duration, retries int) HTTPDownloader {
	return HTTPDownloader{
		client:  &http.Client{},
		timeout: timeout,
		retries: retries,
	}
}

func (d HTTPDownloader) Download(ctx context.Context, sourceURL string, outFilePath string) error {
	logger := log.WithFields(log.Fields{
		"source_url":    sourceURL,
		"out_file_path": outFilePath,
	})
	logger.Info("Downloading audio from URL")

	operation := func() error {
		return d.downloadOnce(ctx, sourceURL, outFilePath)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(d.retries)),
		ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return cerr.Field("source_url", sourceURL).
			Wrap(ErrDownload).Error(err.Error())
	}

	logger.Info("Finished downloading audio")
	return nil
}

func (d HTTPDownloader) downloadOnce(ctx context.Context, sourceURL string, outFilePath string) error {
	attemptCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return backoff.Permanent(cerr.Field("source_url", sourceURL).
			Wrap(err).Error("Failed to create download request"))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return cerr.Field("source_url", sourceURL).
			Wrap(err).Error("Failed to GET the source URL")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := cerr.Field("source_url", sourceURL).
			Field("status_code", resp.StatusCode).
			Error("Source URL responded with a non-2xx status")

		// client errors won't heal with a retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	outFile, err := os.Create(outFilePath)
	if err != nil {
		return backoff.Permanent(cerr.Field("out_file_path", outFilePath).
			Wrap(err).Error("Failed to create output file"))
	}
	defer outFile.Close()

	var dest io.Writer = outFile
	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar := progressbar.DefaultBytes(resp.ContentLength, "downloading")
		dest = io.MultiWriter(outFile, bar)
	}

	if _, err := io.Copy(dest, resp.Body); err != nil {
		return cerr.Field("source_url", sourceURL).
			Wrap(err).Error("Failed to write response body to file")
	}

	return nil
}
