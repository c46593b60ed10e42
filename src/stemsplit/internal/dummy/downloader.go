package dummy

import (
	"context"
	"os"
	"sync"

	"github.com/stemtools/stemsplit/src/stemsplit/internal/source"
)

var _ source.Downloader = &Downloader{}

func NewDummyDownloader() *Downloader {
	return &Downloader{
		Unavailable: false,
		State:       map[string][]byte{},
	}
}

type Downloader struct {
	Unavailable bool
	State       map[string][]byte
	mutex       sync.RWMutex
}

func (d *Downloader) AddURL(url string, data []byte) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.State[url] = data
}

func (d *Downloader) Download(_ context.Context, sourceURL string, outFilePath string) error {
	if d.Unavailable {
		return NetworkFailure
	}

	d.mutex.RLock()
	defer d.mutex.RUnlock()

	contents, ok := d.State[sourceURL]
	if !ok {
		return NotFound
	}

	return os.WriteFile(outFilePath, contents, os.ModePerm)
}
