package source

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
	"github.com/tcolgate/mp3"
)

var supportedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".aac":  true,
	".opus": true,
	".aiff": true,
}

// VerifyFormat rejects inputs that are not recognizable audio, by extension
// vocabulary first and then a magic-byte sniff, so the backend is never
// invoked on garbage.
func VerifyFormat(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return cerr.Field("path", path).Field("extension", ext).
			Wrap(ErrUnsupportedFormat).Error("File extension is not a supported audio format")
	}

	header := make([]byte, 16)
	file, err := os.Open(path)
	if err != nil {
		return cerr.Field("path", path).
			Wrap(err).Error("Failed to open file for format probe")
	}
	defer file.Close()

	n, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return cerr.Field("path", path).
			Wrap(ErrUnsupportedFormat).Error("File is too short to be audio")
	}
	header = header[:n]

	if !looksLikeAudio(header) {
		return cerr.Field("path", path).
			Wrap(ErrUnsupportedFormat).Error("File header does not match any known audio format")
	}

	return nil
}

func looksLikeAudio(header []byte) bool {
	if len(header) < 4 {
		return false
	}

	switch {
	case bytes.HasPrefix(header, []byte("ID3")): // mp3 with ID3v2 tag
		return true
	case bytes.HasPrefix(header, []byte("fLaC")):
		return true
	case bytes.HasPrefix(header, []byte("OggS")): // ogg/opus
		return true
	case bytes.HasPrefix(header, []byte("RIFF")): // wav
		return len(header) >= 12 && bytes.Equal(header[8:12], []byte("WAVE"))
	case bytes.HasPrefix(header, []byte("FORM")): // aiff
		return true
	case len(header) >= 12 && bytes.Equal(header[4:8], []byte("ftyp")): // m4a/mp4
		return true
	case header[0] == 0xFF && header[1]&0xE0 == 0xE0: // bare mpeg frame sync (mp3/aac)
		return true
	default:
		return false
	}
}

type Metadata struct {
	Title  string
	Artist string
}

// ProbeMetadata reads embedded tags. Best effort only, a tagless file is
// not an error.
func ProbeMetadata(path string) Metadata {
	file, err := os.Open(path)
	if err != nil {
		return Metadata{}
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		return Metadata{}
	}

	return Metadata{
		Title:  meta.Title(),
		Artist: meta.Artist(),
	}
}

// MP3Duration sums frame durations across the whole file.
func MP3Duration(path string) (time.Duration, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, cerr.Field("path", path).Wrap(err).Error("Failed to open mp3 file")
	}
	defer file.Close()

	decoder := mp3.NewDecoder(file)

	var (
		frame   mp3.Frame
		skipped int
		total   time.Duration
	)

	for {
		if err := decoder.Decode(&frame, &skipped); err != nil {
			if err == io.EOF {
				break
			}
			return 0, cerr.Field("path", path).Wrap(err).Error("Failed to decode mp3 frame")
		}
		total += frame.Duration()
	}

	return total, nil
}
