package source

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
)

var (
	// ErrNotFound marks a local input path that doesn't exist.
	ErrNotFound = errors.New("input file not found")
	// ErrDownload marks a failed URL fetch.
	ErrDownload = errors.New("failed to download input")
	// ErrUnsupportedFormat marks an input that isn't recognizable audio.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

type Kind string

const (
	LocalPath Kind = "local_path"
	RemoteURL Kind = "remote_url"
)

// AudioSource is the tagged form of the user's input, decided once at the
// start of a run rather than re-inferred downstream.
type AudioSource struct {
	Kind Kind
	Raw  string
}

func Parse(input string) (AudioSource, error) {
	if input == "" {
		return AudioSource{}, cerr.Error("Empty input")
	}

	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		parsed, err := url.Parse(input)
		if err != nil {
			return AudioSource{}, cerr.Field("input", input).
				Wrap(err).Error("Failed to parse input URL")
		}

		if parsed.Host == "" {
			return AudioSource{}, cerr.Field("input", input).Error("Input URL has no host")
		}

		return AudioSource{Kind: RemoteURL, Raw: input}, nil
	}

	return AudioSource{Kind: LocalPath, Raw: input}, nil
}

// FileName is the base file name the source resolves to. URL inputs without
// a usable path component fall back to a generic mp3 name.
func (s AudioSource) FileName() string {
	switch s.Kind {
	case RemoteURL:
		parsed, err := url.Parse(s.Raw)
		if err != nil {
			return "downloaded_audio.mp3"
		}

		name := filepath.Base(parsed.Path)
		if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
			return "downloaded_audio.mp3"
		}

		return name

	default:
		return filepath.Base(s.Raw)
	}
}

// Slug is a directory-name-safe identifier derived from the input.
func (s AudioSource) Slug() string {
	name := s.FileName()
	name = strings.TrimSuffix(name, filepath.Ext(name))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "audio"
	}

	return slug
}
