package config

import (
	"os/exec"

	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
)

// FindBin resolves a binary on PATH, for when no explicit path is configured.
func FindBin(bin string) (string, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", cerr.Field("bin", bin).
			Wrap(err).Error("Failed to find binary on PATH")
	}

	return path, nil
}

// DemucsPath returns the configured demucs binary, falling back to PATH.
func (c Config) DemucsPath() (string, error) {
	if c.Demucs.BinPath != "" {
		return c.Demucs.BinPath, nil
	}

	return FindBin("demucs")
}
