package config

import (
	"io/fs"

	"github.com/BurntSushi/toml"
	"github.com/stepflow-dev/harness/internal/harnesserr"
)

// LoadProfile reads a host-level TOML profile overlay (budget defaults,
// artifact caps, iteration caps) layered beneath YAML flow/step overrides.
// A missing file is not an error: the built-in DefaultProfile applies.
func LoadProfile(fsys fs.FS, path string) (Profile, error) {
	raw, err := fs.ReadFile(fsys, path)
	if err != nil {
		return DefaultProfile, nil
	}
	profile := DefaultProfile
	if _, err := toml.Decode(string(raw), &profile); err != nil {
		return Profile{}, harnesserr.Wrap(harnesserr.KindConfig, "config", "parse profile", err)
	}
	return profile, nil
}
