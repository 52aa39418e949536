package config

import "embed"

// defaultRegistryFS embeds the shipped flow/agent registry (spec §3's six
// fixed flows plus their agent roster), grounded on the teacher's
// codegen template packages embedding their default asset tree the same
// way.
//
//go:embed defaultregistry/*.yaml
var defaultRegistryFS embed.FS

// LoadDefault loads the embedded default registry. Callers that want a
// custom flow/agent definition set should use Load directly against their
// own fs.FS instead.
func LoadDefault(profile Profile) (*Registry, error) {
	return Load(defaultRegistryFS, "defaultregistry", profile)
}
