// Package config loads the operator-facing overrides SPEC_FULL's ambient
// stack describes on top of the emitter's compiled-in defaults: the
// optional sections.yaml attribute table, parsed with gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/arc-language/elfgen/object"
	"gopkg.in/yaml.v3"
)

// sectionOverrideFile is the root shape of sections.yaml: a flat map from
// section name to the attributes it should take instead of the compiled-in
// default. Any field left unset in a given entry keeps its existing value.
type sectionOverrideFile struct {
	Sections map[string]sectionOverride `yaml:"sections"`
}

type sectionOverride struct {
	Type  string   `yaml:"type"`
	Flags []string `yaml:"flags"`
	Align uint32   `yaml:"align"`
}

// LoadSectionDefaults reads path and patches object.DefaultSectionTable in
// place. A missing path is not an error: it is how a caller opts out of
// overriding anything. Call this before any Emitter's first SectionNames
// call; DefaultSectionTable is read at section-creation time, not cached.
func LoadSectionDefaults(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var file sectionOverrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for name, ov := range file.Sections {
		def, ok := object.DefaultSectionTable[name]
		if !ok {
			def = object.SectionDefault{Type: object.SectionProgbits, Flags: object.FlagAlloc, Align: 1}
		}
		if ov.Type != "" {
			t, err := parseSectionType(ov.Type)
			if err != nil {
				return fmt.Errorf("%s: section %q: %w", path, name, err)
			}
			def.Type = t
		}
		if ov.Flags != nil {
			flags, err := parseFlags(ov.Flags)
			if err != nil {
				return fmt.Errorf("%s: section %q: %w", path, name, err)
			}
			def.Flags = flags
		}
		if ov.Align != 0 {
			def.Align = ov.Align
		}
		object.DefaultSectionTable[name] = def
	}
	return nil
}

func parseSectionType(s string) (object.SectionType, error) {
	switch strings.ToLower(s) {
	case "progbits":
		return object.SectionProgbits, nil
	case "nobits":
		return object.SectionNobits, nil
	default:
		return 0, fmt.Errorf("unrecognized section type %q", s)
	}
}

func parseFlags(names []string) (object.SectionFlags, error) {
	var flags object.SectionFlags
	for _, n := range names {
		switch strings.ToLower(n) {
		case "alloc":
			flags |= object.FlagAlloc
		case "write":
			flags |= object.FlagWrite
		case "execinstr":
			flags |= object.FlagExecinstr
		default:
			return 0, fmt.Errorf("unrecognized section flag %q", n)
		}
	}
	return flags, nil
}
