// Package config loads and saves the jobs.yaml file: best-effort load
// (parse failure degrades to an empty config, logged, never fatal), and
// atomic-replace save with collision-free slug derivation.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cwt-dev/cwtd/internal/types"
)

// JobsFile is the root of jobs.yaml.
type JobsFile struct {
	Jobs []types.Job `yaml:"jobs"`
}

// Load reads path and parses it as a JobsFile. Parse failures degrade to an
// empty config with a logged warning rather than propagating, matching the
// "best effort" load policy.
func Load(path string) *JobsFile {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[CONFIG] warning: failed to read %s: %v (using empty config)", path, err)
		}
		return &JobsFile{}
	}

	var jf JobsFile
	if err := yaml.Unmarshal(data, &jf); err != nil {
		log.Printf("[CONFIG] warning: failed to parse %s: %v (using empty config)", path, err)
		return &JobsFile{}
	}
	ensureSlugs(&jf)
	return &jf
}

// Save atomically replaces path with jf's contents.
func Save(path string, jf *JobsFile) error {
	data, err := yaml.Marshal(jf)
	if err != nil {
		return fmt.Errorf("marshal jobs config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jobs-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config file: %w", err)
	}
	return nil
}

// ensureSlugs assigns a slug to any job missing one and disambiguates
// collisions by appending -2, -3, ... Existing slugs on already-present
// jobs are always preserved.
func ensureSlugs(jf *JobsFile) {
	seen := map[string]bool{}
	for i := range jf.Jobs {
		if jf.Jobs[i].Slug != "" {
			seen[jf.Jobs[i].Slug] = true
		}
	}
	for i := range jf.Jobs {
		j := &jf.Jobs[i]
		if j.Slug != "" {
			continue
		}
		base := slugify(j.FolderPath)
		if base == "" {
			base = slugify(j.Name)
		}
		candidate := base
		n := 2
		for seen[candidate] {
			candidate = fmt.Sprintf("%s-%d", base, n)
			n++
		}
		j.Slug = candidate
		seen[candidate] = true
	}
}

// FindByName returns the job with the given name, or nil.
func FindByName(jf *JobsFile, name string) *types.Job {
	for i := range jf.Jobs {
		if jf.Jobs[i].Name == name {
			return &jf.Jobs[i]
		}
	}
	return nil
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}
