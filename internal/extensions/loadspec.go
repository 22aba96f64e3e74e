package extensions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// ExtensionLoadSpec is produced by the source classifier from a filesystem
// path plus an optional package.json manifest, and consumed by the sandbox
// runtime (R) to load and execute the extension. Immutable after
// construction.
type ExtensionLoadSpec struct {
	ExtensionID string
	EntryPath   string
	PackageName string
	Version     string
	APIVersion  string
}

// packageManifest is the subset of package.json fields the classifier and
// load-spec builder care about.
type packageManifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Main    string `json:"main"`
	Module  string `json:"module"`
	// Exports may be a string, an object, or nested objects; decode loosely
	// and flatten any string leaves during hint collection.
	Exports json.RawMessage `json:"exports"`
	Pi      struct {
		APIVersion string `json:"apiVersion"`
	} `json:"pi"`
}

func readPackageManifest(root string) (*packageManifest, bool) {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return nil, false
	}
	var m packageManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return &m, true
}

// exportsHints recursively collects string leaves out of an arbitrary
// package.json "exports" value (string | object | nested object).
func exportsHints(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		var hints []string
		for _, v := range obj {
			hints = append(hints, exportsHints(v)...)
		}
		return hints
	}
	return nil
}

// NewLoadSpec builds an ExtensionLoadSpec for the given entry path. extID
// derives from the file stem, unless the stem is "index" in which case it
// derives from the parent directory name. The package manifest is read from
// root; if none is found there, version defaults to "0.0.0".
func NewLoadSpec(root, entryPath string) ExtensionLoadSpec {
	stem := strings.TrimSuffix(filepath.Base(entryPath), filepath.Ext(entryPath))
	extID := stem
	if stem == "index" {
		extID = filepath.Base(filepath.Dir(entryPath))
	}

	spec := ExtensionLoadSpec{
		ExtensionID: extID,
		EntryPath:   entryPath,
		Version:     "0.0.0",
		APIVersion:  "1",
	}

	if m, ok := readPackageManifest(root); ok {
		if m.Name != "" {
			spec.PackageName = m.Name
		}
		if m.Version != "" {
			spec.Version = m.Version
		}
		if m.Pi.APIVersion != "" {
			spec.APIVersion = m.Pi.APIVersion
		}
	}

	return spec
}
