package bundle

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arcforge/bundlehost/system/ferrors"
	"github.com/arcforge/bundlehost/system/version"
)

// Manifest is the META-INF/MANIFEST.MF content the cache reads from an
// extracted bundle revision.
type Manifest struct {
	SymbolicName   string
	Version        version.Version
	Name           string
	Description    string
	Group          string
	ActivatorPath  string // native library path, relative to the revision root
}

const (
	attrSymbolicName = "Bundle-SymbolicName"
	attrVersion      = "Bundle-Version"
	attrName         = "Bundle-Name"
	attrDescription  = "Bundle-Description"
	attrGroup        = "Bundle-Group"
	attrActivator    = "Bundle-Activator"
)

// ManifestPath returns the canonical manifest location under a revision
// root.
func ManifestPath(revisionRoot string) string {
	return filepath.Join(revisionRoot, "META-INF", "MANIFEST.MF")
}

// ParseManifestFile reads and parses the manifest at path. The manifest
// MUST supply a non-empty symbolic name and version; absence is fatal.
func ParseManifestFile(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, ferrors.Wrap(ferrors.KindManifest, "manifest.read", err)
	}
	defer f.Close()

	attrs := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		attrs[key] = val
	}
	if err := scanner.Err(); err != nil {
		return Manifest{}, ferrors.Wrap(ferrors.KindManifest, "manifest.scan", err)
	}

	symbolicName := attrs[attrSymbolicName]
	versionStr := attrs[attrVersion]
	if symbolicName == "" || versionStr == "" {
		return Manifest{}, ferrors.New(ferrors.KindManifest, fmt.Sprintf("manifest.required: %s and %s must be non-empty", attrSymbolicName, attrVersion))
	}
	ver, err := version.Parse(versionStr)
	if err != nil {
		return Manifest{}, ferrors.Wrap(ferrors.KindManifest, "manifest.version", err)
	}

	return Manifest{
		SymbolicName:  symbolicName,
		Version:       ver,
		Name:          attrs[attrName],
		Description:   attrs[attrDescription],
		Group:         attrs[attrGroup],
		ActivatorPath: attrs[attrActivator],
	}, nil
}
