// Package licensescan resolves license information for NuGet package
// dependencies: registry metadata lookup, version selection, SPDX expression
// handling, license text retrieval and normalization, and durable caching.
package licensescan

import (
	"context"
	"fmt"
	"strings"

	"github.com/git-pkgs/purl"
)

// License type outcomes that are not raw SPDX expressions.
const (
	LicenseTypeFile           = "File"
	LicenseTypeExternal       = "External"
	LicenseTypeNotSpecified   = "Not specified"
	LicenseTypeNotFound       = "Package not found"
	LicenseTypeMetadataFailed = "Failed to retrieve metadata"
)

// AuthorUnknown is the author value used when the registry reports none.
const AuthorUnknown = "Unknown"

// PackageIdentifier names a package to resolve, optionally pinned to a version.
type PackageIdentifier struct {
	Name    string
	Version string
}

// ParseIdentifier parses an identifier in "Name", "Name/Version" or
// "pkg:nuget/Name@Version" form.
func ParseIdentifier(s string) (PackageIdentifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PackageIdentifier{}, fmt.Errorf("empty package identifier")
	}

	if strings.HasPrefix(s, "pkg:") {
		p, err := purl.Parse(s)
		if err != nil {
			return PackageIdentifier{}, fmt.Errorf("parsing purl %q: %w", s, err)
		}
		if p.Type != "nuget" {
			return PackageIdentifier{}, fmt.Errorf("unsupported purl type %q (only nuget)", p.Type)
		}
		return PackageIdentifier{Name: p.FullName(), Version: p.Version}, nil
	}

	name, version, _ := strings.Cut(s, "/")
	name = strings.TrimSpace(name)
	if name == "" {
		return PackageIdentifier{}, fmt.Errorf("empty package name in %q", s)
	}
	return PackageIdentifier{Name: name, Version: strings.TrimSpace(version)}, nil
}

// String returns the canonical "Name/Version" form used for deduplication.
func (id PackageIdentifier) String() string {
	if id.Version == "" {
		return id.Name
	}
	return id.Name + "/" + id.Version
}

// VersionRecord is one version's metadata as reported by the registry. The
// license declaration is at most one of LicenseExpression and LicenseFile;
// LicenseURL may accompany either or stand alone (legacy packages).
type VersionRecord struct {
	Version           string
	Authors           string
	ProjectURL        string
	LicenseExpression string
	LicenseFile       string
	LicenseURL        string
	Listed            bool
}

// RegistryClient fetches all known version records for a package, including
// pre-release and unlisted versions. A nil error with an empty slice means
// the registry does not know the package.
type RegistryClient interface {
	QueryVersions(ctx context.Context, name string) ([]VersionRecord, error)
}

// FallbackClient provides best-effort package metadata when the registry is
// unreachable.
type FallbackClient interface {
	Lookup(ctx context.Context, name string) ([]VersionRecord, error)
}

// TextCache stores canonical license text keyed by license identifier.
// Implementations must be safe for concurrent use; the resolver shares one
// cache across its worker pool.
type TextCache interface {
	Get(identifier string) (string, bool)
	Put(identifier, text string)
}

// TextFetcher downloads license text. LicenseText reports false when it had
// to substitute fallback text for a failed download; Content returns the
// empty string on failure.
type TextFetcher interface {
	LicenseText(ctx context.Context, identifier string) (string, bool)
	Content(ctx context.Context, url string) string
}

// PackageLicenseRecord is the resolved outcome for one requested package.
// Failures are data: LicenseType carries sentinel values like
// "Package not found" or "Error: ..." instead of the batch erroring out.
type PackageLicenseRecord struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	ProjectURL  string `json:"projectUrl"`
	LicenseType string `json:"licenseType"`
	LicenseURL  string `json:"licenseUrl,omitempty"`
	LicenseText string `json:"licenseText,omitempty"`
}
