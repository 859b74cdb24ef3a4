package licensescan

import (
	"context"
	"fmt"

	"github.com/ecosyste-ms/ecosystems-go"
	"github.com/git-pkgs/vers"
)

// EcosystemsFallback looks up package-level metadata from the ecosyste.ms API.
// It is used when the NuGet registry is unreachable after all retries: the
// summary it returns (latest version, normalized license, homepage) is enough
// to produce a useful record instead of "Failed to retrieve metadata".
type EcosystemsFallback struct {
	client *ecosystems.Client
}

// NewEcosystemsFallback creates a fallback client backed by ecosyste.ms.
func NewEcosystemsFallback() (*EcosystemsFallback, error) {
	return newEcosystemsFallback(defaultUserAgent)
}

func newEcosystemsFallback(userAgent string) (*EcosystemsFallback, error) {
	client, err := ecosystems.NewClient(userAgent)
	if err != nil {
		return nil, err
	}
	return &EcosystemsFallback{client: client}, nil
}

// Lookup returns a single synthesized version record for the package's latest
// release, or none if ecosyste.ms does not know the package either.
func (c *EcosystemsFallback) Lookup(ctx context.Context, name string) ([]VersionRecord, error) {
	purlStr := fmt.Sprintf("pkg:nuget/%s", name)

	packages, err := c.client.BulkLookup(ctx, []string{purlStr})
	if err != nil {
		return nil, err
	}
	pkg := packages[purlStr]
	if pkg == nil {
		return nil, nil
	}

	rec := VersionRecord{Listed: true}
	if pkg.LatestReleaseNumber != nil {
		rec.Version = *pkg.LatestReleaseNumber
	}
	if len(pkg.NormalizedLicenses) > 0 {
		rec.LicenseExpression = pkg.NormalizedLicenses[0]
	} else if pkg.Licenses != nil && *pkg.Licenses != "" {
		rec.LicenseExpression = *pkg.Licenses
	}
	if pkg.Homepage != nil {
		rec.ProjectURL = *pkg.Homepage
	}

	if rec.Version == "" {
		rec.Version = c.latestVersion(ctx, purlStr)
	}
	if rec.Version == "" {
		return nil, nil
	}
	return []VersionRecord{rec}, nil
}

// latestVersion computes the highest release number when the package summary
// does not carry one.
func (c *EcosystemsFallback) latestVersion(ctx context.Context, purlStr string) string {
	p, err := ecosystems.ParsePURL(purlStr)
	if err != nil {
		return ""
	}
	versions, err := c.client.GetAllVersionsPURL(ctx, p)
	if err != nil || len(versions) == 0 {
		return ""
	}
	latest := versions[0].Number
	for _, v := range versions[1:] {
		if vers.Compare(v.Number, latest) > 0 {
			latest = v.Number
		}
	}
	return latest
}
