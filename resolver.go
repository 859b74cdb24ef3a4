package licensescan

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/git-pkgs/vers"
)

const (
	defaultFlatContainerBase = "https://api.nuget.org/v3-flatcontainer"

	// Registry metadata fetches get metadataAttempts tries with a linearly
	// growing delay between them; every other network call fails fast to its
	// fallback value.
	metadataAttempts = 3
)

// Resolver turns package identifiers into license records. Construct it with
// New; the zero value is not usable.
type Resolver struct {
	registry RegistryClient
	fallback FallbackClient // nil disables the fallback chain
	fetcher  TextFetcher
	cache    TextCache
	logger   *log.Logger

	flatBaseURL string
	concurrency int
	retryDelay  time.Duration
}

// Resolve produces exactly one record per distinct requested identifier.
// Identifiers are deduplicated by their exact Name/Version form; results are
// sorted by package name, ascending, byte-wise. No failure of a single
// package aborts the batch: failures terminate in the record's LicenseType.
func (r *Resolver) Resolve(ctx context.Context, identifiers []PackageIdentifier) []PackageLicenseRecord {
	distinct := dedupe(identifiers)
	records := make([]PackageLicenseRecord, len(distinct))

	if r.concurrency <= 1 || len(distinct) < 2 {
		for i, id := range distinct {
			records[i] = r.resolveOne(ctx, id)
		}
	} else {
		var wg sync.WaitGroup
		sem := make(chan struct{}, r.concurrency)
		for i, id := range distinct {
			wg.Add(1)
			go func(i int, id PackageIdentifier) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				records[i] = r.resolveOne(ctx, id)
			}(i, id)
		}
		wg.Wait()
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})
	return records
}

func dedupe(identifiers []PackageIdentifier) []PackageIdentifier {
	seen := make(map[string]struct{}, len(identifiers))
	var distinct []PackageIdentifier
	for _, id := range identifiers {
		key := id.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		distinct = append(distinct, id)
	}
	return distinct
}

func (r *Resolver) resolveOne(ctx context.Context, id PackageIdentifier) (rec PackageLicenseRecord) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("package resolution panicked", "package", id.Name, "panic", p)
			rec = PackageLicenseRecord{
				Name:        id.Name,
				Version:     id.Version,
				Author:      AuthorUnknown,
				LicenseType: fmt.Sprintf("Error: %v", p),
			}
		}
	}()

	versions, err := r.queryWithRetry(ctx, id.Name)
	if err != nil && r.fallback != nil {
		fb, ferr := r.fallback.Lookup(ctx, id.Name)
		if ferr == nil && len(fb) > 0 {
			r.logger.Warn("registry unreachable, using fallback metadata", "package", id.Name)
			versions, err = fb, nil
		}
	}
	if err != nil {
		r.logger.Error("metadata retrieval failed", "package", id.Name, "error", err)
		return PackageLicenseRecord{
			Name:        id.Name,
			Version:     id.Version,
			Author:      AuthorUnknown,
			LicenseType: LicenseTypeMetadataFailed,
		}
	}
	if len(versions) == 0 {
		return PackageLicenseRecord{
			Name:        id.Name,
			Version:     id.Version,
			Author:      AuthorUnknown,
			LicenseType: LicenseTypeNotFound,
		}
	}

	selected := r.selectVersion(id, versions)
	rec = PackageLicenseRecord{
		Name:       id.Name,
		Version:    selected.Version,
		Author:     selected.Authors,
		ProjectURL: selected.ProjectURL,
	}
	if rec.Author == "" {
		rec.Author = AuthorUnknown
	}
	r.populateLicense(ctx, &rec, selected)
	return rec
}

func (r *Resolver) queryWithRetry(ctx context.Context, name string) ([]VersionRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= metadataAttempts; attempt++ {
		versions, err := r.registry.QueryVersions(ctx, name)
		if err == nil {
			return versions, nil
		}
		lastErr = err
		if attempt == metadataAttempts {
			break
		}
		delay := time.Duration(attempt) * r.retryDelay
		r.logger.Debug("registry query failed, retrying",
			"package", name, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// selectVersion picks the record matching the requested version, preferring
// exact form, then normalized equality, then the major.minor.patch triple.
// With no requested version, or no match at all, the highest version wins.
func (r *Resolver) selectVersion(id PackageIdentifier, versions []VersionRecord) VersionRecord {
	if id.Version == "" {
		return maxVersion(versions)
	}

	for _, v := range versions {
		if v.Version == id.Version {
			return v
		}
	}

	if major, minor, patch, ok := parseVersionTriple(id.Version); ok {
		for _, v := range versions {
			if vers.Compare(v.Version, id.Version) == 0 {
				return v
			}
		}
		for _, v := range versions {
			if vm, vn, vp, vok := parseVersionTriple(v.Version); vok &&
				vm == major && vn == minor && vp == patch {
				return v
			}
		}
	}

	highest := maxVersion(versions)
	r.logger.Warn("requested version not available, substituting",
		"package", id.Name, "requested", id.Version, "resolved", highest.Version)
	return highest
}

// maxVersion returns the highest version record by semantic comparison.
func maxVersion(versions []VersionRecord) VersionRecord {
	best := versions[0]
	for _, v := range versions[1:] {
		if vers.Compare(v.Version, best.Version) > 0 {
			best = v
		}
	}
	return best
}

// parseVersionTriple extracts the numeric major.minor.patch core of a version
// string, ignoring pre-release and build metadata. Missing components are
// zero; a fourth NuGet revision component is tolerated but not compared.
func parseVersionTriple(s string) (major, minor, patch int, ok bool) {
	core := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	parts := strings.Split(core, ".")
	if len(parts) == 0 || len(parts) > 4 {
		return 0, 0, 0, false
	}
	nums := make([]int, 0, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, false
		}
		if i < 3 {
			nums = append(nums, n)
		}
	}
	for len(nums) < 3 {
		nums = append(nums, 0)
	}
	return nums[0], nums[1], nums[2], true
}

// populateLicense fills in the license fields from the selected version
// record per its declaration kind: SPDX expression, embedded license file,
// legacy external URL, or nothing.
func (r *Resolver) populateLicense(ctx context.Context, rec *PackageLicenseRecord, v VersionRecord) {
	switch {
	case v.LicenseExpression != "":
		rec.LicenseType = v.LicenseExpression
		rec.LicenseText = r.expressionText(ctx, v.LicenseExpression)
	case v.LicenseFile != "":
		rec.LicenseType = LicenseTypeFile
		u := fmt.Sprintf("%s/%s/%s/%s",
			r.flatBaseURL, strings.ToLower(rec.Name), strings.ToLower(rec.Version), v.LicenseFile)
		if text := r.fetcher.Content(ctx, u); text != "" {
			rec.LicenseText = text
		} else {
			rec.LicenseText = "License file: " + v.LicenseFile
		}
	}

	if v.LicenseURL != "" {
		rec.LicenseURL = v.LicenseURL
		if rec.LicenseType == "" {
			rec.LicenseType = LicenseTypeExternal
			rec.LicenseText = r.fetcher.Content(ctx, v.LicenseURL)
		} else if rec.LicenseText == "" {
			rec.LicenseText = r.fetcher.Content(ctx, v.LicenseURL)
		}
	}

	if rec.LicenseType == "" {
		rec.LicenseType = LicenseTypeNotSpecified
		rec.LicenseText = "License not specified"
	}
}

// expressionText resolves the text for each identifier in an SPDX expression.
// Multiple identifiers are concatenated under numbered headers with a rule
// between entries.
func (r *Resolver) expressionText(ctx context.Context, expression string) string {
	ids := ParseExpression(expression)
	if len(ids) == 0 {
		return ""
	}
	if len(ids) == 1 {
		return r.licenseText(ctx, ids[0])
	}

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteString(strings.Repeat("=", 50))
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "--- LICENSE %d: %s ---\n", i+1, id)
		b.WriteString(r.licenseText(ctx, id))
		b.WriteString("\n")
	}
	return b.String()
}

// licenseText returns cached text for one license identifier, fetching and
// caching it on a miss. Failed fetches are cached in memory only, so one run
// never downloads the same missing license twice.
func (r *Resolver) licenseText(ctx context.Context, identifier string) string {
	if text, ok := r.cache.Get(identifier); ok {
		return text
	}
	text, ok := r.fetcher.LicenseText(ctx, identifier)
	if !ok {
		r.logger.Warn("license text unavailable", "identifier", identifier)
	}
	r.cache.Put(identifier, text)
	return text
}
