package handlers

import (
	"context"
	"fmt"

	"github.com/nugetdepot/nugetdepot/entity"
	"github.com/nugetdepot/nugetdepot/feed"
	"github.com/nugetdepot/nugetdepot/relstore"
	"github.com/nugetdepot/nugetdepot/semver"
)

// buildEntries renders one feed.Entry per version in versions, resolving
// the author/tag/dependency joins and latest-version flags each entry
// needs from store. Grounded on original_source/src/web/backend/xml.rs's
// xml_entry, which does the equivalent per-row joins inline against the
// Diesel connection it's handed.
func buildEntries(ctx context.Context, store *relstore.Store, baseURL string, versions []entity.PackageVersion) ([]string, error) {
	entries := make([]string, 0, len(versions))
	pkgCache := map[string]entity.Package{}
	siblingsCache := map[string][]entity.PackageVersion{}

	for _, pv := range versions {
		pkg, ok := pkgCache[pv.ID]
		if !ok {
			var err error
			pkg, err = store.GetPackage(ctx, pv.ID)
			if err != nil {
				return nil, fmt.Errorf("handlers: load package %s: %w", pv.ID, err)
			}
			pkgCache[pv.ID] = pkg
		}

		siblings, ok := siblingsCache[pv.ID]
		if !ok {
			var err error
			siblings, err = store.ListPackageVersions(ctx, pv.ID)
			if err != nil {
				return nil, fmt.Errorf("handlers: list versions of %s: %w", pv.ID, err)
			}
			siblingsCache[pv.ID] = siblings
		}

		authorRows, err := store.ListPackageVersionAuthors(ctx, pv.ID, pv.Version)
		if err != nil {
			return nil, fmt.Errorf("handlers: list authors of %s/%s: %w", pv.ID, pv.Version, err)
		}
		authors := make([]string, len(authorRows))
		for i, a := range authorRows {
			authors[i] = a.ID
		}

		tagRows, err := store.ListPackageTags(ctx, pv.ID)
		if err != nil {
			return nil, fmt.Errorf("handlers: list tags of %s: %w", pv.ID, err)
		}
		tags := make([]string, len(tagRows))
		for i, t := range tagRows {
			tags[i] = t.ID
		}

		deps, err := store.ListPackageVersionDependencies(ctx, pv.ID, pv.Version)
		if err != nil {
			return nil, fmt.Errorf("handlers: list dependencies of %s/%s: %w", pv.ID, pv.Version, err)
		}

		var total int64
		for _, s := range siblings {
			total += s.DownloadCount
		}

		entries = append(entries, feed.Entry(baseURL, feed.EntryData{
			Package:                 pkg,
			Version:                 pv,
			Authors:                 authors,
			Tags:                    tags,
			Dependencies:            deps,
			TotalDownloadCount:      total,
			IsLatestVersion:         isLatest(siblings, pv, false),
			IsAbsoluteLatestVersion: isLatest(siblings, pv, true),
		}))
	}
	return entries, nil
}

// isLatest reports whether candidate is the newest of siblings,
// optionally excluding pre-release versions from consideration (mirrors
// xml.rs's is_latest_version/is_absolute_latest_version max_by_key
// comparisons).
func isLatest(siblings []entity.PackageVersion, candidate entity.PackageVersion, includePrerelease bool) bool {
	var best entity.PackageVersion
	var bestVer semver.Version
	have := false
	for _, pv := range siblings {
		v, err := semver.Parse(pv.Version)
		if err != nil {
			continue
		}
		if !includePrerelease && v.IsPrerelease() {
			continue
		}
		if !have || v.Compare(bestVer) > 0 {
			best, bestVer, have = pv, v, true
		}
	}
	return have && best.ID == candidate.ID && best.Version == candidate.Version
}
