// Package catalog implements the read-side queries the NuGet v2 OData
// surface needs: search, per-id listing, update discovery, and the
// id/version completion endpoints. Every method here is read-only over
// relstore.Store; nothing here mutates state, so there is no Tx involved.
// Grounded on original_source/src/web/views/api/{search,index,
// packagesbyid,updates,complete_ids,complete_ver}.rs — those views mix
// HTTP/XML concerns with the query logic, which this package separates
// out so handlers/ can stay a thin translation layer.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nugetdepot/nugetdepot/entity"
	"github.com/nugetdepot/nugetdepot/relstore"
	"github.com/nugetdepot/nugetdepot/semver"
)

// Catalog answers read-only queries against a relstore.Store.
type Catalog struct {
	store *relstore.Store
}

// New constructs a Catalog over store.
func New(store *relstore.Store) *Catalog {
	return &Catalog{store: store}
}

// maxCompletionResults caps package-ids/package-versions responses, per
// spec.md §6.
const maxCompletionResults = 30

// ListAllVersions returns every PackageVersion across every Package,
// unordered — backs the `Packages`/`Packages()` feed.
func (c *Catalog) ListAllVersions(ctx context.Context) ([]entity.PackageVersion, error) {
	packages, err := c.store.ListPackages(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list packages: %w", err)
	}
	var out []entity.PackageVersion
	for _, pkg := range packages {
		versions, err := c.store.ListPackageVersions(ctx, pkg.ID)
		if err != nil {
			return nil, fmt.Errorf("catalog: list versions of %s: %w", pkg.ID, err)
		}
		out = append(out, versions...)
	}
	return out, nil
}

// FindPackagesByID returns every version of id, or entity.ErrNotFound if
// the Package does not exist.
func (c *Catalog) FindPackagesByID(ctx context.Context, id string) ([]entity.PackageVersion, error) {
	if _, err := c.store.GetPackage(ctx, id); err != nil {
		return nil, err
	}
	return c.store.ListPackageVersions(ctx, id)
}

// LatestVersion returns the highest-ordered version of id, used to
// compute the IsLatestVersion/IsAbsoluteLatestVersion feed properties.
// When includePrerelease is false, pre-release versions are excluded from
// consideration so a 2.0.0-beta never shadows a 1.9.0 release.
func (c *Catalog) LatestVersion(ctx context.Context, id string, includePrerelease bool) (entity.PackageVersion, error) {
	versions, err := c.store.ListPackageVersions(ctx, id)
	if err != nil {
		return entity.PackageVersion{}, fmt.Errorf("catalog: list versions of %s: %w", id, err)
	}
	versions = filterPrerelease(versions, includePrerelease)
	if len(versions) == 0 {
		return entity.PackageVersion{}, entity.ErrNotFound
	}
	best := versions[0]
	bestVer := semver.MustParse(best.Version)
	for _, pv := range versions[1:] {
		v := semver.MustParse(pv.Version)
		if v.Compare(bestVer) > 0 {
			best, bestVer = pv, v
		}
	}
	return best, nil
}

// Search returns every version of every Package whose id or any of whose
// tags contains term as a (case-sensitive, matching the original)
// substring, optionally excluding pre-release versions.
func (c *Catalog) Search(ctx context.Context, term string, includePrerelease bool) ([]entity.PackageVersion, error) {
	packages, err := c.store.ListPackages(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list packages: %w", err)
	}

	var out []entity.PackageVersion
	for _, pkg := range packages {
		matched := strings.Contains(pkg.ID, term)
		if !matched {
			tags, err := c.store.ListPackageTags(ctx, pkg.ID)
			if err != nil {
				return nil, fmt.Errorf("catalog: list tags of %s: %w", pkg.ID, err)
			}
			for _, tag := range tags {
				if strings.Contains(tag.ID, term) {
					matched = true
					break
				}
			}
		}
		if !matched {
			continue
		}

		versions, err := c.store.ListPackageVersions(ctx, pkg.ID)
		if err != nil {
			return nil, fmt.Errorf("catalog: list versions of %s: %w", pkg.ID, err)
		}
		out = append(out, filterPrerelease(versions, includePrerelease)...)
	}
	return out, nil
}

// UpdateQuery is one (id, current version) pair from a GetUpdates request.
type UpdateQuery struct {
	ID      string
	Version string
}

// GetUpdates returns, for each query, every stored version of its id that
// is strictly greater than its current version, filtering out
// pre-release versions unless includePrerelease is true and, unless
// includeAllVersions is true, keeping only the single newest qualifying
// version per id. This is the semantically correct reading of spec.md
// §9's Open Question; the original's filter predicate is inverted
// (excludes releases, keeps only pre-releases, when includePrerelease is
// false) — see DESIGN.md for the divergence rationale.
func (c *Catalog) GetUpdates(ctx context.Context, queries []UpdateQuery, includePrerelease, includeAllVersions bool) ([]entity.PackageVersion, error) {
	var out []entity.PackageVersion
	for _, q := range queries {
		current, err := semver.Parse(q.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", entity.ErrInvalidVersion, q.Version)
		}

		versions, err := c.store.ListPackageVersions(ctx, q.ID)
		if err != nil {
			return nil, fmt.Errorf("catalog: list versions of %s: %w", q.ID, err)
		}
		versions = filterPrerelease(versions, includePrerelease)

		var newer []entity.PackageVersion
		for _, pv := range versions {
			v, err := semver.Parse(pv.Version)
			if err != nil {
				continue
			}
			if v.Compare(current) > 0 {
				newer = append(newer, pv)
			}
		}
		if len(newer) == 0 {
			continue
		}

		if includeAllVersions {
			out = append(out, newer...)
			continue
		}
		best := newer[0]
		bestVer := semver.MustParse(best.Version)
		for _, pv := range newer[1:] {
			v := semver.MustParse(pv.Version)
			if v.Compare(bestVer) > 0 {
				best, bestVer = pv, v
			}
		}
		out = append(out, best)
	}
	return out, nil
}

// CompleteIDs returns up to 30 package ids whose id begins with
// partialID, limited to ids that have at least one version passing the
// pre-release filter.
func (c *Catalog) CompleteIDs(ctx context.Context, partialID string, includePrerelease bool) ([]string, error) {
	packages, err := c.store.ListPackages(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list packages: %w", err)
	}

	ids := make([]string, 0, len(packages))
	for _, pkg := range packages {
		ids = append(ids, pkg.ID)
	}
	sort.Strings(ids)

	var out []string
	for _, id := range ids {
		if len(out) >= maxCompletionResults {
			break
		}
		if !strings.HasPrefix(id, partialID) {
			continue
		}
		versions, err := c.store.ListPackageVersions(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("catalog: list versions of %s: %w", id, err)
		}
		if len(filterPrerelease(versions, includePrerelease)) == 0 {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// CompleteVersions returns up to 30 version strings of id, passing the
// pre-release filter.
func (c *Catalog) CompleteVersions(ctx context.Context, id string, includePrerelease bool) ([]string, error) {
	if _, err := c.store.GetPackage(ctx, id); err != nil {
		return nil, err
	}
	versions, err := c.store.ListPackageVersions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("catalog: list versions of %s: %w", id, err)
	}
	versions = filterPrerelease(versions, includePrerelease)

	out := make([]string, 0, len(versions))
	for _, pv := range versions {
		if len(out) >= maxCompletionResults {
			break
		}
		out = append(out, pv.Version)
	}
	return out, nil
}

func filterPrerelease(versions []entity.PackageVersion, includePrerelease bool) []entity.PackageVersion {
	if includePrerelease {
		return versions
	}
	out := make([]entity.PackageVersion, 0, len(versions))
	for _, pv := range versions {
		v, err := semver.Parse(pv.Version)
		if err != nil || !v.IsPrerelease() {
			out = append(out, pv)
		}
	}
	return out
}
