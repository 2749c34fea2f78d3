// Package resolver computes the dependency resolution sets spec.md §4.2
// defines: which versions of a dependency could satisfy a requirement,
// which one would win today, and which PackageVersions would be left
// without any satisfying version if a given PackageVersion were removed.
// Grounded on original_source/src/web/backend/db/schema/dependency.rs
// (possible_resolutions, newest_resolution) and packageversion.rs
// (currently_depending_package_versions, possible_dependending_package_versions,
// blocking_dependencies).
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/nugetdepot/nugetdepot/entity"
	"github.com/nugetdepot/nugetdepot/metrics"
	"github.com/nugetdepot/nugetdepot/nugetrange"
	"github.com/nugetdepot/nugetdepot/relstore"
	"github.com/nugetdepot/nugetdepot/semver"
)

// Resolver answers dependency resolution queries against a relstore.Store.
type Resolver struct {
	store   *relstore.Store
	metrics metrics.Metrics
}

// New constructs a Resolver over store.
func New(store *relstore.Store, m metrics.Metrics) *Resolver {
	return &Resolver{store: store, metrics: m}
}

// PossibleResolutions returns every version of dep's target package that
// satisfies dep's version requirement.
func (r *Resolver) PossibleResolutions(ctx context.Context, dep entity.Dependency) ([]entity.PackageVersion, error) {
	r.metrics.IncrementResolutions(ctx, dep.ID)

	versions, err := r.store.ListPackageVersions(ctx, dep.ID)
	if err != nil {
		return nil, fmt.Errorf("resolver: list versions of %s: %w", dep.ID, err)
	}

	req, err := nugetrange.Parse(dep.VersionReq)
	if err != nil {
		return nil, fmt.Errorf("resolver: parse requirement %q: %w", dep.VersionReq, err)
	}

	var out []entity.PackageVersion
	for _, pv := range versions {
		v, err := semver.Parse(pv.Version)
		if err != nil {
			continue
		}
		if req.Matches(v) {
			out = append(out, pv)
		}
	}
	return out, nil
}

// NewestResolution returns the greatest version among PossibleResolutions,
// with pre-release versions ordered below release versions of the same
// major.minor.patch. Returns entity.ErrNotFound if nothing resolves.
func (r *Resolver) NewestResolution(ctx context.Context, dep entity.Dependency) (entity.PackageVersion, error) {
	candidates, err := r.PossibleResolutions(ctx, dep)
	if err != nil {
		return entity.PackageVersion{}, err
	}
	if len(candidates) == 0 {
		return entity.PackageVersion{}, entity.ErrNotFound
	}

	best := candidates[0]
	bestVer := semver.MustParse(best.Version)
	for _, pv := range candidates[1:] {
		v := semver.MustParse(pv.Version)
		if v.Compare(bestVer) > 0 {
			best, bestVer = pv, v
		}
	}
	return best, nil
}

// CurrentDependents returns every Dependency, across the whole store, whose
// NewestResolution is exactly pv: what would break today if pv went away.
func (r *Resolver) CurrentDependents(ctx context.Context, pv entity.PackageVersion) ([]entity.Dependency, error) {
	deps, err := r.store.ListDependenciesOnPackage(ctx, pv.ID)
	if err != nil {
		return nil, err
	}
	var out []entity.Dependency
	for _, dep := range deps {
		newest, err := r.NewestResolution(ctx, dep)
		if err != nil {
			if err == entity.ErrNotFound {
				continue
			}
			return nil, err
		}
		if newest.ID == pv.ID && newest.Version == pv.Version {
			out = append(out, dep)
		}
	}
	return out, nil
}

// PossibleDependents returns every Dependency, across the whole store, for
// which pv is one of the possible resolutions: what could break at any
// resolution.
func (r *Resolver) PossibleDependents(ctx context.Context, pv entity.PackageVersion) ([]entity.Dependency, error) {
	deps, err := r.store.ListDependenciesOnPackage(ctx, pv.ID)
	if err != nil {
		return nil, err
	}
	var out []entity.Dependency
	for _, dep := range deps {
		candidates, err := r.PossibleResolutions(ctx, dep)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			if c.ID == pv.ID && c.Version == pv.Version {
				out = append(out, dep)
				break
			}
		}
	}
	return out, nil
}

// BlockingDependents returns the subset of PossibleDependents for which pv
// is the *only* possible resolution: the set that forbids deleting pv.
func (r *Resolver) BlockingDependents(ctx context.Context, pv entity.PackageVersion) ([]entity.Dependency, error) {
	deps, err := r.store.ListDependenciesOnPackage(ctx, pv.ID)
	if err != nil {
		return nil, err
	}
	var out []entity.Dependency
	for _, dep := range deps {
		candidates, err := r.PossibleResolutions(ctx, dep)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 1 && candidates[0].ID == pv.ID && candidates[0].Version == pv.Version {
			out = append(out, dep)
		}
	}
	return out, nil
}

// DescribeBlockingDependents builds the human-readable description carried
// on entity.BlockingDependencyError, listing each blocking dependent's
// package id.
func DescribeBlockingDependents(deps []entity.Dependency) string {
	ids := make([]string, 0, len(deps))
	for _, d := range deps {
		ids = append(ids, d.ID)
	}
	return strings.Join(ids, ", ")
}
