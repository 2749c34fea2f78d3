package relstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nugetdepot/nugetdepot/entity"
)

func getJSON[T any](ctx context.Context, s *Store, key string) (value T, ok bool, err error) {
	raw, _, exists, err := s.kv.Get(ctx, key)
	if err != nil {
		return value, false, fmt.Errorf("relstore: get %s: %w", key, err)
	}
	if !exists {
		return value, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return value, false, fmt.Errorf("relstore: decode %s: %w", key, err)
	}
	return value, true, nil
}

func listPrefix[T any](ctx context.Context, s *Store, prefix string) (values []T, err error) {
	rows, err := s.kv.GetPrefix(ctx, prefix, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("relstore: list %s: %w", prefix, err)
	}
	values = make([]T, 0, len(rows))
	for _, row := range rows {
		var v T
		if err := json.Unmarshal([]byte(row.Value), &v); err != nil {
			return nil, fmt.Errorf("relstore: decode %s: %w", row.Key, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// GetPackage fetches a Package by id.
func (s *Store) GetPackage(ctx context.Context, id string) (pkg entity.Package, err error) {
	pkg, ok, err := getJSON[entity.Package](ctx, s, pkgKey(id))
	if err != nil {
		return entity.Package{}, err
	}
	if !ok {
		return entity.Package{}, entity.ErrNotFound
	}
	return pkg, nil
}

// GetPackageVersion fetches a PackageVersion by (id, version).
func (s *Store) GetPackageVersion(ctx context.Context, id, version string) (pv entity.PackageVersion, err error) {
	pv, ok, err := getJSON[entity.PackageVersion](ctx, s, pkgVerKey(id, version))
	if err != nil {
		return entity.PackageVersion{}, err
	}
	if !ok {
		return entity.PackageVersion{}, entity.ErrNotFound
	}
	return pv, nil
}

// ListPackageVersions returns every version of id, unordered.
func (s *Store) ListPackageVersions(ctx context.Context, id string) ([]entity.PackageVersion, error) {
	return listPrefix[entity.PackageVersion](ctx, s, pkgVerPrefix(id))
}

// ListPackages returns every Package row, unordered. Used by catalog's
// search/listing queries and by user.Delete to find the packages a
// departing user maintains; there is no secondary by-maintainer index, so
// this is a full scan over pkgRoot.
func (s *Store) ListPackages(ctx context.Context) ([]entity.Package, error) {
	return listPrefix[entity.Package](ctx, s, pkgRoot)
}

// GetUser fetches a User by id.
func (s *Store) GetUser(ctx context.Context, id string) (u entity.User, err error) {
	u, ok, err := getJSON[entity.User](ctx, s, userKey(id))
	if err != nil {
		return entity.User{}, err
	}
	if !ok {
		return entity.User{}, entity.ErrNotFound
	}
	return u, nil
}

// GetUserByMailKey fetches a User by their confirmation-mail redemption
// key, used by ConfirmMail.
func (s *Store) GetUserByMailKey(ctx context.Context, mailKey string) (u entity.User, err error) {
	id, ok, err := getJSON[string](ctx, s, userByMailKey(mailKey))
	if err != nil {
		return entity.User{}, err
	}
	if !ok {
		return entity.User{}, entity.ErrNotFound
	}
	return s.GetUser(ctx, id)
}

// GetUserByAPIKey fetches a User by their API key.
func (s *Store) GetUserByAPIKey(ctx context.Context, apiKey string) (u entity.User, err error) {
	id, ok, err := getJSON[string](ctx, s, userByAPIKeyKey(apiKey))
	if err != nil {
		return entity.User{}, err
	}
	if !ok {
		return entity.User{}, entity.ErrNotFound
	}
	return s.GetUser(ctx, id)
}

// ListPackageTags returns the tags attached to a package.
func (s *Store) ListPackageTags(ctx context.Context, packageID string) (tags []entity.Tag, err error) {
	ids, err := listPrefix[string](ctx, s, pkgTagByPkgPrefix(packageID))
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		t, ok, err := getJSON[entity.Tag](ctx, s, tagKey(id))
		if err != nil {
			return nil, err
		}
		if ok {
			tags = append(tags, t)
		}
	}
	return tags, nil
}

// ListTagPackages returns the packages carrying a tag.
func (s *Store) ListTagPackages(ctx context.Context, tagID string) (pkgs []entity.Package, err error) {
	ids, err := listPrefix[string](ctx, s, pkgTagByTagPrefix(tagID))
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		p, ok, err := getJSON[entity.Package](ctx, s, pkgKey(id))
		if err != nil {
			return nil, err
		}
		if ok {
			pkgs = append(pkgs, p)
		}
	}
	return pkgs, nil
}

// ListPackageVersionAuthors returns the authors of a specific PackageVersion.
func (s *Store) ListPackageVersionAuthors(ctx context.Context, id, version string) (authors []entity.Author, err error) {
	ids, err := listPrefix[string](ctx, s, pvAuthorByPVPrefix(id, version))
	if err != nil {
		return nil, err
	}
	for _, authorID := range ids {
		a, ok, err := getJSON[entity.Author](ctx, s, authorKey(authorID))
		if err != nil {
			return nil, err
		}
		if ok {
			authors = append(authors, a)
		}
	}
	return authors, nil
}

// ListAuthorVersions returns every PackageVersion crediting authorID.
func (s *Store) ListAuthorVersions(ctx context.Context, authorID string) (versions []entity.PackageVersion, err error) {
	refs, err := listPrefix[pvRef](ctx, s, pvAuthorByAuthorPrefix(authorID))
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		pv, err := s.GetPackageVersion(ctx, ref.ID, ref.Version)
		if err != nil {
			if err == entity.ErrNotFound {
				continue
			}
			return nil, err
		}
		versions = append(versions, pv)
	}
	return versions, nil
}

// pvRef identifies a PackageVersion by its composite key, used as the
// value stored in reverse join indexes.
type pvRef struct {
	ID      string
	Version string
}

// ListPackageVersionDependencies returns the dependencies declared by a
// specific PackageVersion, with the version requirement each join row
// carries (always the VersionReq of the Dependency row it links to, since
// Dependency rows are keyed by (id, versionReq)).
func (s *Store) ListPackageVersionDependencies(ctx context.Context, id, version string) (deps []entity.PackageVersionHasDependency, err error) {
	return listPrefix[entity.PackageVersionHasDependency](ctx, s, pvDepByPVPrefix(id, version))
}

// ListDependencyDependents returns every PackageVersion that depends on
// (depID, versionReq) exactly.
func (s *Store) ListDependencyDependents(ctx context.Context, depID, versionReq string) (versions []entity.PackageVersion, err error) {
	refs, err := listPrefix[pvRef](ctx, s, pvDepByDepPrefix(depID, versionReq))
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		pv, err := s.GetPackageVersion(ctx, ref.ID, ref.Version)
		if err != nil {
			if err == entity.ErrNotFound {
				continue
			}
			return nil, err
		}
		versions = append(versions, pv)
	}
	return versions, nil
}

// ListDependenciesOnPackage returns every Dependency row (any version
// requirement) that refers to the given package id. Used by the resolver
// to find every requirement ever placed on a package, regardless of which
// PackageVersion declared it.
func (s *Store) ListDependenciesOnPackage(ctx context.Context, packageID string) ([]entity.Dependency, error) {
	return listPrefix[entity.Dependency](ctx, s, depPrefix(packageID))
}

// GetDependency fetches a Dependency by its composite (id, versionReq) key.
func (s *Store) GetDependency(ctx context.Context, id, versionReq string) (dep entity.Dependency, err error) {
	dep, ok, err := getJSON[entity.Dependency](ctx, s, depKey(id, versionReq))
	if err != nil {
		return entity.Dependency{}, err
	}
	if !ok {
		return entity.Dependency{}, entity.ErrNotFound
	}
	return dep, nil
}
