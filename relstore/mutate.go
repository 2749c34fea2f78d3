package relstore

import (
	"context"

	"github.com/nugetdepot/nugetdepot/entity"
)

// PutPackage creates or replaces a Package row.
func (tx *Tx) PutPackage(pkg entity.Package) error {
	return tx.putJSON(pkgKey(pkg.ID), pkg)
}

// DeletePackage removes a Package row. Callers must disconnect its tags
// first (see DisconnectTag) and ensure it has no remaining versions.
func (tx *Tx) DeletePackage(id string) error {
	return tx.deleteKey(pkgKey(id))
}

// PutPackageVersion creates or replaces a PackageVersion row.
func (tx *Tx) PutPackageVersion(pv entity.PackageVersion) error {
	return tx.putJSON(pkgVerKey(pv.ID, pv.Version), pv)
}

// DeletePackageVersion removes a PackageVersion row. Callers must
// disconnect its authors and dependencies first.
func (tx *Tx) DeletePackageVersion(id, version string) error {
	return tx.deleteKey(pkgVerKey(id, version))
}

// PutUser creates or replaces a User row, keeping the by-mail and
// by-apikey secondary indexes in sync.
func (tx *Tx) PutUser(ctx context.Context, u entity.User) error {
	existing, ok, err := getJSON[entity.User](ctx, tx.store, userKey(u.ID))
	if err != nil {
		return err
	}
	if ok && existing.MailKey != "" && existing.MailKey != u.MailKey {
		if err := tx.deleteKey(userByMailKey(existing.MailKey)); err != nil {
			return err
		}
	}
	if ok && existing.APIKey != "" && existing.APIKey != u.APIKey {
		if err := tx.deleteKey(userByAPIKeyKey(existing.APIKey)); err != nil {
			return err
		}
	}
	if err := tx.putJSON(userKey(u.ID), u); err != nil {
		return err
	}
	if u.MailKey != "" {
		if err := tx.putJSON(userByMailKey(u.MailKey), u.ID); err != nil {
			return err
		}
	}
	if u.APIKey != "" {
		if err := tx.putJSON(userByAPIKeyKey(u.APIKey), u.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteUser removes a User row and its secondary indexes.
func (tx *Tx) DeleteUser(ctx context.Context, id string) error {
	existing, ok, err := getJSON[entity.User](ctx, tx.store, userKey(id))
	if err != nil {
		return err
	}
	if ok && existing.MailKey != "" {
		if err := tx.deleteKey(userByMailKey(existing.MailKey)); err != nil {
			return err
		}
	}
	if ok && existing.APIKey != "" {
		if err := tx.deleteKey(userByAPIKeyKey(existing.APIKey)); err != nil {
			return err
		}
	}
	return tx.deleteKey(userKey(id))
}

// ConnectTag links tag to pkg, creating the Tag row if it doesn't already
// exist (Tag.new + PackageHasTag.new in the original).
func (tx *Tx) ConnectTag(ctx context.Context, packageID, tagID string) error {
	if _, ok, err := getJSON[entity.Tag](ctx, tx.store, tagKey(tagID)); err != nil {
		return err
	} else if !ok {
		if err := tx.putJSON(tagKey(tagID), entity.Tag{ID: tagID}); err != nil {
			return err
		}
	}
	if err := tx.putJSON(pkgTagByPkgKey(packageID, tagID), tagID); err != nil {
		return err
	}
	return tx.putJSON(pkgTagByTagKey(tagID, packageID), packageID)
}

// DisconnectTag unlinks tag from pkg, and deletes the Tag row itself if
// this was its last referring package (the last-referrer GC pattern
// dependency.rs/author.rs/tag.rs all share).
func (tx *Tx) DisconnectTag(ctx context.Context, packageID, tagID string) error {
	if err := tx.deleteKey(pkgTagByPkgKey(packageID, tagID)); err != nil {
		return err
	}
	if err := tx.deleteKey(pkgTagByTagKey(tagID, packageID)); err != nil {
		return err
	}
	remaining, err := listPrefix[string](ctx, tx.store, pkgTagByTagPrefix(tagID))
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return tx.deleteKey(tagKey(tagID))
	}
	return nil
}

// ConnectAuthor links author to pv, creating the Author row if needed.
func (tx *Tx) ConnectAuthor(ctx context.Context, id, version, authorID string) error {
	if _, ok, err := getJSON[entity.Author](ctx, tx.store, authorKey(authorID)); err != nil {
		return err
	} else if !ok {
		if err := tx.putJSON(authorKey(authorID), entity.Author{ID: authorID}); err != nil {
			return err
		}
	}
	if err := tx.putJSON(pvAuthorByPVKey(id, version, authorID), authorID); err != nil {
		return err
	}
	return tx.putJSON(pvAuthorByAuthorKey(authorID, id, version), pvRef{ID: id, Version: version})
}

// DisconnectAuthor unlinks author from pv, garbage-collecting the Author
// row if it was the last referrer.
func (tx *Tx) DisconnectAuthor(ctx context.Context, id, version, authorID string) error {
	if err := tx.deleteKey(pvAuthorByPVKey(id, version, authorID)); err != nil {
		return err
	}
	if err := tx.deleteKey(pvAuthorByAuthorKey(authorID, id, version)); err != nil {
		return err
	}
	remaining, err := listPrefix[pvRef](ctx, tx.store, pvAuthorByAuthorPrefix(authorID))
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return tx.deleteKey(authorKey(authorID))
	}
	return nil
}

// ConnectDependency links pv to the Dependency identified by
// (depID, versionReq), creating the Dependency row if needed.
func (tx *Tx) ConnectDependency(ctx context.Context, id, version, depID, versionReq string) error {
	if _, ok, err := getJSON[entity.Dependency](ctx, tx.store, depKey(depID, versionReq)); err != nil {
		return err
	} else if !ok {
		dep := entity.Dependency{ID: depID, VersionReq: versionReq}
		if err := tx.putJSON(depKey(depID, versionReq), dep); err != nil {
			return err
		}
	}
	join := entity.PackageVersionHasDependency{ID: id, DependencyPackageID: depID, Version: version, VersionReq: versionReq}
	if err := tx.putJSON(pvDepByPVKey(id, version, depID, versionReq), join); err != nil {
		return err
	}
	return tx.putJSON(pvDepByDepKey(depID, versionReq, id, version), pvRef{ID: id, Version: version})
}

// DisconnectDependency unlinks pv from the Dependency identified by
// (depID, versionReq), garbage-collecting the Dependency row if it was the
// last referrer.
func (tx *Tx) DisconnectDependency(ctx context.Context, id, version, depID, versionReq string) error {
	if err := tx.deleteKey(pvDepByPVKey(id, version, depID, versionReq)); err != nil {
		return err
	}
	if err := tx.deleteKey(pvDepByDepKey(depID, versionReq, id, version)); err != nil {
		return err
	}
	remaining, err := listPrefix[pvRef](ctx, tx.store, pvDepByDepPrefix(depID, versionReq))
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return tx.deleteKey(depKey(depID, versionReq))
	}
	return nil
}
