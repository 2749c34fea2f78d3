package relstore

import (
	"net/url"
	"path"
)

// Key layout. Every table gets a root prefix; join tables get both a
// forward and reverse index so traversal works from either side without a
// full scan, the same trick npm/db.go uses for its single join
// (group -> name -> version).
const (
	pkgRoot        = "/pkg"
	pkgVerRoot     = "/pkgver"
	authorRoot     = "/author"
	tagRoot        = "/tag"
	depRoot        = "/dep"
	userRoot       = "/user"
	userByMailRoot = "/userbymail"
	userByAPIKey   = "/userbyapikey"

	pkgTagByPkgRoot = "/pkgtag/bypkg"
	pkgTagByTagRoot = "/pkgtag/bytag"

	pvAuthorByPVRoot     = "/pvauthor/bypv"
	pvAuthorByAuthorRoot = "/pvauthor/byauthor"

	pvDepByPVRoot  = "/pvdep/bypv"
	pvDepByDepRoot = "/pvdep/bydep"
)

func esc(s string) string { return url.PathEscape(s) }

func pkgKey(id string) string {
	return path.Join(pkgRoot, esc(id))
}

func pkgVerKey(id, version string) string {
	return path.Join(pkgVerRoot, esc(id), esc(version))
}

func pkgVerPrefix(id string) string {
	return path.Join(pkgVerRoot, esc(id)) + "/"
}

func authorKey(id string) string {
	return path.Join(authorRoot, esc(id))
}

func tagKey(id string) string {
	return path.Join(tagRoot, esc(id))
}

func depKey(id, versionReq string) string {
	return path.Join(depRoot, esc(id), esc(versionReq))
}

func depPrefix(id string) string {
	return path.Join(depRoot, esc(id)) + "/"
}

func depAnyPrefix() string {
	return depRoot + "/"
}

func userKey(id string) string {
	return path.Join(userRoot, esc(id))
}

func userByMailKey(mail string) string {
	return path.Join(userByMailRoot, esc(mail))
}

func userByAPIKeyKey(key string) string {
	return path.Join(userByAPIKey, esc(key))
}

func pkgTagByPkgKey(packageID, tagID string) string {
	return path.Join(pkgTagByPkgRoot, esc(packageID), esc(tagID))
}

func pkgTagByPkgPrefix(packageID string) string {
	return path.Join(pkgTagByPkgRoot, esc(packageID)) + "/"
}

func pkgTagByTagKey(tagID, packageID string) string {
	return path.Join(pkgTagByTagRoot, esc(tagID), esc(packageID))
}

func pkgTagByTagPrefix(tagID string) string {
	return path.Join(pkgTagByTagRoot, esc(tagID)) + "/"
}

func pvAuthorByPVKey(id, version, authorID string) string {
	return path.Join(pvAuthorByPVRoot, esc(id), esc(version), esc(authorID))
}

func pvAuthorByPVPrefix(id, version string) string {
	return path.Join(pvAuthorByPVRoot, esc(id), esc(version)) + "/"
}

func pvAuthorByAuthorKey(authorID, id, version string) string {
	return path.Join(pvAuthorByAuthorRoot, esc(authorID), esc(id), esc(version))
}

func pvAuthorByAuthorPrefix(authorID string) string {
	return path.Join(pvAuthorByAuthorRoot, esc(authorID)) + "/"
}

func pvDepByPVKey(id, version, depID, versionReq string) string {
	return path.Join(pvDepByPVRoot, esc(id), esc(version), esc(depID), esc(versionReq))
}

func pvDepByPVPrefix(id, version string) string {
	return path.Join(pvDepByPVRoot, esc(id), esc(version)) + "/"
}

func pvDepByDepKey(depID, versionReq, id, version string) string {
	return path.Join(pvDepByDepRoot, esc(depID), esc(versionReq), esc(id), esc(version))
}

func pvDepByDepPrefix(depID, versionReq string) string {
	return path.Join(pvDepByDepRoot, esc(depID), esc(versionReq)) + "/"
}
