// Package entity defines the plain data model shared by relstore, resolver,
// lifecycle, user, and catalog: packages, versions, authors, tags,
// dependencies, users, and the join rows connecting them. See spec.md §3.
package entity

import "time"

// AuthProvider identifies how a User authenticates.
type AuthProvider string

const (
	ProviderLDAP  AuthProvider = "LDAP"
	ProviderPlain AuthProvider = "Plain"
)

// Package is the id-level record a set of PackageVersions belongs to.
// Invariant: exists iff it has at least one PackageVersion.
type Package struct {
	ID                string
	ProjectURL        string
	LicenseURL        string
	LicenseAcceptance bool
	ProjectSourceURL  string
	PackageSourceURL  string
	DocsURL           string
	MailingListURL    string
	BugTrackerURL     string
	ReportAbuseURL    string
	Maintainer        string // User.ID
}

// PackageVersion is one immutable-content upload of a Package, identified by
// (ID, Version). The archive blob is content-addressed separately in the
// Archive Store; this row carries the nuspec-derived metadata plus the
// digest of the stored blob.
type PackageVersion struct {
	ID                       string
	Version                  string // normalized SemVer string, see semver package
	Hash                     string // hex-encoded SHA-256 of the archive contents
	HashAlgorithm            string // always "Sha256"
	Size                     int64
	Title                    string
	Summary                  string
	Description              string
	ReleaseNotes             string
	IconURL                  string
	RequireLicenseAcceptance bool
	DownloadCount            int64
	Created                  time.Time
	Updated                  time.Time
}

// Author is a distinct author name, possibly shared across PackageVersions.
// Garbage-collected when its last referring PackageVersion disconnects.
type Author struct {
	ID string // the author's display name, doubles as primary key
}

// Tag is a distinct tag string, possibly shared across Packages.
// Garbage-collected when its last referring Package disconnects.
type Tag struct {
	ID string
}

// Dependency is a distinct (package id, version requirement) pair that one
// or more PackageVersions declare. Garbage-collected when its last
// referring PackageVersion disconnects.
type Dependency struct {
	ID         string // the depended-on package's id
	VersionReq string // NuGet interval notation, see nugetrange package
}

// PackageHasTag is the join row connecting a Package to a Tag.
type PackageHasTag struct {
	TagID     string
	PackageID string
}

// PackageVersionHasAuthor is the join row connecting a PackageVersion to an
// Author.
type PackageVersionHasAuthor struct {
	ID       string
	Version  string
	AuthorID string
}

// PackageVersionHasDependency is the join row connecting a PackageVersion to
// a Dependency. The version requirement is copied onto the join row; two
// PackageVersions that depend on the same package id with different
// requirements link to two distinct Dependency rows, one per (ID,
// VersionReq) pair.
type PackageVersionHasDependency struct {
	ID                  string
	DependencyPackageID string
	Version             string
	VersionReq          string
}

// User is a registered account: a maintainer, an uploader, or an
// administrator. See spec.md §3 and SPEC_FULL.md §C.
type User struct {
	ID        string
	Name      string // display name ("fullname" in the original)
	Mail      string
	MailKey   string // redemption token for ConfirmMail; regenerated on SetMail
	Confirmed bool
	Provider  AuthProvider
	Password  string // bcrypt hash; empty when Provider == ProviderLDAP
	APIKey    string // opaque UUID; empty until GenerateAPIKey
}

// IsAdmin reports whether u is the built-in administrator account.
func (u User) IsAdmin() bool {
	return u.ID == "admin"
}
