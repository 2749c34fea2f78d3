// Package feed renders the NuGet v2 OData Atom documents spec.md §6
// requires byte-compatible clients to parse: the service document, the
// $metadata EDMX schema, and Packages/FindPackagesById/Search/GetUpdates
// feeds of <entry> elements. Grounded on original_source's
// src/web/backend/xml.rs (ToNugetFeedXml::xml_entry, field-by-field) and
// the views/api/{index,metadata,package,packagesbyid,search,updates}.rs
// call sites that wrap entries in a feed envelope.
//
// This package builds XML by hand with a strings.Builder rather than
// encoding/xml: the wire format mixes three fixed namespace prefixes
// (atom default, d:, m:) with per-field m:null/m:type attributes in a
// way Go's encoding/xml cannot express without fighting its namespace
// model, and no library in the example pack offers OData/Atom feed
// generation. See DESIGN.md for this standard-library justification.
package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/nugetdepot/nugetdepot/entity"
	"github.com/nugetdepot/nugetdepot/nugetrange"
	"github.com/nugetdepot/nugetdepot/semver"
)

const atomContentType = "application/atom+xml"

// ContentType is the MIME type every feed document in this package is
// served with.
const ContentType = atomContentType

const edmDateTimeLayout = "2006-01-02T15:04:05.0000000"

func edmDateTime(t time.Time) string {
	if t.IsZero() {
		t = time.Unix(0, 0).UTC()
	}
	return t.UTC().Format(edmDateTimeLayout)
}

func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// writeNullableString writes a d:<name> element, empty-with-m:null when s is
// empty, matching the original's pattern of marking absent optional
// nuspec fields rather than omitting the element.
func writeNullableString(b *strings.Builder, name, value string) {
	if value == "" {
		fmt.Fprintf(b, "<d:%s m:null=\"true\"></d:%s>", name, name)
		return
	}
	fmt.Fprintf(b, "<d:%s>%s</d:%s>", name, escape(value), name)
}

func writeString(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "<d:%s>%s</d:%s>", name, escape(value), name)
}

func writeBool(b *strings.Builder, name string, value bool) {
	fmt.Fprintf(b, "<d:%s m:type=\"Edm.Boolean\">%t</d:%s>", name, value, name)
}

func writeInt(b *strings.Builder, name string, value int64) {
	fmt.Fprintf(b, "<d:%s m:type=\"Edm.Int32\">%d</d:%s>", name, value, name)
}

func writeDateTime(b *strings.Builder, name string, t time.Time) {
	fmt.Fprintf(b, "<d:%s m:type=\"Edm.DateTime\">%s</d:%s>", name, edmDateTime(t), name)
}

// EntryData carries everything Entry needs about one PackageVersion:
// the row itself, its owning Package, and the joined rows resolved
// beforehand by the caller (catalog doesn't expose entity.Package-joined
// author/tag/dependency rows directly, so handlers assembles this from
// the relstore queries it already runs for authorization/rendering).
type EntryData struct {
	Package                 entity.Package
	Version                 entity.PackageVersion
	Authors                 []string
	Tags                    []string
	Dependencies            []entity.PackageVersionHasDependency
	TotalDownloadCount      int64
	IsLatestVersion         bool
	IsAbsoluteLatestVersion bool
}

// Entry renders one <entry> element for d.Version, matching
// xml.rs's xml_entry field order and nullability exactly.
func Entry(baseURL string, d EntryData) string {
	var b strings.Builder
	pv := d.Version

	fmt.Fprintf(&b, "<entry><id>%s/api/v2/Packages(Id=&apos;%s&apos;,Version=&apos;%s&apos;)</id>", baseURL, escape(pv.ID), escape(pv.Version))
	fmt.Fprintf(&b, "<title type=\"text\">%s</title>", escape(pv.ID))
	fmt.Fprintf(&b, "<summary type=\"text\">%s</summary>", escape(pv.Summary))
	fmt.Fprintf(&b, "<updated>%sZ</updated>", pv.Updated.UTC().Format("2006-01-02T15:04:05"))

	b.WriteString("<author>")
	for _, author := range d.Authors {
		fmt.Fprintf(&b, "<name>%s</name>", escape(author))
	}
	b.WriteString("</author>")

	b.WriteString(`<category term="NuGetGallery.V2FeedPackage" scheme="http://schemas.microsoft.com/ado/2007/08/dataservices/scheme"/>`)
	fmt.Fprintf(&b, "<content type=\"application/zip\" src=\"%s/api/v2/package/%s/%s\"/>", baseURL, pv.ID, pv.Version)

	b.WriteString(`<m:properties xmlns:m="http://schemas.microsoft.com/ado/2007/08/dataservices/metadata" xmlns:d="http://schemas.microsoft.com/ado/2007/08/dataservices">`)
	writeString(&b, "Version", pv.Version)
	writeNullableString(&b, "Title", pv.Title)
	writeNullableString(&b, "Description", pv.Description)
	fmt.Fprintf(&b, "<d:Tags xml:space=\"preserve\"> %s </d:Tags>", escape(strings.Join(d.Tags, " ")))
	writeDateTime(&b, "Created", pv.Created)

	var depStrings []string
	for _, dep := range d.Dependencies {
		nugetReq := dep.VersionReq
		if r, err := nugetrange.Parse(dep.VersionReq); err == nil {
			if s, err := nugetrange.ToNuGet(r); err == nil {
				nugetReq = s
			}
		}
		depStrings = append(depStrings, fmt.Sprintf("%s:%s:", dep.DependencyPackageID, nugetReq))
	}
	writeString(&b, "Dependencies", strings.Join(depStrings, "|"))

	writeInt(&b, "DownloadCount", d.TotalDownloadCount)
	writeInt(&b, "VersionDownloadCount", pv.DownloadCount)
	writeNullableString(&b, "ReportAbuseUrl", d.Package.ReportAbuseURL)
	writeNullableString(&b, "IconUrl", pv.IconURL)
	writeBool(&b, "IsLatestVersion", d.IsLatestVersion)
	writeBool(&b, "IsAbsoluteLatestVersion", d.IsAbsoluteLatestVersion)

	v, err := semver.Parse(pv.Version)
	writeBool(&b, "IsPrerelease", err == nil && v.IsPrerelease())

	writeDateTime(&b, "Published", pv.Created)
	writeNullableString(&b, "LicenseUrl", d.Package.LicenseURL)
	writeBool(&b, "RequireLicenseAcceptance", pv.RequireLicenseAcceptance)
	writeNullableString(&b, "PackageHash", pv.Hash)
	writeNullableString(&b, "PackageHashAlgorithm", pv.HashAlgorithm)
	fmt.Fprintf(&b, "<d:PackageSize m:type=\"Edm.Int64\">%d</d:PackageSize>", pv.Size)
	writeNullableString(&b, "ProjectUrl", d.Package.ProjectURL)
	writeNullableString(&b, "ReleaseNotes", pv.ReleaseNotes)
	writeNullableString(&b, "ProjectSourceUrl", d.Package.ProjectSourceURL)
	writeNullableString(&b, "PackageSourceUrl", d.Package.PackageSourceURL)
	writeNullableString(&b, "DocsUrl", d.Package.DocsURL)
	writeNullableString(&b, "MailingListUrl", d.Package.MailingListURL)
	writeNullableString(&b, "BugTrackerUrl", d.Package.BugTrackerURL)
	b.WriteString("</m:properties></entry>")

	return b.String()
}

// Feed wraps a sequence of pre-rendered Entry strings in the Atom <feed>
// envelope, titled and self-identified as name (e.g. "Packages",
// "FindPackagesById", "Search", "GetUpdates"), matching
// updates.rs/packagesbyid.rs/search.rs's feed header construction.
func Feed(baseURL, name string, entries []string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	fmt.Fprintf(&b, `<feed xml:base="%s/api/v2/" xmlns:d="http://schemas.microsoft.com/ado/2007/08/dataservices" xmlns:m="http://schemas.microsoft.com/ado/2007/08/dataservices/metadata" xmlns="http://www.w3.org/2005/Atom">`, baseURL)
	fmt.Fprintf(&b, "<title type=\"text\">%s</title>", name)
	fmt.Fprintf(&b, "<id>%s/api/v2/%s</id>", baseURL, name)
	fmt.Fprintf(&b, "<updated>%sZ</updated>", time.Now().UTC().Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, `<link rel="self" title="%s" href="%s"/>`, name, name)
	for _, e := range entries {
		b.WriteString(e)
	}
	b.WriteString("</feed>")
	return b.String()
}

// ServiceDocument renders the top-level AtomPub service document GET
// /api/v2/ returns, matching views/api/index.rs.
func ServiceDocument(baseURL string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<service xmlns:atom="http://www.w3.org/2005/Atom" xmlns:app="http://www.w3.org/2007/app" xmlns="http://www.w3.org/2007/app" xml:base="%s/api/v2/">
<workspace>
    <atom:title>Default</atom:title>
    <collection href="Packages">
        <atom:title>Packages</atom:title>
    </collection>
</workspace>
</service>`, baseURL)
}
