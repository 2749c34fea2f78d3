// Package nuspec extracts package metadata from the .nuspec manifest
// embedded in a NuGet package archive (a ZIP file). Grounded on
// original_source/src/web/backend/db/schema/packageversion.rs's
// ZipArchive + treexml extraction logic, translated to archive/zip and
// encoding/xml (no ecosystem XML parser was retrieved anywhere in the
// example pack).
package nuspec

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Manifest is the subset of nuspec <metadata> this system cares about.
type Manifest struct {
	ID                       string
	Version                  string
	Title                    string
	Authors                  []string
	Tags                     []string
	Description              string
	ReleaseNotes             string
	RequireLicenseAcceptance bool
	ProjectURL               string
	LicenseURL               string
	IconURL                  string
	ProjectSourceURL         string
	PackageSourceURL         string
	DocsURL                  string
	MailingListURL           string
	BugTrackerURL            string
	ReportAbuseURL           string
	Dependencies             []Dependency
}

// Dependency is one <dependency> entry, whether declared flat or nested
// inside a <group>.
type Dependency struct {
	ID      string
	Version string // raw NuGet interval string, default "" meaning "any"
}

type nuspecXML struct {
	XMLName  xml.Name `xml:"package"`
	Metadata struct {
		ID                       string `xml:"id"`
		Version                  string `xml:"version"`
		Title                    string `xml:"title"`
		Authors                  string `xml:"authors"`
		Tags                     string `xml:"tags"`
		Description              string `xml:"description"`
		ReleaseNotes             string `xml:"releaseNotes"`
		RequireLicenseAcceptance bool   `xml:"requireLicenseAcceptance"`
		ProjectURL               string `xml:"projectUrl"`
		LicenseURL               string `xml:"licenseUrl"`
		IconURL                  string `xml:"iconUrl"`
		ProjectSourceURL         string `xml:"projectSourceUrl"`
		PackageSourceURL         string `xml:"packageSourceUrl"`
		DocsURL                  string `xml:"docsUrl"`
		MailingListURL           string `xml:"mailingListUrl"`
		BugTrackerURL            string `xml:"bugTrackerUrl"`
		ReportAbuseURL           string `xml:"reportAbuseUrl"`
		Dependencies             struct {
			Flat   []dependencyXML `xml:"dependency"`
			Groups []struct {
				Dependencies []dependencyXML `xml:"dependency"`
			} `xml:"group"`
		} `xml:"dependencies"`
	} `xml:"metadata"`
}

type dependencyXML struct {
	ID      string `xml:"id,attr"`
	Version string `xml:"version,attr"`
}

// deniedDependencyPrefix is the host's synthetic dependency Chocolatey
// injects into every package; it never corresponds to a real feed package.
const deniedDependencyPrefix = "chocolatey-core"

// Extract opens r as a ZIP archive of size, finds the first entry whose
// name contains ".nuspec", and parses its <metadata> element.
func Extract(r io.ReaderAt, size int64) (Manifest, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return Manifest{}, fmt.Errorf("nuspec: open zip: %w", err)
	}

	var nuspecFile *zip.File
	for _, f := range zr.File {
		if strings.Contains(f.Name, ".nuspec") {
			nuspecFile = f
			break
		}
	}
	if nuspecFile == nil {
		return Manifest{}, fmt.Errorf("nuspec: archive does not contain a .nuspec entry")
	}

	rc, err := nuspecFile.Open()
	if err != nil {
		return Manifest{}, fmt.Errorf("nuspec: open %s: %w", nuspecFile.Name, err)
	}
	defer rc.Close()

	var doc nuspecXML
	if err := xml.NewDecoder(rc).Decode(&doc); err != nil {
		return Manifest{}, fmt.Errorf("nuspec: parse %s: %w", nuspecFile.Name, err)
	}

	if doc.Metadata.ID == "" {
		return Manifest{}, fmt.Errorf("nuspec: metadata missing required id")
	}
	if doc.Metadata.Version == "" {
		return Manifest{}, fmt.Errorf("nuspec: metadata missing required version")
	}

	m := Manifest{
		ID:                       doc.Metadata.ID,
		Version:                  doc.Metadata.Version,
		Title:                    doc.Metadata.Title,
		Description:              doc.Metadata.Description,
		ReleaseNotes:             doc.Metadata.ReleaseNotes,
		RequireLicenseAcceptance: doc.Metadata.RequireLicenseAcceptance,
		ProjectURL:               doc.Metadata.ProjectURL,
		LicenseURL:               doc.Metadata.LicenseURL,
		IconURL:                  doc.Metadata.IconURL,
		ProjectSourceURL:         doc.Metadata.ProjectSourceURL,
		PackageSourceURL:         doc.Metadata.PackageSourceURL,
		DocsURL:                  doc.Metadata.DocsURL,
		MailingListURL:           doc.Metadata.MailingListURL,
		BugTrackerURL:            doc.Metadata.BugTrackerURL,
		ReportAbuseURL:           doc.Metadata.ReportAbuseURL,
	}

	if doc.Metadata.Tags != "" {
		m.Tags = strings.Fields(doc.Metadata.Tags)
	}
	if doc.Metadata.Authors != "" {
		for _, a := range strings.Split(doc.Metadata.Authors, ",") {
			a = strings.TrimSpace(a)
			if a != "" {
				m.Authors = append(m.Authors, a)
			}
		}
	}

	all := append([]dependencyXML{}, doc.Metadata.Dependencies.Flat...)
	for _, group := range doc.Metadata.Dependencies.Groups {
		all = append(all, group.Dependencies...)
	}
	for _, d := range all {
		if d.ID == "" || strings.HasPrefix(d.ID, deniedDependencyPrefix) {
			continue
		}
		m.Dependencies = append(m.Dependencies, Dependency{ID: d.ID, Version: d.Version})
	}

	return m, nil
}
