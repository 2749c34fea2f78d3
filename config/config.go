// Package config loads the nested TOML configuration file spec.md §6's
// "Config surface" names (backend, server, web, auth, log sections) over
// the defaults, mirroring original_source's lazy_static CONFIG that reads
// hazel.toml via toml. This package applies no command-line flags; of the
// loaded fields, cmd/nugetdepot lets flags override only the database URL
// and the listen address (in place of server.port). Grounded on original_source/src/utils/config.rs for the section
// layout and defaults, and on the teacher's cmd/depot/main.go ServeCmd
// for the idiom of exposing the same knobs as kong flags with env vars.
package config

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the full nested configuration tree, unmarshaled from TOML
// with each section's defaults applied first.
type Config struct {
	Backend Backend `toml:"backend"`
	Server  Server  `toml:"server"`
	Web     Web     `toml:"web"`
	Auth    Auth    `toml:"auth"`
	Log     Log     `toml:"log"`
}

// Backend names the database and archive-store locations, matching the
// original's BackendConfig.
type Backend struct {
	DBURL      string `toml:"db_url"`
	Storage    string `toml:"storage"`
	Migrations string `toml:"migrations"`
}

// Server names the HTTP listen port and optional TLS material.
type Server struct {
	Port  uint16 `toml:"port"`
	HTTPS *HTTPS `toml:"https"`
}

// HTTPS is present only when TLS termination is handled by this process
// rather than a reverse proxy in front of it.
type HTTPS struct {
	Certificate string `toml:"certificate"`
	Key         string `toml:"key"`
}

// Web controls upload limits and the location of static resources.
type Web struct {
	MaxUploadFilesizeMB uint32 `toml:"max_upload_filesize_mb"`
	Resources           string `toml:"resources"`
}

// Auth controls registration, session cookies, and the optional LDAP and
// mail collaborators.
type Auth struct {
	LDAP                *LDAP  `toml:"ldap"`
	SuperuserPassword   string `toml:"superuser_password"`
	CookieKey           string `toml:"cookie_key"`
	OpenForRegistration bool   `toml:"open_for_registration"`
	Mail                *Mail  `toml:"mail"`
}

// LDAP configures the directory server used to authenticate Provider ==
// LDAP users. cmd/nugetdepot does not pass this section to user.New (it
// passes a nil user.LDAPAuthenticator), so LDAP login stays disabled
// whatever is configured here.
type LDAP struct {
	ServerURI                  string `toml:"server_uri"`
	LoginMask                  string `toml:"login_mask"`
	LoginMaskCNSubstitution    string `toml:"login_mask_cn_substitution"`
	CommonName                 string `toml:"common_name"`
	Password                   string `toml:"password"`
	Scope                      string `toml:"scope"`
	Filter                     string `toml:"filter"`
	FilterUsernameSubstitution string `toml:"filter_username_substitution"`
	FullnameAttr               string `toml:"fullname_attr"`
}

// Mail configures the SMTP relay used to send confirmation mail.
// cmd/nugetdepot does not pass this section to user.New (it passes a nil
// user.Mailer), so no mail is sent and new accounts are auto-confirmed.
type Mail struct {
	Hostname        string  `toml:"hostname"`
	Port            *uint16 `toml:"port"`
	HelloName       string  `toml:"hello_name"`
	MailAddress     string  `toml:"mail_address"`
	Username        *string `toml:"username"`
	Password        string  `toml:"password"`
	UTF8            bool    `toml:"utf8"`
	Encrypt         *bool   `toml:"encrypt"`
	Authentication  *string `toml:"authentication"` // "CramMd5" or "Plain"
	FullnameWebsite string  `toml:"fullname_website"`
	DomainWebsite   string  `toml:"domain_website"`
}

// Log controls slog output, mirroring the original's verbosity-count
// semantics (0-4, higher is more verbose).
type Log struct {
	Logfile   *string `toml:"logfile"`
	Quiet     bool    `toml:"quiet"`
	Verbosity uint8   `toml:"verbosity"`
}

// Default returns a Config with every field set to the original's
// documented defaults, before TOML or flag overlays are applied.
func Default() Config {
	return Config{
		Backend: Backend{
			DBURL:      "sqlite://nugetdepot.db",
			Storage:    ".",
			Migrations: "./migrations",
		},
		Server: Server{Port: 8080},
		Web: Web{
			MaxUploadFilesizeMB: 10,
			Resources:           "./resources",
		},
		Auth: Auth{
			SuperuserPassword:   "admin",
			CookieKey:           randomCookieKey(64),
			OpenForRegistration: true,
		},
		Log: Log{Verbosity: 1},
	}
}

// Load reads path as TOML over Default()'s baseline. A missing file is
// not an error: the zero-config case runs with defaults and a random
// cookie key, same as a fresh original_source install with no
// hazel.toml yet written.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

const cookieKeyAlphabetLow = 0x20
const cookieKeyAlphabetSpan = 95

// randomCookieKey generates a printable-ASCII string of length n, the Go
// equivalent of the original's thread_rng-based rand_string used as the
// default session-signing key when none is configured. This key is the
// literal HMAC-256 secret webauth signs session JWTs with, so it comes
// from crypto/rand rather than a predictable PRNG.
func randomCookieKey(n int) string {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		panic(fmt.Errorf("config: generate cookie key: %w", err))
	}
	b := make([]byte, n)
	for i, c := range raw {
		b[i] = byte(cookieKeyAlphabetLow + int(c)%cookieKeyAlphabetSpan)
	}
	return string(b)
}
