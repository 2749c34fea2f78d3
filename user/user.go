// Package user implements the User entity operations spec.md §3 and
// SPEC_FULL.md describe: registration, login, mail confirmation, API key
// management, and the special `admin` bootstrap account. Grounded on
// original_source/src/web/backend/db/schema/user.rs, translated from its
// Diesel/bcrypt/cldap/lettre stack to relstore + golang.org/x/crypto/bcrypt
// + google/uuid, with LDAP authentication and mail delivery modeled as
// external-collaborator interfaces per spec.md §5 ("a process-wide session
// table... is mentioned only as an external collaborator").
package user

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nugetdepot/nugetdepot/entity"
	"github.com/nugetdepot/nugetdepot/relstore"
)

// AdminID is the username of the built-in administrator account,
// mirroring entity.User.IsAdmin's check.
const AdminID = "admin"

// LDAPAuthenticator is the external collaborator that validates a
// username/password pair against a directory server and returns the
// matching display name on success. Nil disables LDAP login entirely.
type LDAPAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (fullName string, ok bool, err error)
}

// Mailer is the external collaborator that delivers the mail-confirmation
// message. Nil disables the send step; accounts are then auto-confirmed,
// matching the original's CONFIG.auth.mail.is_none() behavior.
type Mailer interface {
	SendConfirmation(ctx context.Context, mail, confirmURL string) error
}

// Service implements the user lifecycle over a relstore.Store.
type Service struct {
	store          *relstore.Store
	ldap           LDAPAuthenticator
	mailer         Mailer
	confirmURLBase string // e.g. "https://feed.example/mail_confirmation"
}

// New constructs a Service. ldap and mailer may be nil to disable those
// external integrations.
func New(store *relstore.Store, ldap LDAPAuthenticator, mailer Mailer, confirmURLBase string) *Service {
	return &Service{store: store, ldap: ldap, mailer: mailer, confirmURLBase: confirmURLBase}
}

// Register creates a new Plain-auth User. Fails if the username is
// already taken by a stored User; names that exist only in the LDAP
// directory are not checked (the original's ldap_common_name probe has no
// counterpart here).
func (s *Service) Register(ctx context.Context, username, fullName, mail, password string) (entity.User, error) {
	if _, err := s.store.GetUser(ctx, username); err == nil {
		return entity.User{}, fmt.Errorf("user %q already exists", username)
	} else if err != entity.ErrNotFound {
		return entity.User{}, fmt.Errorf("%w: %s", entity.ErrStorage, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return entity.User{}, fmt.Errorf("%w: %s", entity.ErrStorage, err)
	}

	u := entity.User{
		ID:       username,
		Name:     fullName,
		Mail:     mail,
		MailKey:  newOpaqueKey(),
		Provider: entity.ProviderPlain,
		Password: string(hash),
	}

	if s.mailer != nil {
		u.Confirmed = false
		if err := s.putUser(ctx, u); err != nil {
			return entity.User{}, err
		}
		if err := s.mailer.SendConfirmation(ctx, mail, s.confirmURLBase+"/"+u.MailKey); err != nil {
			return entity.User{}, fmt.Errorf("register succeeded but confirmation mail failed: %w", err)
		}
		return u, nil
	}

	u.Confirmed = true
	if err := s.putUser(ctx, u); err != nil {
		return entity.User{}, err
	}
	return u, nil
}

func (s *Service) putUser(ctx context.Context, u entity.User) error {
	tx := s.store.Begin(ctx)
	if err := tx.PutUser(ctx, u); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %s", entity.ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %s", entity.ErrStorage, err)
	}
	return nil
}

// ConfirmMail marks the User identified by mailKey as confirmed.
func (s *Service) ConfirmMail(ctx context.Context, mailKey string) (entity.User, error) {
	u, err := s.store.GetUserByMailKey(ctx, mailKey)
	if err != nil {
		return entity.User{}, err
	}
	u.Confirmed = true
	if err := s.putUser(ctx, u); err != nil {
		return entity.User{}, err
	}
	return u, nil
}

// SetMail changes a Plain-auth user's mail address, regenerates their
// confirmation key, resets confirmed to false (unless mail delivery is
// disabled, in which case the account is auto-confirmed as in Register),
// and revokes any existing API key — the original's set_mail does the
// same, treating a mail change as re-establishing identity.
func (s *Service) SetMail(ctx context.Context, u entity.User, mail string) (entity.User, error) {
	if u.Provider != entity.ProviderPlain {
		return entity.User{}, entity.ErrInvalidProvider
	}
	u.Mail = mail
	u.MailKey = newOpaqueKey()
	u.APIKey = ""
	u.Confirmed = s.mailer == nil

	if err := s.putUser(ctx, u); err != nil {
		return entity.User{}, err
	}
	if s.mailer != nil {
		if err := s.mailer.SendConfirmation(ctx, mail, s.confirmURLBase+"/"+u.MailKey); err != nil {
			return u, fmt.Errorf("mail updated but confirmation mail failed: %w", err)
		}
	}
	return u, nil
}

// Login verifies username/password against the stored User, dispatching
// to LDAP or bcrypt depending on the User's provider. If no local User
// exists and an LDAPAuthenticator is configured, a successful LDAP
// authentication implicitly provisions a new LDAP-backed User, mirroring
// the original's "create on first successful LDAP login" behavior.
func (s *Service) Login(ctx context.Context, username, password string) (bool, error) {
	u, err := s.store.GetUser(ctx, username)
	if err == entity.ErrNotFound {
		if s.ldap == nil {
			return false, nil
		}
		fullName, ok, err := s.ldap.Authenticate(ctx, username, password)
		if err != nil || !ok {
			return false, err
		}
		newUser := entity.User{ID: username, Name: fullName, Provider: entity.ProviderLDAP, Confirmed: true}
		if err := s.putUser(ctx, newUser); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %s", entity.ErrStorage, err)
	}

	switch u.Provider {
	case entity.ProviderLDAP:
		if s.ldap == nil {
			return false, nil
		}
		_, ok, err := s.ldap.Authenticate(ctx, username, password)
		return ok, err
	case entity.ProviderPlain:
		if u.Password == "" {
			return false, fmt.Errorf("user %q has no password hash set", username)
		}
		err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
		return err == nil, nil
	default:
		return false, entity.ErrInvalidProvider
	}
}

// UpdatePassword changes a Plain-auth user's password.
func (s *Service) UpdatePassword(ctx context.Context, u entity.User, password string) (entity.User, error) {
	if u.Provider != entity.ProviderPlain {
		return entity.User{}, entity.ErrInvalidProvider
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return entity.User{}, fmt.Errorf("%w: %s", entity.ErrStorage, err)
	}
	u.Password = string(hash)
	if err := s.putUser(ctx, u); err != nil {
		return entity.User{}, err
	}
	return u, nil
}

// GenerateAPIKey issues a new opaque API key for u, replacing any
// previous one.
func (s *Service) GenerateAPIKey(ctx context.Context, u entity.User) (entity.User, error) {
	u.APIKey = newOpaqueKey()
	if err := s.putUser(ctx, u); err != nil {
		return entity.User{}, err
	}
	return u, nil
}

// RevokeAPIKey clears u's API key.
func (s *Service) RevokeAPIKey(ctx context.Context, u entity.User) (entity.User, error) {
	u.APIKey = ""
	if err := s.putUser(ctx, u); err != nil {
		return entity.User{}, err
	}
	return u, nil
}

// GetByAPIKey resolves the User an API key belongs to, used by the
// upload/delete HTTP handlers to authenticate X-NuGet-ApiKey.
func (s *Service) GetByAPIKey(ctx context.Context, apiKey string) (entity.User, error) {
	return s.store.GetUserByAPIKey(ctx, apiKey)
}

// Delete removes u, first reassigning every Package it maintains to
// admin so no Package is left without a valid maintainer (invariant 8 in
// spec.md §3), mirroring the original's delete's update_maintainer sweep.
func (s *Service) Delete(ctx context.Context, u entity.User) error {
	admin, err := s.store.GetUser(ctx, AdminID)
	if err != nil {
		return fmt.Errorf("%w: %s", entity.ErrStorage, err)
	}

	packages, err := s.store.ListPackages(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s", entity.ErrStorage, err)
	}
	for _, pkg := range packages {
		if pkg.Maintainer != u.ID {
			continue
		}
		pkg.Maintainer = admin.ID
		tx := s.store.Begin(ctx)
		if err := tx.PutPackage(pkg); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: %s", entity.ErrStorage, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: %s", entity.ErrStorage, err)
		}
	}

	tx := s.store.Begin(ctx)
	if err := tx.DeleteUser(ctx, u.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %s", entity.ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %s", entity.ErrStorage, err)
	}
	return nil
}

// EnsureAdmin makes sure the built-in admin account exists with password
// set, creating it if this is the first boot. Called once at startup per
// spec.md §3 invariant 7.
func (s *Service) EnsureAdmin(ctx context.Context, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("%w: %s", entity.ErrStorage, err)
	}

	admin, err := s.store.GetUser(ctx, AdminID)
	switch err {
	case nil:
		admin.Password = string(hash)
	case entity.ErrNotFound:
		admin = entity.User{ID: AdminID, Name: AdminID, Provider: entity.ProviderPlain, Confirmed: true, Password: string(hash)}
	default:
		return fmt.Errorf("%w: %s", entity.ErrStorage, err)
	}
	return s.putUser(ctx, admin)
}

func newOpaqueKey() string {
	return uuid.NewString()
}
