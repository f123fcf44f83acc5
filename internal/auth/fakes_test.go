package auth

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/authgate-io/authgate/internal/domain"
	"github.com/authgate-io/authgate/internal/identity"
	"github.com/authgate-io/authgate/internal/storage"
)

// userRecord is a fakeStorage account: the user plus the local-account
// credential state.
type userRecord struct {
	user       domain.AuthUser
	local      bool
	hash, salt []byte
	forceReset bool
	lastReset  *time.Time
}

// fakeStorage is an in-memory Storage for engine tests. It reproduces the
// contract the engine relies on, including the error kinds and messages of
// the real store.
type fakeStorage struct {
	mu       sync.Mutex
	users    map[string]*userRecord
	tokens   map[string]*domain.HashedToken
	temp     map[string]domain.TempIdentities
	croles   map[string]string
	cfg      *domain.AuthConfigSet
	loginSet bool
}

var _ storage.Storage = (*fakeStorage)(nil)

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		users:  map[string]*userRecord{},
		tokens: map[string]*domain.HashedToken{},
		temp:   map[string]domain.TempIdentities{},
		croles: map[string]string{},
	}
}

func noSuchUserErr(name domain.UserName) error {
	return domain.Errorf(domain.ErrNoSuchUser, "No such user: %s", name.Name())
}

func (f *fakeStorage) userByIdentity(ri domain.RemoteIdentity) (*userRecord, domain.RemoteIdentityWithLocalID, bool) {
	for _, rec := range f.users {
		for _, id := range rec.user.Identities {
			if id.RemoteID == ri.RemoteID {
				return rec, id, true
			}
		}
	}
	return nil, domain.RemoteIdentityWithLocalID{}, false
}

func copyUser(u domain.AuthUser) *domain.AuthUser {
	out := u
	out.Roles = append([]domain.Role(nil), u.Roles...)
	out.CustomRoles = append([]string(nil), u.CustomRoles...)
	out.Identities = append([]domain.RemoteIdentityWithLocalID(nil), u.Identities...)
	return &out
}

func (f *fakeStorage) CreateUser(_ context.Context, user *domain.AuthUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.UserName.Name()]; ok {
		return domain.Errorf(domain.ErrUserExists, "User %s already exists", user.UserName.Name())
	}
	for _, id := range user.Identities {
		if _, _, ok := f.userByIdentity(id.RemoteIdentity); ok {
			return domain.NewError(domain.ErrIdentityLinked, "Identity already linked")
		}
	}
	f.users[user.UserName.Name()] = &userRecord{user: *copyUser(*user)}
	return nil
}

func (f *fakeStorage) CreateLocalUser(_ context.Context, user *domain.LocalUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.UserName.Name()]; ok {
		return domain.Errorf(domain.ErrUserExists, "User %s already exists", user.UserName.Name())
	}
	f.users[user.UserName.Name()] = &userRecord{
		user:       *copyUser(user.AuthUser),
		local:      true,
		hash:       append([]byte(nil), user.PasswordHash...),
		salt:       append([]byte(nil), user.Salt...),
		forceReset: user.ForceReset,
	}
	return nil
}

func (f *fakeStorage) GetUser(_ context.Context, name domain.UserName) (*domain.AuthUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.users[name.Name()]
	if !ok {
		return nil, noSuchUserErr(name)
	}
	return copyUser(rec.user), nil
}

func (f *fakeStorage) GetLocalUser(_ context.Context, name domain.UserName) (*domain.LocalUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.users[name.Name()]
	if !ok {
		return nil, noSuchUserErr(name)
	}
	if !rec.local {
		return nil, domain.Errorf(domain.ErrNoSuchUser, "%s is not a local user", name.Name())
	}
	return &domain.LocalUser{
		AuthUser:     *copyUser(rec.user),
		PasswordHash: append([]byte(nil), rec.hash...),
		Salt:         append([]byte(nil), rec.salt...),
		ForceReset:   rec.forceReset,
		LastReset:    rec.lastReset,
	}, nil
}

func (f *fakeStorage) GetUserByIdentity(_ context.Context, ri domain.RemoteIdentity) (*domain.AuthUser, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, _, ok := f.userByIdentity(ri)
	if !ok {
		return nil, false, nil
	}
	return copyUser(rec.user), true, nil
}

func (f *fakeStorage) UpdateUser(_ context.Context, name domain.UserName, update domain.UserUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.users[name.Name()]
	if !ok {
		return noSuchUserErr(name)
	}
	if update.DisplayName != nil {
		rec.user.DisplayName = *update.DisplayName
	}
	if update.Email != nil {
		rec.user.Email = *update.Email
	}
	return nil
}

func (f *fakeStorage) SetLastLogin(_ context.Context, name domain.UserName, login time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.users[name.Name()]
	if !ok {
		return noSuchUserErr(name)
	}
	rec.user.LastLogin = &login
	return nil
}

func (f *fakeStorage) ChangePassword(_ context.Context, name domain.UserName, hash, salt []byte, forceReset bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.users[name.Name()]
	if !ok {
		return noSuchUserErr(name)
	}
	if !rec.local {
		return domain.Errorf(domain.ErrNoSuchUser, "%s is not a local user", name.Name())
	}
	rec.hash = append([]byte(nil), hash...)
	rec.salt = append([]byte(nil), salt...)
	rec.forceReset = forceReset
	now := time.Now()
	rec.lastReset = &now
	return nil
}

func (f *fakeStorage) ForcePasswordReset(_ context.Context, name domain.UserName) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.users[name.Name()]
	if !ok {
		return noSuchUserErr(name)
	}
	if !rec.local {
		return domain.Errorf(domain.ErrNoSuchUser, "%s is not a local user", name.Name())
	}
	rec.forceReset = true
	return nil
}

func (f *fakeStorage) ForcePasswordResetAll(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.users {
		if rec.local {
			rec.forceReset = true
		}
	}
	return nil
}

func (f *fakeStorage) DisableAccount(_ context.Context, name, admin domain.UserName, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.users[name.Name()]
	if !ok {
		return noSuchUserErr(name)
	}
	rec.user.Disabled = true
	rec.user.DisabledReason = reason
	rec.user.DisabledBy = admin
	return nil
}

func (f *fakeStorage) EnableAccount(_ context.Context, name, _ domain.UserName) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.users[name.Name()]
	if !ok {
		return noSuchUserErr(name)
	}
	rec.user.Disabled = false
	rec.user.DisabledReason = ""
	rec.user.DisabledBy = domain.UserName{}
	return nil
}

func (f *fakeStorage) Link(_ context.Context, name domain.UserName, ri domain.RemoteIdentityWithLocalID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.users[name.Name()]
	if !ok {
		return noSuchUserErr(name)
	}
	if rec.local {
		return domain.NewError(domain.ErrLinkFailed, "Cannot link identities to local accounts")
	}
	if owner, existing, ok := f.userByIdentity(ri.RemoteIdentity); ok {
		if owner != rec {
			return domain.NewError(domain.ErrIdentityLinked, "Identity already linked")
		}
		for i, id := range rec.user.Identities {
			if id.ID == existing.ID {
				rec.user.Identities[i].Details = ri.Details
			}
		}
		return nil
	}
	rec.user.Identities = append(rec.user.Identities, ri)
	return nil
}

func (f *fakeStorage) Unlink(_ context.Context, name domain.UserName, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.users[name.Name()]
	if !ok {
		return noSuchUserErr(name)
	}
	if len(rec.user.Identities) <= 1 {
		return domain.NewError(domain.ErrUnlinkFailed, "The user has only one associated identity")
	}
	for i, ri := range rec.user.Identities {
		if ri.ID == id {
			rec.user.Identities = append(rec.user.Identities[:i], rec.user.Identities[i+1:]...)
			return nil
		}
	}
	return domain.Errorf(domain.ErrUnlinkFailed,
		"The user does not have an identity with ID %s", id)
}

func (f *fakeStorage) GetUserDisplayNames(_ context.Context, names []domain.UserName) (map[domain.UserName]domain.DisplayName, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[domain.UserName]domain.DisplayName{}
	for _, name := range names {
		if rec, ok := f.users[name.Name()]; ok {
			out[name] = rec.user.DisplayName
		}
	}
	return out, nil
}

func (f *fakeStorage) SearchUserDisplayNames(_ context.Context, spec domain.UserSearchSpec,
	limit int, includeRoot bool) (map[domain.UserName]domain.DisplayName, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var re *regexp.Regexp
	if spec.Regex {
		var err error
		re, err = regexp.Compile(spec.Prefix)
		if err != nil {
			return nil, domain.WrapError(domain.ErrStorage, "storage: invalid search regex", err)
		}
	}
	out := map[domain.UserName]domain.DisplayName{}
	for _, rec := range f.users {
		if !includeRoot && rec.user.UserName.IsRoot() {
			continue
		}
		if !f.matches(rec, spec, re) {
			continue
		}
		out[rec.user.UserName] = rec.user.DisplayName
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStorage) matches(rec *userRecord, spec domain.UserSearchSpec, re *regexp.Regexp) bool {
	if spec.HasSearchPrefix() {
		nameHit := false
		if spec.SearchUserName {
			if re != nil {
				nameHit = re.MatchString(rec.user.UserName.Name())
			} else {
				nameHit = strings.HasPrefix(rec.user.UserName.Name(), spec.Prefix)
			}
		}
		displayHit := false
		if spec.SearchDisplayName && re == nil {
			displayHit = strings.HasPrefix(
				strings.ToLower(rec.user.DisplayName.Name()), strings.ToLower(spec.Prefix))
		}
		if !nameHit && !displayHit {
			return false
		}
	}
	for _, role := range spec.SearchRoles {
		if !rec.user.HasRole(role) {
			return false
		}
	}
	for _, cr := range spec.SearchCustomRoles {
		found := false
		for _, have := range rec.user.CustomRoles {
			if have == cr {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f *fakeStorage) UpdateRoles(_ context.Context, name domain.UserName, add, remove []domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.users[name.Name()]
	if !ok {
		return noSuchUserErr(name)
	}
	has := map[domain.Role]bool{}
	for _, r := range rec.user.Roles {
		has[r] = true
	}
	for _, r := range add {
		has[r] = true
	}
	for _, r := range remove {
		delete(has, r)
	}
	var roles []domain.Role
	for _, r := range []domain.Role{domain.RoleRoot, domain.RoleCreateAdmin,
		domain.RoleAdmin, domain.RoleDevToken, domain.RoleServToken} {
		if has[r] {
			roles = append(roles, r)
		}
	}
	rec.user.Roles = roles
	return nil
}

func (f *fakeStorage) SetCustomRole(_ context.Context, role domain.CustomRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.croles[role.ID] = role.Description
	return nil
}

func (f *fakeStorage) DeleteCustomRole(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.croles[id]; !ok {
		return domain.Errorf(domain.ErrNoSuchRole, "No such role: %s", id)
	}
	delete(f.croles, id)
	for _, rec := range f.users {
		var kept []string
		for _, cr := range rec.user.CustomRoles {
			if cr != id {
				kept = append(kept, cr)
			}
		}
		rec.user.CustomRoles = kept
	}
	return nil
}

func (f *fakeStorage) GetCustomRoles(_ context.Context) ([]domain.CustomRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CustomRole
	for id, desc := range f.croles {
		out = append(out, domain.CustomRole{ID: id, Description: desc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStorage) UpdateCustomRoles(_ context.Context, name domain.UserName, add, remove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.users[name.Name()]
	if !ok {
		return noSuchUserErr(name)
	}
	for _, id := range append(append([]string{}, add...), remove...) {
		if _, ok := f.croles[id]; !ok {
			return domain.Errorf(domain.ErrNoSuchRole, "No such role: %s", id)
		}
	}
	has := map[string]bool{}
	for _, cr := range rec.user.CustomRoles {
		has[cr] = true
	}
	for _, cr := range add {
		has[cr] = true
	}
	for _, cr := range remove {
		delete(has, cr)
	}
	var out []string
	for cr := range has {
		out = append(out, cr)
	}
	sort.Strings(out)
	rec.user.CustomRoles = out
	return nil
}

func (f *fakeStorage) StoreToken(_ context.Context, token *domain.HashedToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *token
	f.tokens[token.TokenHash] = &cp
	return nil
}

func (f *fakeStorage) GetToken(_ context.Context, tokenHash string) (*domain.HashedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[tokenHash]
	if !ok || t.IsExpired() {
		return nil, domain.NewError(domain.ErrNoSuchToken, "Token not found")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStorage) GetTokens(_ context.Context, name domain.UserName) ([]*domain.HashedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.HashedToken
	for _, t := range f.tokens {
		if t.UserName == name && !t.IsExpired() {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

func (f *fakeStorage) DeleteToken(_ context.Context, name domain.UserName, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, t := range f.tokens {
		if t.UserName == name && t.ID == id {
			delete(f.tokens, hash)
			return nil
		}
	}
	return domain.Errorf(domain.ErrNoSuchToken, "No token %s for user %s exists", id, name.Name())
}

func (f *fakeStorage) DeleteTokens(_ context.Context, name domain.UserName) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, t := range f.tokens {
		if t.UserName == name {
			delete(f.tokens, hash)
		}
	}
	return nil
}

func (f *fakeStorage) DeleteAllTokens(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = map[string]*domain.HashedToken{}
	return nil
}

func (f *fakeStorage) DeleteExpiredTokens(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, t := range f.tokens {
		if t.IsExpired() {
			delete(f.tokens, hash)
		}
	}
	return nil
}

func (f *fakeStorage) StoreTempIdentities(_ context.Context, tokenHash string, ids domain.TempIdentities) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.temp[tokenHash] = ids
	return nil
}

func (f *fakeStorage) GetTempIdentities(_ context.Context, tokenHash string) (domain.TempIdentities, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, ok := f.temp[tokenHash]
	if !ok || time.Now().After(ids.Expires) {
		return domain.TempIdentities{}, domain.NewError(domain.ErrNoSuchToken, "Token not found")
	}
	return ids, nil
}

func (f *fakeStorage) DeleteExpiredTempIdentities(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, ids := range f.temp {
		if time.Now().After(ids.Expires) {
			delete(f.temp, hash)
		}
	}
	return nil
}

func (f *fakeStorage) GetConfig(context.Context) (*domain.AuthConfigSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg == nil {
		return &domain.AuthConfigSet{
			Config: domain.AuthConfig{
				Providers:      map[string]domain.ProviderConfig{},
				TokenLifetimes: map[domain.TokenLifetimeType]time.Duration{},
			},
			External: map[string]string{},
		}, nil
	}
	cp := &domain.AuthConfigSet{
		Config: domain.AuthConfig{
			LoginAllowed:   f.cfg.Config.LoginAllowed,
			Providers:      map[string]domain.ProviderConfig{},
			TokenLifetimes: map[domain.TokenLifetimeType]time.Duration{},
		},
		External: map[string]string{},
	}
	for k, v := range f.cfg.Config.Providers {
		cp.Config.Providers[k] = v
	}
	for k, v := range f.cfg.Config.TokenLifetimes {
		cp.Config.TokenLifetimes[k] = v
	}
	for k, v := range f.cfg.External {
		cp.External[k] = v
	}
	return cp, nil
}

func (f *fakeStorage) UpdateConfig(_ context.Context, cfg *domain.AuthConfigSet, overwrite bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg == nil {
		f.cfg = &domain.AuthConfigSet{
			Config: domain.AuthConfig{
				Providers:      map[string]domain.ProviderConfig{},
				TokenLifetimes: map[domain.TokenLifetimeType]time.Duration{},
			},
			External: map[string]string{},
		}
	}
	if overwrite || !f.loginSet {
		f.cfg.Config.LoginAllowed = cfg.Config.LoginAllowed
		f.loginSet = true
	}
	for k, v := range cfg.Config.Providers {
		if _, ok := f.cfg.Config.Providers[k]; !ok || overwrite {
			f.cfg.Config.Providers[k] = v
		}
	}
	for k, v := range cfg.Config.TokenLifetimes {
		if _, ok := f.cfg.Config.TokenLifetimes[k]; !ok || overwrite {
			f.cfg.Config.TokenLifetimes[k] = v
		}
	}
	for k, v := range cfg.External {
		if _, ok := f.cfg.External[k]; !ok || overwrite {
			f.cfg.External[k] = v
		}
	}
	return nil
}

// fakeProvider is a canned identity.Provider. Each GetIdentities call
// returns the configured identities or error.
type fakeProvider struct {
	name       string
	identities []domain.RemoteIdentity
	err        error
	lastLink   bool
	calls      int
}

var _ identity.Provider = (*fakeProvider)(nil)

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) ImageURI() *url.URL {
	u, _ := url.Parse("/images/" + p.name + ".png")
	return u
}

func (p *fakeProvider) LoginURL(state string, link bool) (*url.URL, error) {
	return url.Parse("https://" + p.name + ".example.com/auth?state=" + url.QueryEscape(state) +
		"&link=" + map[bool]string{false: "no", true: "yes"}[link])
}

func (p *fakeProvider) GetIdentities(_ context.Context, authcode string, link bool) ([]domain.RemoteIdentity, error) {
	p.calls++
	p.lastLink = link
	if p.err != nil {
		return nil, p.err
	}
	return append([]domain.RemoteIdentity(nil), p.identities...), nil
}

func remoteIdentity(t *testing.T, provider, id, username string) domain.RemoteIdentity {
	t.Helper()
	ri, err := domain.NewRemoteIdentity(
		domain.RemoteIdentityID{Provider: provider, ID: id},
		domain.RemoteIdentityDetails{Username: username, Fullname: username + " Fullname",
			Email: username + "@example.com"})
	require.NoError(t, err)
	return ri
}

func userName(t *testing.T, name string) domain.UserName {
	t.Helper()
	n, err := domain.NewUserName(name)
	require.NoError(t, err)
	return n
}

func displayName(t *testing.T, name string) domain.DisplayName {
	t.Helper()
	n, err := domain.NewDisplayName(name)
	require.NoError(t, err)
	return n
}

// newTestEngine builds an engine over the fake storage and providers.
func newTestEngine(t *testing.T, fs *fakeStorage, providers ...identity.Provider) *Authentication {
	t.Helper()
	reg, err := identity.NewRegistry(providers...)
	require.NoError(t, err)
	a, err := New(context.Background(), Deps{Storage: fs, Providers: reg})
	require.NoError(t, err)
	return a
}

// setConfig mutates the stored configuration directly and drops the
// engine's cache so the change is visible immediately.
func setConfig(t *testing.T, a *Authentication, fs *fakeStorage, mutate func(*domain.AuthConfigSet)) {
	t.Helper()
	fs.mu.Lock()
	require.NotNil(t, fs.cfg)
	mutate(fs.cfg)
	fs.mu.Unlock()
	a.cfg.invalidate()
}

// rootToken creates the root account and logs it in.
func rootToken(t *testing.T, a *Authentication) domain.IncomingToken {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.CreateRoot(ctx, []byte("rootpassword")))
	res, err := a.LocalLogin(ctx, domain.Root(), []byte("rootpassword"))
	require.NoError(t, err)
	require.NotNil(t, res.Token)
	return incoming(t, res.Token.Token)
}

func incoming(t *testing.T, plain string) domain.IncomingToken {
	t.Helper()
	it, err := domain.NewIncomingToken(plain)
	require.NoError(t, err)
	return it
}

// makeLocalUser creates a local account with the given roles and password
// directly in storage, bypassing the admin-only creation path.
func makeLocalUser(t *testing.T, a *Authentication, fs *fakeStorage, name, password string,
	roles ...domain.Role) domain.UserName {
	t.Helper()
	un := userName(t, name)
	salt, err := a.randGen.Salt()
	require.NoError(t, err)
	require.NoError(t, fs.CreateLocalUser(context.Background(), &domain.LocalUser{
		AuthUser: domain.AuthUser{
			UserName:    un,
			Email:       domain.UnknownEmail,
			DisplayName: displayName(t, name+" display"),
			Roles:       roles,
			Created:     time.Now(),
		},
		PasswordHash: a.hasher.Hash([]byte(password), salt),
		Salt:         salt,
	}))
	return un
}

// makeStandardUser creates an identity-linked account directly in storage.
func makeStandardUser(t *testing.T, fs *fakeStorage, name string,
	ids ...domain.RemoteIdentityWithLocalID) domain.UserName {
	t.Helper()
	un := userName(t, name)
	require.NoError(t, fs.CreateUser(context.Background(), &domain.AuthUser{
		UserName:    un,
		Email:       domain.UnknownEmail,
		DisplayName: displayName(t, name+" display"),
		Identities:  ids,
		Created:     time.Now(),
	}))
	return un
}

// loginTokenFor stores a fresh login token for the user directly in storage
// and returns it in incoming form.
func loginTokenFor(t *testing.T, a *Authentication, fs *fakeStorage,
	name domain.UserName) domain.IncomingToken {
	t.Helper()
	plain, err := a.randGen.Token()
	require.NoError(t, err)
	nt := domain.NewLoginToken(plain, name, time.Hour)
	require.NoError(t, fs.StoreToken(context.Background(), &nt.HashedToken))
	return incoming(t, plain)
}

func enableLogin(t *testing.T, a *Authentication, fs *fakeStorage) {
	t.Helper()
	setConfig(t, a, fs, func(cfg *domain.AuthConfigSet) {
		cfg.Config.LoginAllowed = true
	})
}

func enableProvider(t *testing.T, a *Authentication, fs *fakeStorage, name string,
	mutate ...func(*domain.ProviderConfig)) {
	t.Helper()
	setConfig(t, a, fs, func(cfg *domain.AuthConfigSet) {
		pc := cfg.Config.Providers[name]
		pc.Enabled = true
		for _, m := range mutate {
			m(&pc)
		}
		cfg.Config.Providers[name] = pc
	})
}

func assertKind(t *testing.T, err error, kind domain.ErrorKind, message string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, domain.KindOf(err, kind), "unexpected error kind: %v", err)
	if message != "" {
		require.Equal(t, message, err.Error())
	}
}
