package secrets

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/wafflemaker/pkg/types"
	"github.com/cuemby/wafflemaker/pkg/wferrors"
)

// fakeStore is an in-memory SecretStore double for resolver tests.
type fakeStore struct {
	kv      map[string]string
	dynamic map[string]*DynamicCredential
	reads   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		kv:      make(map[string]string),
		dynamic: make(map[string]*DynamicCredential),
	}
}

func (f *fakeStore) ReadKV(ctx context.Context, path string) (string, error) {
	f.reads++
	v, ok := f.kv[path]
	if !ok {
		return "", wferrors.New(wferrors.KindNotFound, path)
	}
	return v, nil
}

func (f *fakeStore) WriteKV(ctx context.Context, path, value string) error {
	f.kv[path] = value
	return nil
}

func (f *fakeStore) DeletePrefix(ctx context.Context, prefix string) error {
	for k := range f.kv {
		delete(f.kv, k)
	}
	return nil
}

func (f *fakeStore) IssueDynamic(ctx context.Context, rolePath string) (*DynamicCredential, error) {
	cred, ok := f.dynamic[rolePath]
	if !ok {
		return nil, wferrors.New(wferrors.KindNotFound, rolePath)
	}
	return cred, nil
}

func (f *fakeStore) RenewLease(ctx context.Context, leaseID string) (time.Duration, error) {
	return time.Minute, nil
}

func (f *fakeStore) RevokeLease(ctx context.Context, leaseID string) error {
	return nil
}

// zeroSource is a deterministic RandomSource returning all-zero bytes.
type zeroSource struct{}

func (zeroSource) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestResolve_PostgresDependency(t *testing.T) {
	store := newFakeStore()
	store.dynamic["database/creds/svc-a"] = &DynamicCredential{
		LeaseID: "lease-1",
		TTL:     time.Hour,
		Data:    map[string]string{"username": "u1", "password": "p1"},
	}
	r := NewResolver(store, zeroSource{}, "db.internal", "appdb", "redis.internal")

	spec := types.ServiceSpec{
		Dependencies: types.Dependencies{
			Postgres: &types.DepRef{Enabled: true},
		},
	}
	env, leases, err := r.Resolve(context.Background(), "svc-a", spec)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u1:p1@db.internal/appdb", env["POSTGRES_URL"])
	require.Len(t, leases, 1)
	assert.Equal(t, "lease-1", leases[0].ID)
	assert.Equal(t, "svc-a", leases[0].ServiceID)
}

func TestResolve_PostgresRename(t *testing.T) {
	store := newFakeStore()
	store.dynamic["database/creds/custom-role"] = &DynamicCredential{
		LeaseID: "lease-2",
		TTL:     time.Hour,
		Data:    map[string]string{"username": "u", "password": "p"},
	}
	r := NewResolver(store, zeroSource{}, "db.internal", "appdb", "redis.internal")

	spec := types.ServiceSpec{
		Dependencies: types.Dependencies{
			Postgres: &types.DepRef{Enabled: true, Role: "custom-role", Rename: "DB_URL"},
		},
	}
	env, _, err := r.Resolve(context.Background(), "svc-a", spec)
	require.NoError(t, err)
	assert.Contains(t, env, "DB_URL")
	assert.NotContains(t, env, "POSTGRES_URL")
}

func TestResolve_RedisDependency(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, zeroSource{}, "db.internal", "appdb", "redis.internal")

	spec := types.ServiceSpec{
		Dependencies: types.Dependencies{Redis: &types.DepRef{Enabled: true}},
	}
	env, leases, err := r.Resolve(context.Background(), "svc-a", spec)
	require.NoError(t, err)
	assert.Equal(t, "redis://redis.internal", env["REDIS_URL"])
	assert.Empty(t, leases)
}

func TestResolve_AWSSecret(t *testing.T) {
	store := newFakeStore()
	store.dynamic["aws/creds/uploader"] = &DynamicCredential{
		LeaseID: "lease-3",
		TTL:     time.Hour,
		Data:    map[string]string{"access_key": "AK", "secret_key": "SK"},
	}
	r := NewResolver(store, zeroSource{}, "", "", "")

	spec := types.ServiceSpec{
		Secrets: map[string]types.SecretDecl{
			"S3_ACCESS_KEY": {Kind: types.SecretAWS, Role: "uploader", Part: types.AWSPartAccess},
		},
	}
	env, leases, err := r.Resolve(context.Background(), "svc-a", spec)
	require.NoError(t, err)
	assert.Equal(t, "AK", env["S3_ACCESS_KEY"])
	require.Len(t, leases, 1)
	assert.Equal(t, "lease-3", leases[0].ID)
}

func TestResolve_GenerateReusesExistingValue(t *testing.T) {
	store := newFakeStore()
	store.kv["services/svc-a/API_KEY"] = "already-there"
	r := NewResolver(store, zeroSource{}, "", "", "")

	spec := types.ServiceSpec{
		Secrets: map[string]types.SecretDecl{
			"API_KEY": {Kind: types.SecretGenerate, Format: types.GenerateAlphanumeric, Length: 16, Regenerate: false},
		},
	}
	env, _, err := r.Resolve(context.Background(), "svc-a", spec)
	require.NoError(t, err)
	assert.Equal(t, "already-there", env["API_KEY"])
}

func TestResolve_GenerateForcedRegenerateOverwrites(t *testing.T) {
	store := newFakeStore()
	store.kv["services/svc-a/API_KEY"] = "stale"
	r := NewResolver(store, zeroSource{}, "", "", "")

	spec := types.ServiceSpec{
		Secrets: map[string]types.SecretDecl{
			"API_KEY": {Kind: types.SecretGenerate, Format: types.GenerateAlphanumeric, Length: 16, Regenerate: true},
		},
	}
	env, _, err := r.Resolve(context.Background(), "svc-a", spec)
	require.NoError(t, err)
	assert.NotEqual(t, "stale", env["API_KEY"])
	assert.Len(t, env["API_KEY"], 16)
	assert.Equal(t, env["API_KEY"], store.kv["services/svc-a/API_KEY"])
}

func TestResolve_GenerateFormats(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, zeroSource{}, "", "", "")

	cases := []struct {
		name   string
		format types.GenerateFormat
		length int
		verify func(t *testing.T, value string)
	}{
		{
			name: "alphanumeric", format: types.GenerateAlphanumeric, length: 20,
			verify: func(t *testing.T, value string) {
				assert.Len(t, value, 20)
				for _, c := range value {
					assert.Contains(t, alphanumericCharset, string(c))
				}
			},
		},
		{
			name: "hex", format: types.GenerateHex, length: 20,
			verify: func(t *testing.T, value string) {
				assert.Len(t, value, 20)
				for _, c := range value {
					assert.Contains(t, hexCharset, string(c))
				}
			},
		},
		{
			name: "base64", format: types.GenerateBase64, length: 12,
			verify: func(t *testing.T, value string) {
				decoded, err := base64.StdEncoding.DecodeString(value)
				require.NoError(t, err)
				assert.Len(t, decoded, 12)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := types.ServiceSpec{
				Secrets: map[string]types.SecretDecl{
					"SECRET": {Kind: types.SecretGenerate, Format: tc.format, Length: tc.length, Regenerate: true},
				},
			}
			env, _, err := r.Resolve(context.Background(), "svc-"+tc.name, spec)
			require.NoError(t, err)
			tc.verify(t, env["SECRET"])
		})
	}
}

func TestResolve_LoadSecret(t *testing.T) {
	store := newFakeStore()
	store.kv["services/svc-a/DB_CERT"] = "cert-data"
	r := NewResolver(store, zeroSource{}, "", "", "")

	spec := types.ServiceSpec{
		Secrets: map[string]types.SecretDecl{
			"DB_CERT": {Kind: types.SecretLoad},
		},
	}
	env, leases, err := r.Resolve(context.Background(), "svc-a", spec)
	require.NoError(t, err)
	assert.Equal(t, "cert-data", env["DB_CERT"])
	assert.Empty(t, leases)
}

func TestResolve_LoadSecretMissingIsFatal(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, zeroSource{}, "", "", "")

	spec := types.ServiceSpec{
		Secrets: map[string]types.SecretDecl{
			"DB_CERT": {Kind: types.SecretLoad},
		},
	}
	_, _, err := r.Resolve(context.Background(), "svc-a", spec)
	require.Error(t, err)
	assert.Equal(t, wferrors.KindFatal, wferrors.KindOf(err))
}

func TestResolve_EnvironmentPassthrough(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, zeroSource{}, "", "", "")

	spec := types.ServiceSpec{
		Environment: map[string]string{"LOG_LEVEL": "debug"},
	}
	env, _, err := r.Resolve(context.Background(), "svc-a", spec)
	require.NoError(t, err)
	assert.Equal(t, "debug", env["LOG_LEVEL"])
}
