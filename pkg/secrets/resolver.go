package secrets

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cuemby/wafflemaker/pkg/types"
	"github.com/cuemby/wafflemaker/pkg/wferrors"
)

// RandomSource is the CSPRNG boundary secret materialization draws on,
// isolated so tests can supply a deterministic source (§9).
type RandomSource interface {
	Read(p []byte) (int, error)
}

// cryptoRandSource is the production RandomSource.
type cryptoRandSource struct{}

func (cryptoRandSource) Read(p []byte) (int, error) { return rand.Read(p) }

// Resolver implements SecretResolver (§4.4): it turns a ServiceSpec's
// dependencies and secrets into a concrete env map plus the leases issued
// along the way.
type Resolver struct {
	store       SecretStore
	rand        RandomSource
	postgresHost, postgresDB, redisHost string
}

// NewResolver builds a Resolver. rand may be nil to use crypto/rand.
func NewResolver(store SecretStore, rnd RandomSource, postgresHost, postgresDB, redisHost string) *Resolver {
	if rnd == nil {
		rnd = cryptoRandSource{}
	}
	return &Resolver{
		store:        store,
		rand:         rnd,
		postgresHost: postgresHost,
		postgresDB:   postgresDB,
		redisHost:    redisHost,
	}
}

// Resolve materializes env and the leases newly issued while doing so. On
// error env is nil and the returned leases are those issued before the
// failure, so the caller can revoke them.
func (r *Resolver) Resolve(ctx context.Context, serviceID string, spec types.ServiceSpec) (map[string]string, []types.Lease, error) {
	env := make(map[string]string, len(spec.Environment)+len(spec.Secrets)+2)
	for k, v := range spec.Environment {
		env[k] = v
	}

	var leases []types.Lease

	if spec.Dependencies.Postgres != nil && spec.Dependencies.Postgres.Enabled {
		lease, err := r.resolvePostgres(ctx, serviceID, spec.Dependencies.Postgres, env)
		if err != nil {
			return nil, nil, err
		}
		leases = append(leases, *lease)
	}

	if spec.Dependencies.Redis != nil && spec.Dependencies.Redis.Enabled {
		r.resolveRedis(spec.Dependencies.Redis, env)
	}

	for name, decl := range spec.Secrets {
		lease, err := r.resolveSecret(ctx, serviceID, name, decl, env)
		if err != nil {
			return nil, leases, err
		}
		if lease != nil {
			leases = append(leases, *lease)
		}
	}

	return env, leases, nil
}

// RevokeLeases revokes every lease in leases against the store, best-effort:
// it keeps going after a failure and returns the first error encountered, so
// a rollback caller can log it without losing the remaining revocations.
func (r *Resolver) RevokeLeases(ctx context.Context, leases []types.Lease) error {
	var firstErr error
	for _, l := range leases {
		if err := r.store.RevokeLease(ctx, l.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Resolver) resolvePostgres(ctx context.Context, serviceID string, ref *types.DepRef, env map[string]string) (*types.Lease, error) {
	role := ref.Role
	if role == "" {
		role = serviceID
	}

	cred, err := r.store.IssueDynamic(ctx, "database/creds/"+role)
	if err != nil {
		return nil, err
	}

	varName := "POSTGRES_URL"
	if ref.Rename != "" {
		varName = ref.Rename
	}
	env[varName] = fmt.Sprintf("postgres://%s:%s@%s/%s",
		cred.Data["username"], cred.Data["password"], r.postgresHost, r.postgresDB)

	return &types.Lease{
		ServiceID:  serviceID,
		ID:         cred.LeaseID,
		Expiration: time.Now().Add(cred.TTL),
		TTL:        cred.TTL,
	}, nil
}

func (r *Resolver) resolveRedis(ref *types.DepRef, env map[string]string) {
	varName := "REDIS_URL"
	if ref.Rename != "" {
		varName = ref.Rename
	}
	env[varName] = fmt.Sprintf("redis://%s", r.redisHost)
}

func (r *Resolver) resolveSecret(ctx context.Context, serviceID, name string, decl types.SecretDecl, env map[string]string) (*types.Lease, error) {
	switch decl.Kind {
	case types.SecretAWS:
		return r.resolveAWS(ctx, serviceID, name, decl, env)
	case types.SecretGenerate:
		return nil, r.resolveGenerate(ctx, serviceID, name, decl, env)
	case types.SecretLoad:
		return nil, r.resolveLoad(ctx, serviceID, name, env)
	default:
		return nil, wferrors.New(wferrors.KindFatal, fmt.Sprintf("unknown secret kind for %s", name))
	}
}

func (r *Resolver) resolveAWS(ctx context.Context, serviceID, name string, decl types.SecretDecl, env map[string]string) (*types.Lease, error) {
	cred, err := r.store.IssueDynamic(ctx, "aws/creds/"+decl.Role)
	if err != nil {
		return nil, err
	}

	key := "access_key"
	if decl.Part == types.AWSPartSecret {
		key = "secret_key"
	}
	env[name] = cred.Data[key]

	return &types.Lease{
		ServiceID:  serviceID,
		ID:         cred.LeaseID,
		Expiration: time.Now().Add(cred.TTL),
		TTL:        cred.TTL,
	}, nil
}

func (r *Resolver) resolveGenerate(ctx context.Context, serviceID, name string, decl types.SecretDecl, env map[string]string) error {
	path := fmt.Sprintf("services/%s/%s", serviceID, name)

	if !decl.Regenerate {
		existing, err := r.store.ReadKV(ctx, path)
		if err == nil {
			env[name] = existing
			return nil
		}
		if !wferrors.Is(err, wferrors.KindNotFound) {
			return err
		}
	}

	value, err := generateValue(r.rand, decl.Format, decl.Length)
	if err != nil {
		return wferrors.Wrap(wferrors.KindFatal, fmt.Sprintf("generate secret %s", name), err)
	}

	if err := r.store.WriteKV(ctx, path, value); err != nil {
		return err
	}
	env[name] = value
	return nil
}

func (r *Resolver) resolveLoad(ctx context.Context, serviceID, name string, env map[string]string) error {
	path := fmt.Sprintf("services/%s/%s", serviceID, name)
	value, err := r.store.ReadKV(ctx, path)
	if err != nil {
		if wferrors.Is(err, wferrors.KindNotFound) {
			return wferrors.Wrap(wferrors.KindFatal, fmt.Sprintf("load secret %s missing", name), err)
		}
		return err
	}
	env[name] = value
	return nil
}

const (
	alphanumericCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	hexCharset          = "0123456789abcdef"
)

// generateValue draws randomness from src and encodes per format (§4.3):
// alphanumeric draws length bytes and hex (length+1)/2 bytes, both
// producing exactly length output characters; base64 encodes length random
// bytes and is not truncated.
func generateValue(src RandomSource, format types.GenerateFormat, length int) (string, error) {
	switch format {
	case types.GenerateBase64:
		buf := make([]byte, length)
		if _, err := src.Read(buf); err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(buf), nil
	case types.GenerateHex:
		buf := make([]byte, (length+1)/2)
		if _, err := src.Read(buf); err != nil {
			return "", err
		}
		return hex.EncodeToString(buf)[:length], nil
	case types.GenerateAlphanumeric:
		return randomFromCharset(src, alphanumericCharset, length)
	default:
		return "", fmt.Errorf("unknown generate format %q", format)
	}
}

func randomFromCharset(src RandomSource, charset string, length int) (string, error) {
	buf := make([]byte, length)
	if _, err := src.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = charset[int(b)%len(charset)]
	}
	return string(out), nil
}
