package spec

import (
	"bytes"
	"fmt"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/cuemby/wafflemaker/pkg/types"
	"github.com/cuemby/wafflemaker/pkg/wferrors"
)

// rawSpec mirrors types.ServiceSpec but defers the polymorphic fields
// (dependencies, secrets) to custom TOML unmarshalers.
type rawSpec struct {
	Dependencies rawDependencies          `toml:"dependencies"`
	Docker       rawDocker                `toml:"docker"`
	Environment  map[string]string        `toml:"environment"`
	Secrets      map[string]rawSecretDecl `toml:"secrets"`
	Web          *rawWeb                  `toml:"web"`
	Health       *rawHealth               `toml:"health"`
}

type rawDependencies struct {
	Postgres *rawDepRef `toml:"postgres"`
	Redis    *rawDepRef `toml:"redis"`
}

type rawDocker struct {
	Image  string    `toml:"image"`
	Tag    string    `toml:"tag"`
	Update rawUpdate `toml:"update"`
}

type rawUpdate struct {
	Automatic      bool     `toml:"automatic"`
	AdditionalTags []string `toml:"additional_tags"`
}

type rawWeb struct {
	Enabled bool   `toml:"enabled"`
	Base    string `toml:"base"`
}

type rawHealth struct {
	Kind    string   `toml:"kind"`
	Path    string   `toml:"path"`
	Address string   `toml:"address"`
	Command []string `toml:"command"`
}

// Parse decodes a TOML service definition and validates it against the
// rules in §4.3. Unknown fields anywhere in the document are rejected.
func Parse(data []byte) (types.ServiceSpec, error) {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var raw rawSpec
	if err := dec.Decode(&raw); err != nil {
		return types.ServiceSpec{}, wferrors.Wrap(wferrors.KindParse, "decode service spec", err)
	}

	out := types.ServiceSpec{
		Dependencies: types.Dependencies{
			Postgres: raw.Dependencies.Postgres.toDepRef(),
			Redis:    raw.Dependencies.Redis.toDepRef(),
		},
		Docker: types.DockerSpec{
			Image: raw.Docker.Image,
			Tag:   raw.Docker.Tag,
			Update: types.UpdatePolicy{
				Automatic:      raw.Docker.Update.Automatic,
				AdditionalTags: raw.Docker.Update.AdditionalTags,
			},
		},
		Environment: raw.Environment,
		Secrets:     make(map[string]types.SecretDecl, len(raw.Secrets)),
	}
	if out.Docker.Tag == "" {
		out.Docker.Tag = "latest"
	}
	if out.Docker.Update.AdditionalTags == nil {
		out.Docker.Update.AdditionalTags = []string{}
	}
	for name, decl := range raw.Secrets {
		out.Secrets[name] = decl.SecretDecl
	}
	if raw.Web != nil {
		out.Web = &types.WebSpec{Enabled: raw.Web.Enabled, Base: raw.Web.Base}
	}
	if raw.Health != nil {
		out.Health = &types.HealthCheckSpec{
			Kind:    types.HealthCheckKind(raw.Health.Kind),
			Path:    raw.Health.Path,
			Address: raw.Health.Address,
			Command: raw.Health.Command,
		}
	}

	if err := validate(&out); err != nil {
		return types.ServiceSpec{}, err
	}
	return out, nil
}

func (d *rawDepRef) toDepRef() *types.DepRef {
	if d == nil {
		return nil
	}
	ref := d.DepRef
	return &ref
}

// rawDepRef decodes a dependency declaration, which the TOML document may
// express as a bare bool, a bare string (variable rename), or a table with
// optional role/name fields.
type rawDepRef struct {
	types.DepRef
}

func (d *rawDepRef) UnmarshalTOML(value interface{}) error {
	switch v := value.(type) {
	case bool:
		d.Enabled = v
	case string:
		d.Enabled = true
		d.Rename = v
	case map[string]interface{}:
		d.Enabled = true
		if role, ok := v["role"].(string); ok {
			d.Role = role
		}
		if name, ok := v["name"].(string); ok {
			d.Rename = name
		}
		for k := range v {
			if k != "role" && k != "name" {
				return wferrors.New(wferrors.KindParse, fmt.Sprintf("unknown dependency field %q", k))
			}
		}
	default:
		return wferrors.New(wferrors.KindParse, fmt.Sprintf("invalid dependency declaration of type %T", value))
	}
	return nil
}

// rawSecretDecl decodes a secrets[name] entry, which may be the bare string
// "load" or a table discriminated by its "kind" field.
type rawSecretDecl struct {
	types.SecretDecl
}

func (s *rawSecretDecl) UnmarshalTOML(value interface{}) error {
	switch v := value.(type) {
	case string:
		if v != "load" {
			return wferrors.New(wferrors.KindParse, fmt.Sprintf("invalid secret declaration %q", v))
		}
		s.Kind = types.SecretLoad
	case map[string]interface{}:
		kind, _ := v["kind"].(string)
		var allowed map[string]bool
		switch types.SecretKind(kind) {
		case types.SecretAWS:
			s.Kind = types.SecretAWS
			s.Role, _ = v["role"].(string)
			part, _ := v["part"].(string)
			s.Part = types.AWSPart(part)
			allowed = map[string]bool{"kind": true, "role": true, "part": true}
		case types.SecretGenerate:
			s.Kind = types.SecretGenerate
			format, _ := v["format"].(string)
			s.Format = types.GenerateFormat(format)
			s.Length = toInt(v["length"])
			if r, ok := v["regenerate"].(bool); ok {
				s.Regenerate = r
			}
			allowed = map[string]bool{"kind": true, "format": true, "length": true, "regenerate": true}
		default:
			return wferrors.New(wferrors.KindParse, fmt.Sprintf("unknown secret kind %q", kind))
		}
		for k := range v {
			if !allowed[k] {
				return wferrors.New(wferrors.KindParse, fmt.Sprintf("unknown secret field %q", k))
			}
		}
	default:
		return wferrors.New(wferrors.KindParse, fmt.Sprintf("invalid secret declaration of type %T", value))
	}
	return nil
}

// toInt converts the int64/int32/float64 shapes go-toml/v2 may hand a
// generic unmarshaler for an integer field.
func toInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
