package spec

import (
	"fmt"
	"regexp"

	"github.com/cuemby/wafflemaker/pkg/types"
	"github.com/cuemby/wafflemaker/pkg/wferrors"
)

// domainPattern is a pragmatic DNS-validity check: labels of letters,
// digits, and hyphens, joined by dots, no leading/trailing hyphen per label.
var domainPattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?\.)+[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)

func validate(s *types.ServiceSpec) error {
	if s.Docker.Image == "" {
		return wferrors.New(wferrors.KindParse, "docker.image is required")
	}

	for name, decl := range s.Secrets {
		if err := validateSecret(name, decl); err != nil {
			return err
		}
	}

	if s.Web != nil && s.Web.Enabled {
		if s.Web.Base == "" {
			return wferrors.New(wferrors.KindParse, "web.base is required when web.enabled is true")
		}
		if !domainPattern.MatchString(s.Web.Base) {
			return wferrors.New(wferrors.KindParse, fmt.Sprintf("web.base %q is not a valid domain", s.Web.Base))
		}
	}

	if s.Health != nil {
		if err := validateHealth(s.Health); err != nil {
			return err
		}
	}

	return nil
}

func validateHealth(h *types.HealthCheckSpec) error {
	switch h.Kind {
	case types.HealthCheckHTTP:
		if h.Path == "" {
			return wferrors.New(wferrors.KindParse, "health.path is required for kind http")
		}
	case types.HealthCheckTCP:
		// address is optional; the Reconciler falls back to the candidate
		// container's inspected address.
	case types.HealthCheckExec:
		if len(h.Command) == 0 {
			return wferrors.New(wferrors.KindParse, "health.command is required for kind exec")
		}
	default:
		return wferrors.New(wferrors.KindParse, fmt.Sprintf("health.kind %q must be http, tcp, or exec", h.Kind))
	}
	return nil
}

func validateSecret(name string, decl types.SecretDecl) error {
	switch decl.Kind {
	case types.SecretLoad:
		return nil
	case types.SecretAWS:
		if decl.Role == "" {
			return wferrors.New(wferrors.KindParse, fmt.Sprintf("secrets.%s: role is required", name))
		}
		switch decl.Part {
		case types.AWSPartAccess, types.AWSPartSecret:
		default:
			return wferrors.New(wferrors.KindParse, fmt.Sprintf("secrets.%s: part must be access or secret", name))
		}
	case types.SecretGenerate:
		if decl.Length < 1 {
			return wferrors.New(wferrors.KindParse, fmt.Sprintf("secrets.%s: length must be >= 1", name))
		}
		switch decl.Format {
		case types.GenerateAlphanumeric, types.GenerateBase64, types.GenerateHex:
		default:
			return wferrors.New(wferrors.KindParse, fmt.Sprintf("secrets.%s: unknown format %q", name, decl.Format))
		}
	default:
		return wferrors.New(wferrors.KindParse, fmt.Sprintf("secrets.%s: unknown kind %q", name, decl.Kind))
	}
	return nil
}
