// Package config loads the bridge's YAML configuration file: the HTTP
// listener, the configured tenants ("api spaces"), the admin token, and
// logging options.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Root is the top-level configuration document.
type Root struct {
	Mode   string       `yaml:"mode"`
	Server ServerConfig `yaml:"server"`
}

// ServerConfig groups everything under the server: key.
type ServerConfig struct {
	HTTP      HTTPConfig    `yaml:"http"`
	APISpaces []APISpace    `yaml:"apiSpaces"`
	Admin     AdminConfig   `yaml:"admin"`
	Logging   LoggingConfig `yaml:"logging"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Port      int    `yaml:"port"`
	Host      string `yaml:"host"`
	PublicURL string `yaml:"publicUrl"`
}

// APISpace is one tenant as configured in YAML.
type APISpace struct {
	Name                string   `yaml:"name"`
	Description         string   `yaml:"description"`
	BearerToken         string   `yaml:"bearerToken"`
	AllowedClientTokens []string `yaml:"allowedClientTokens"`
}

// AdminConfig configures the admin facet.
type AdminConfig struct {
	AdminToken string `yaml:"adminToken"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Error reports a configuration problem detected during Parse or Validate.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "config error: " + e.Reason }

// Default returns the zero configuration with field defaults filled in. It
// exists to give every field a sensible value before a file is parsed over
// it, not as a substitute for a config file.
func Default() *Root {
	return &Root{
		Mode: "standalone",
		Server: ServerConfig{
			HTTP: HTTPConfig{
				Port: 8080,
				Host: "0.0.0.0",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

// LoadFile reads and parses the YAML config file at path.
func LoadFile(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses a YAML document into a Root and validates it.
func Parse(data []byte) (*Root, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for the constraints spelled out in the
// recognized-options table: at least one api space, unique bearer tokens,
// a sufficiently long admin token if one is given, and a recognized logging
// level/format.
func (c *Root) Validate() error {
	var errs []error

	if len(c.Server.APISpaces) == 0 {
		errs = append(errs, &Error{Reason: "server.apiSpaces must configure at least one tenant"})
	}

	seen := make(map[string]string, len(c.Server.APISpaces))
	for _, space := range c.Server.APISpaces {
		if space.Name == "" {
			errs = append(errs, &Error{Reason: "apiSpaces entries must have a name"})
			continue
		}
		if space.BearerToken == "" {
			errs = append(errs, &Error{Reason: fmt.Sprintf("apiSpace %q must have a bearerToken", space.Name)})
			continue
		}
		if len(space.BearerToken) < 32 {
			errs = append(errs, &Error{Reason: fmt.Sprintf("apiSpace %q bearerToken must be at least 32 characters", space.Name)})
		}
		if owner, dup := seen[space.BearerToken]; dup {
			errs = append(errs, &Error{Reason: fmt.Sprintf("bearerToken collides between %q and %q", owner, space.Name)})
		}
		seen[space.BearerToken] = space.Name

		if len(space.AllowedClientTokens) == 0 {
			errs = append(errs, &Error{Reason: fmt.Sprintf("apiSpace %q must configure at least one allowedClientTokens entry", space.Name)})
		}
		for _, tok := range space.AllowedClientTokens {
			if len(tok) < 32 {
				errs = append(errs, &Error{Reason: fmt.Sprintf("apiSpace %q allowedClientTokens entries must be at least 32 characters", space.Name)})
				break
			}
		}
	}

	if t := c.Server.Admin.AdminToken; t != "" && len(t) < 32 {
		errs = append(errs, &Error{Reason: "server.admin.adminToken must be at least 32 characters"})
	}

	switch c.Server.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, &Error{Reason: fmt.Sprintf("server.logging.level %q is not recognized", c.Server.Logging.Level)})
	}

	switch c.Server.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, &Error{Reason: fmt.Sprintf("server.logging.format %q is not recognized", c.Server.Logging.Format)})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
