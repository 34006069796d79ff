// Package config loads the gateway's configuration from a TOML file with
// CLI-flag overrides, per the precedence CLI > file > built-in defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// SignerKey is one entry of jwt_signer_keys.
type SignerKey struct {
	Kid    string `toml:"kid"`
	Secret string `toml:"secret"`
}

// Config is the gateway's read-only startup snapshot.
type Config struct {
	BindAddress    string      `toml:"bind_address"`
	UpstreamURL    string      `toml:"upstream_url"`
	L2RPCURL       string      `toml:"l2_rpc_url"`
	AdminKeys      []string    `toml:"admin_keys"`
	JWTExpirySecs  int64       `toml:"jwt_expiry_secs"`
	DefaultKid     string      `toml:"default_kid"`
	JWTSignerKeys  []SignerKey `toml:"jwt_signer_keys"`
	ExpectedDomain string      `toml:"expected_domain"`
}

// TokenLifetime returns JWTExpirySecs as a time.Duration.
func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.JWTExpirySecs) * time.Second
}

func defaults() Config {
	return Config{
		BindAddress:   "0.0.0.0:8080",
		UpstreamURL:   "http://validium-sequencer:8545",
		L2RPCURL:      "http://localhost:8545",
		JWTExpirySecs: 3600,
	}
}

// Flags holds the CLI overrides recognized on top of the config file.
type Flags struct {
	ConfigPath  string
	BindAddress string
	UpstreamURL string
	L2RPCURL    string
}

// ParseFlags parses args (typically os.Args[1:]) into Flags. Unset override
// flags are left empty, and Load treats an empty value as "not overridden";
// a flag explicitly set to the empty string is therefore also ignored.
func ParseFlags(fs *flag.FlagSet, args []string) (*Flags, error) {
	f := &Flags{}
	fs.StringVar(&f.ConfigPath, "config", "config.toml", "path to the gateway TOML config file")
	fs.StringVar(&f.BindAddress, "bind-address", "", "override bind_address")
	fs.StringVar(&f.UpstreamURL, "upstream-url", "", "override upstream_url")
	fs.StringVar(&f.L2RPCURL, "l2-rpc-url", "", "override l2_rpc_url")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// Load reads the TOML file at flags.ConfigPath, if present, layers it over
// the built-in defaults, then applies CLI overrides, and validates the
// result. A missing config file is not an error: defaults apply.
func Load(flags *Flags) (*Config, error) {
	cfg := defaults()

	if flags.ConfigPath != "" {
		if _, err := os.Stat(flags.ConfigPath); err == nil {
			if _, err := toml.DecodeFile(flags.ConfigPath, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", flags.ConfigPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", flags.ConfigPath, err)
		}
	}

	if flags.BindAddress != "" {
		cfg.BindAddress = flags.BindAddress
	}
	if flags.UpstreamURL != "" {
		cfg.UpstreamURL = flags.UpstreamURL
	}
	if flags.L2RPCURL != "" {
		cfg.L2RPCURL = flags.L2RPCURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the invariants named for Configuration: default_kid
// must reference a configured signer key, kid values must be pairwise
// distinct, and admin_keys may be empty.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BindAddress) == "" {
		return fmt.Errorf("config: bind_address must not be empty")
	}
	if strings.TrimSpace(c.UpstreamURL) == "" {
		return fmt.Errorf("config: upstream_url must not be empty")
	}
	if strings.TrimSpace(c.L2RPCURL) == "" {
		return fmt.Errorf("config: l2_rpc_url must not be empty")
	}
	if c.JWTExpirySecs <= 0 {
		return fmt.Errorf("config: jwt_expiry_secs must be positive")
	}
	if strings.TrimSpace(c.DefaultKid) == "" {
		return fmt.Errorf("config: default_kid must not be empty")
	}
	if len(c.JWTSignerKeys) == 0 {
		return fmt.Errorf("config: jwt_signer_keys must not be empty")
	}
	seen := make(map[string]struct{}, len(c.JWTSignerKeys))
	foundDefault := false
	for _, k := range c.JWTSignerKeys {
		kid := strings.TrimSpace(k.Kid)
		if kid == "" {
			return fmt.Errorf("config: jwt_signer_keys entry with empty kid")
		}
		if _, dup := seen[kid]; dup {
			return fmt.Errorf("config: duplicate kid %q in jwt_signer_keys", kid)
		}
		seen[kid] = struct{}{}
		if k.Secret == "" {
			return fmt.Errorf("config: jwt_signer_keys entry %q has empty secret", kid)
		}
		if kid == c.DefaultKid {
			foundDefault = true
		}
	}
	if !foundDefault {
		return fmt.Errorf("config: default_kid %q does not reference an entry of jwt_signer_keys", c.DefaultKid)
	}
	return nil
}
