package config

// CLIConfig is the configuration for sigmesh-cli.
type CLIConfig struct {
	// Default connection settings, overridden by flags and env vars.
	DefaultServer    string `yaml:"default_server"`
	DefaultTransport string `yaml:"default_transport"`
	DefaultOutput    string `yaml:"default_output"` // table, json, yaml

	// Profiles holds saved connection profiles.
	Profiles map[string]Profile `yaml:"profiles"`

	// CurrentProfile selects the active profile; empty uses defaults.
	CurrentProfile string `yaml:"current_profile"`
}

// Profile stores one saved connection.
type Profile struct {
	Server    string `yaml:"server"`
	Transport string `yaml:"transport"`
	UserID    string `yaml:"user_id"`

	// KeyFile is the path to the user's ed25519 signing key.
	KeyFile string `yaml:"key_file"`

	// CAFile is a PEM bundle of extra root CAs to trust for this
	// server, for deployments with private certificates.
	CAFile string `yaml:"ca_file"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		DefaultServer: "localhost:5080",
		DefaultOutput: "table",
		Profiles:      make(map[string]Profile),
	}
}

// Active resolves the profile selected by CurrentProfile, falling back
// to the defaults when none is set.
func (c *CLIConfig) Active() Profile {
	if p, ok := c.Profiles[c.CurrentProfile]; ok {
		merged := p
		if merged.Server == "" {
			merged.Server = c.DefaultServer
		}
		if merged.Transport == "" {
			merged.Transport = c.DefaultTransport
		}
		return merged
	}
	return Profile{Server: c.DefaultServer, Transport: c.DefaultTransport}
}
