package config

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/davidahmann/alzpolicy/internal/assignment"
)

type Config struct {
	Organization  string            `yaml:"organization"`
	Platform      string            `yaml:"platform"`
	Region        string            `yaml:"region"`
	Environment   string            `yaml:"environment"`
	Location      string            `yaml:"location"`
	TenantID      string            `yaml:"tenant_id"`
	Subscription  string            `yaml:"subscription_id"`
	Subscriptions map[string]string `yaml:"subscriptions"`

	DescriptorsPath string `yaml:"descriptors_path"`
	DefinitionsPath string `yaml:"definitions_path"`

	Templates TemplatesConfig `yaml:"templates"`
	Identity  IdentityConfig  `yaml:"identity"`
	Retry     RetryConfig     `yaml:"retry"`

	// Providers are resource provider namespaces registered before deploying.
	Providers []string `yaml:"providers"`

	LenientLookups  bool `yaml:"lenient_lookups"`
	ContinueOnError bool `yaml:"continue_on_error"`
	TestMode        bool `yaml:"test_mode"`
}

type TemplatesConfig struct {
	PolicyAssignments string `yaml:"policy_assignments"`
	RoleAssignments   string `yaml:"role_assignments"`
	Parameters        string `yaml:"parameters"`
}

type IdentityConfig struct {
	ReadinessTimeout time.Duration `yaml:"readiness_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
}

type RetryConfig struct {
	Delay       time.Duration `yaml:"delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxDuration time.Duration `yaml:"max_duration"`
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Trace(err)
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, errors.Annotatef(err, "parsing %s", path)
	}
	if cfg.Location == "" {
		cfg.Location = cfg.Region
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Organization == "" {
		return errors.NotValidf("empty organization")
	}
	if c.DescriptorsPath == "" {
		return errors.NotValidf("empty descriptors_path")
	}
	if c.Location == "" {
		return errors.NotValidf("empty location (set location or region)")
	}
	for alias, id := range c.Subscriptions {
		if alias == "" || id == "" {
			return errors.NotValidf("subscription alias %q with id %q", alias, id)
		}
	}

	if c.Identity.ReadinessTimeout < 0 || c.Identity.PollInterval < 0 {
		return errors.NotValidf("negative identity timing")
	}
	if c.Identity.PollInterval > 0 && c.Identity.ReadinessTimeout > 0 && c.Identity.PollInterval > c.Identity.ReadinessTimeout {
		return errors.NotValidf("identity.poll_interval longer than identity.readiness_timeout")
	}
	if c.Retry.Delay < 0 || c.Retry.MaxDelay < 0 || c.Retry.MaxDuration < 0 {
		return errors.NotValidf("negative retry timing")
	}

	return nil
}

// ValidateDeploy checks the fields only the deploy command needs.
func (c Config) ValidateDeploy() error {
	if c.Templates.PolicyAssignments == "" {
		return errors.NotValidf("empty templates.policy_assignments")
	}
	if c.Templates.RoleAssignments == "" {
		return errors.NotValidf("empty templates.role_assignments")
	}
	if c.Subscription == "" {
		return errors.NotValidf("empty subscription_id")
	}
	return nil
}

// Tokens returns the placeholder values substituted into descriptors.
func (c Config) Tokens() assignment.Tokens {
	return assignment.Tokens{
		Organization:  c.Organization,
		Platform:      c.Platform,
		Region:        c.Region,
		Environment:   c.Environment,
		Subscriptions: c.Subscriptions,
	}
}

// LookupSubscriptions lists the subscriptions searched by ___ID parameters:
// the deployment subscription followed by every aliased one, without
// duplicates.
func (c Config) LookupSubscriptions() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		key := strings.ToLower(id)
		if id == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, id)
	}
	add(c.Subscription)
	aliases := make([]string, 0, len(c.Subscriptions))
	for alias := range c.Subscriptions {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		add(c.Subscriptions[alias])
	}
	return out
}
