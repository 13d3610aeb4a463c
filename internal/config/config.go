package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"movetrack/internal/domain"
)

const (
	FileName = "movetrack.yml"

	DefaultMaxAttachmentBytes int64 = 10 << 20
	DefaultStoreTimeout             = 10 * time.Second
	DefaultNotifyTimeout            = 5 * time.Second
)

// Config models movetrack.yml.
type Config struct {
	Teams []TeamConfig `yaml:"teams" json:"teams"`
	// Checklists maps movement type -> team id -> ordered item labels.
	Checklists    map[string]map[string][]string `yaml:"checklists" json:"checklists"`
	Notifications NotificationsConfig            `yaml:"notifications" json:"notifications"`
	Attachments   AttachmentsConfig              `yaml:"attachments" json:"attachments"`
	Timeouts      TimeoutsConfig                 `yaml:"timeouts" json:"timeouts"`
}

type TeamConfig struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

type NotificationsConfig struct {
	Log      bool            `yaml:"log" json:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks"`
	Mail     MailConfig      `yaml:"mail" json:"mail"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"-"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
}

type MailConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Host     string `yaml:"host" json:"host,omitempty"`
	Port     int    `yaml:"port" json:"port,omitempty"`
	Username string `yaml:"username" json:"username,omitempty"`
	Password string `yaml:"password" json:"-"`
	From     string `yaml:"from" json:"from,omitempty"`
	SiteName string `yaml:"site_name" json:"site_name,omitempty"`
	AppURL   string `yaml:"app_url" json:"app_url,omitempty"`
}

type AttachmentsConfig struct {
	MaxBytes int64  `yaml:"max_bytes" json:"max_bytes"`
	Backend  string `yaml:"backend" json:"backend"`
	Local    struct {
		Dir     string `yaml:"dir" json:"dir"`
		BaseURL string `yaml:"base_url" json:"base_url"`
	} `yaml:"local" json:"local"`
	S3 S3Config `yaml:"s3" json:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket" json:"bucket,omitempty"`
	Region    string `yaml:"region" json:"region,omitempty"`
	Prefix    string `yaml:"prefix" json:"prefix,omitempty"`
	PublicURL string `yaml:"public_url" json:"public_url,omitempty"`
}

type TimeoutsConfig struct {
	StoreSeconds  int `yaml:"store_seconds" json:"store_seconds"`
	NotifySeconds int `yaml:"notify_seconds" json:"notify_seconds"`
}

func (t TimeoutsConfig) Store() time.Duration {
	if t.StoreSeconds <= 0 {
		return DefaultStoreTimeout
	}
	return time.Duration(t.StoreSeconds) * time.Second
}

func (t TimeoutsConfig) Notify() time.Duration {
	if t.NotifySeconds <= 0 {
		return DefaultNotifyTimeout
	}
	return time.Duration(t.NotifySeconds) * time.Second
}

// MaxAttachmentBytes returns the per-file upload cap.
func (c *Config) MaxAttachmentBytes() int64 {
	if c.Attachments.MaxBytes <= 0 {
		return DefaultMaxAttachmentBytes
	}
	return c.Attachments.MaxBytes
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Teams) == 0 {
		return fmt.Errorf("config.teams is required")
	}
	teams := make(map[string]struct{}, len(c.Teams))
	for _, t := range c.Teams {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return fmt.Errorf("config.teams contains empty team id")
		}
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("team %s has empty name", id)
		}
		if _, dup := teams[id]; dup {
			return fmt.Errorf("team %s defined twice", id)
		}
		teams[id] = struct{}{}
	}
	for typ, byTeam := range c.Checklists {
		if !domain.MovementType(typ).Valid() {
			return fmt.Errorf("config.checklists has unknown movement type %s", typ)
		}
		for team, items := range byTeam {
			if _, ok := teams[team]; !ok {
				return fmt.Errorf("checklist %s references unknown team %s", typ, team)
			}
			seen := make(map[string]struct{}, len(items))
			for _, item := range items {
				if strings.TrimSpace(item) == "" {
					return fmt.Errorf("checklist %s/%s has empty item", typ, team)
				}
				if _, dup := seen[item]; dup {
					return fmt.Errorf("checklist %s/%s repeats item %q", typ, team, item)
				}
				seen[item] = struct{}{}
			}
		}
	}
	for i, hook := range c.Notifications.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("notifications.webhooks[%d].url is required", i)
		}
		for _, evt := range hook.Events {
			switch evt {
			case "movement_created", "movement_updated", "deadline_reminder":
			default:
				return fmt.Errorf("notifications.webhooks[%d] has unknown event %s", i, evt)
			}
		}
	}
	if m := c.Notifications.Mail; m.Enabled {
		if m.Host == "" || m.From == "" {
			return fmt.Errorf("notifications.mail requires host and from when enabled")
		}
	}
	if c.Attachments.MaxBytes < 0 {
		return fmt.Errorf("attachments.max_bytes must not be negative")
	}
	switch c.Attachments.Backend {
	case "", "local":
	case "s3":
		if c.Attachments.S3.Bucket == "" {
			return fmt.Errorf("attachments.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("attachments.backend must be local or s3")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in catalog.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with movetrack config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the workspace has no config file.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `teams:
  - id: timekeeping
    name: Timekeeping
  - id: finance
    name: Finance
  - id: it
    name: IT
  - id: development
    name: Development

checklists:
  dismissal:
    timekeeping:
      - Time bank closed
      - Badge deactivated
    finance:
      - Final settlement calculated
      - Benefits cancelled
    it:
      - System access revoked
      - Equipment returned
  transfer:
    timekeeping:
      - Work schedule updated
    finance:
      - Cost center updated
    it:
      - Access profile adjusted
  salary_change:
    finance:
      - Payroll updated
      - Salary history recorded
  promotion:
    finance:
      - Payroll updated
    it:
      - Access profile adjusted

notifications:
  log: true
  webhooks: []
  mail:
    enabled: false
    port: 587
    site_name: Movetrack

attachments:
  max_bytes: 10485760
  backend: local
  local:
    dir: attachments
    base_url: /v0/files

timeouts:
  store_seconds: 10
  notify_seconds: 5
`
