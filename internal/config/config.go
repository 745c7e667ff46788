package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models petscreen.yml: the clinic identity and the tunable
// screening rules enforced by the engine.
type Config struct {
	Clinic struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"clinic"`
	Screening struct {
		// Word limits on the free-text clinical fields. Submission is
		// rejected only when the count exceeds the limit.
		PhysicalExamNotesWordLimit   int `yaml:"physical_exam_notes_word_limit"`
		CertificateCommentsWordLimit int `yaml:"certificate_comments_word_limit"`
		// Certificate validity in months from the issue date. The shorter
		// period applies when the applicant reports close contact with TB.
		CertificateExpiryMonths             int `yaml:"certificate_expiry_months"`
		CertificateExpiryMonthsCloseContact int `yaml:"certificate_expiry_months_close_contact"`
	} `yaml:"screening"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	cfg, err := FromFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config %s not found; create one with pets config init", path)
	}
	return cfg, err
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return cfg, err
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Clinic.ID == "" {
		return fmt.Errorf("config.clinic.id is required")
	}
	if c.Screening.PhysicalExamNotesWordLimit <= 0 {
		return fmt.Errorf("config.screening.physical_exam_notes_word_limit must be positive")
	}
	if c.Screening.CertificateCommentsWordLimit <= 0 {
		return fmt.Errorf("config.screening.certificate_comments_word_limit must be positive")
	}
	if c.Screening.CertificateExpiryMonths <= 0 {
		return fmt.Errorf("config.screening.certificate_expiry_months must be positive")
	}
	if c.Screening.CertificateExpiryMonthsCloseContact <= 0 {
		return fmt.Errorf("config.screening.certificate_expiry_months_close_contact must be positive")
	}
	if c.Screening.CertificateExpiryMonthsCloseContact > c.Screening.CertificateExpiryMonths {
		return fmt.Errorf("close-contact expiry must not exceed the standard expiry")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "petscreen.yml")
}

// Default returns the default Config struct for a clinic.
func Default(clinicID string) *Config {
	cfg, _ := FromYAML([]byte(GenerateDefault(clinicID)))
	if cfg == nil {
		cfg = &Config{}
		cfg.Clinic.ID = clinicID
	}
	return cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(clinicID string) string {
	return fmt.Sprintf(defaultTemplate, clinicID)
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

const defaultTemplate = `clinic:
  id: %s
  name: Approved TB screening clinic

screening:
  physical_exam_notes_word_limit: 150
  certificate_comments_word_limit: 150
  certificate_expiry_months: 6
  certificate_expiry_months_close_contact: 3
`
