package util

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const Name = "fedipage"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host          string
		HttpPort      int    `yaml:"httpPort"`
		SshPort       int    `yaml:"sshPort"`
		SslDomain     string `yaml:"sslDomain"`
		Username      string `yaml:"username"`
		DisplayName   string `yaml:"displayName"`
		Summary       string `yaml:"summary"`
		IconURL       string `yaml:"iconUrl"`
		DbPath        string `yaml:"dbPath"`
		ApiToken      string `yaml:"apiToken"`
		FanoutWorkers int    `yaml:"fanoutWorkers"`
		WithSsh       bool   `yaml:"withSsh"`
	}
}

// ActorURI returns the stable identifier of the local actor.
func (c *AppConfig) ActorURI() string {
	return fmt.Sprintf("https://%s/users/%s", c.Conf.SslDomain, c.Conf.Username)
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	configPath := ResolveFilePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		// No config file yet, fall back to embedded defaults and write
		// a starter config to the user config directory.
		log.Info("config file not found, using embedded defaults", "path", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			if writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644); writeErr != nil {
				log.Warn("could not write default config", "path", userConfigPath, "err", writeErr)
			} else {
				log.Info("created default config file", "path", userConfigPath)
			}
		}
	}

	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	applyEnvOverrides(c)

	if c.Conf.Username == "" {
		return nil, fmt.Errorf("config: username must be set")
	}
	if c.Conf.SslDomain == "" {
		return nil, fmt.Errorf("config: sslDomain must be set")
	}
	if c.Conf.FanoutWorkers <= 0 {
		c.Conf.FanoutWorkers = 8
	}
	if c.Conf.DbPath == "" {
		c.Conf.DbPath = "database.db"
	}

	return c, nil
}

func applyEnvOverrides(c *AppConfig) {
	if v := os.Getenv("FEDIPAGE_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("FEDIPAGE_HTTPPORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			log.Warn("invalid FEDIPAGE_HTTPPORT", "value", v)
		} else {
			c.Conf.HttpPort = p
		}
	}
	if v := os.Getenv("FEDIPAGE_SSHPORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			log.Warn("invalid FEDIPAGE_SSHPORT", "value", v)
		} else {
			c.Conf.SshPort = p
		}
	}
	if v := os.Getenv("FEDIPAGE_SSLDOMAIN"); v != "" {
		c.Conf.SslDomain = v
	}
	if v := os.Getenv("FEDIPAGE_USERNAME"); v != "" {
		c.Conf.Username = v
	}
	if v := os.Getenv("FEDIPAGE_DBPATH"); v != "" {
		c.Conf.DbPath = v
	}
	if v := os.Getenv("FEDIPAGE_APITOKEN"); v != "" {
		c.Conf.ApiToken = v
	}
	if os.Getenv("FEDIPAGE_WITH_SSH") == "true" {
		c.Conf.WithSsh = true
	}
}
