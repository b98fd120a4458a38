package openapi

import "os"

// Config sets the document's info block.
type Config struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
	ServerURL   string `toml:"server_url"`
}

type ConfigEnv struct {
	Title       string
	Description string
	ServerURL   string
}

func (c *Config) Finalize(env *ConfigEnv) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return nil
}

func (c *Config) Merge(overlay *Config) {
	if overlay.Title != "" {
		c.Title = overlay.Title
	}
	if overlay.Description != "" {
		c.Description = overlay.Description
	}
	if overlay.ServerURL != "" {
		c.ServerURL = overlay.ServerURL
	}
}

// Info builds the document info block for version.
func (c *Config) Info(version string) *Info {
	return &Info{Title: c.Title, Version: version, Description: c.Description}
}

func (c *Config) loadDefaults() {
	if c.Title == "" {
		c.Title = "Paperclip API"
	}
	if c.Description == "" {
		c.Description = "Attach files to records, derive image styles and serve the stored files."
	}
}

func (c *Config) loadEnv(env *ConfigEnv) {
	for dst, name := range map[*string]string{
		&c.Title:       env.Title,
		&c.Description: env.Description,
		&c.ServerURL:   env.ServerURL,
	} {
		if name == "" {
			continue
		}
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
}
