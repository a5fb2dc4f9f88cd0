package pollertest

import (
	"sync"

	"github.com/marcin-skalski/prwatch/internal/config"
)

// Configs is an in-memory poller.ConfigStore.
type Configs struct {
	mu      sync.Mutex
	Cfg     config.Config
	Saved   []config.Config
	SaveErr error
}

func NewConfigs(repos ...string) *Configs {
	return &Configs{Cfg: config.Config{Repos: repos, RefreshSeconds: 5}}
}

func (c *Configs) Load() (*config.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := c.Cfg
	return &cfg, nil
}

func (c *Configs) Save(cfg *config.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SaveErr != nil {
		return c.SaveErr
	}
	c.Saved = append(c.Saved, *cfg)
	c.Cfg = *cfg
	return nil
}
