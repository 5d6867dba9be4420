package status

import "time"

type configGetter interface {
	GetStatus() Config
}

type Config struct {
	TtlSeconds          int `yaml:"ttlSeconds"`
	PollIntervalSeconds int `yaml:"pollIntervalSeconds"`
	PingIntervalSeconds int `yaml:"pingIntervalSeconds"`
}

func (c Config) Ttl() time.Duration {
	if c.TtlSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TtlSeconds) * time.Second
}

func (c Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c Config) PingInterval() time.Duration {
	if c.PingIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PingIntervalSeconds) * time.Second
}
