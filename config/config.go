package config

import (
	"os"

	"github.com/anyproto/any-sync/app"
	"gopkg.in/yaml.v3"

	"github.com/masterplanhq/masterplan-server/db"
	"github.com/masterplanhq/masterplan-server/gateway/gatewayconfig"
	"github.com/masterplanhq/masterplan-server/redisprovider"
	"github.com/masterplanhq/masterplan-server/status"
	"github.com/masterplanhq/masterplan-server/store"
)

const CName = "config"

func NewFromFile(path string) (c *Config, err error) {
	c = &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return
}

type Config struct {
	Mongo   db.Mongo             `yaml:"mongo"`
	Redis   redisprovider.Config `yaml:"redis"`
	S3Store store.Config         `yaml:"s3Store"`
	Gateway gatewayconfig.Config `yaml:"gateway"`
	Status  status.Config        `yaml:"status"`
}

func (c *Config) Init(a *app.App) (err error) {
	return nil
}

func (c *Config) Name() (name string) {
	return CName
}

func (c *Config) GetMongo() db.Mongo {
	return c.Mongo
}

func (c *Config) GetRedis() redisprovider.Config {
	return c.Redis
}

func (c *Config) GetS3Store() store.Config {
	return c.S3Store
}

func (c *Config) GetGateway() gatewayconfig.Config {
	return c.Gateway
}

func (c *Config) GetStatus() status.Config {
	return c.Status
}
