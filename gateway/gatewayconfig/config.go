package gatewayconfig

type ConfigGetter interface {
	GetGateway() Config
}

type Config struct {
	Addr   string `yaml:"addr"`
	CdnUrl string `yaml:"cdnUrl"`
}
