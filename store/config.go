package store

type configSource interface {
	GetS3Store() Config
}

type Credentials struct {
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
}

type Config struct {
	Region      string      `yaml:"region"`
	Bucket      string      `yaml:"bucket"`
	Credentials Credentials `yaml:"credentials"`
	// Endpoint switches the client to an S3-compatible store (R2, GCS,
	// Spaces). GoogleCompat re-signs requests the way GCS expects.
	Endpoint     string `yaml:"endpoint"`
	GoogleCompat bool   `yaml:"googleCompat"`
}
