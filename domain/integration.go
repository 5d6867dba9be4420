package domain

type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeApiKey AuthType = "api_key"
	AuthTypeBasic  AuthType = "basic"
)

// Credentials are opaque to everything but the auth strategy: excluded from
// json so they can never leak into manifests or api responses.
type Credentials struct {
	Token        string `json:"-" bson:"token,omitempty"`
	ApiKey       string `json:"-" bson:"apiKey,omitempty"`
	ApiKeyHeader string `json:"-" bson:"apiKeyHeader,omitempty"`
	Username     string `json:"-" bson:"username,omitempty"`
	Password     string `json:"-" bson:"password,omitempty"`
}

func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

// IntegrationConfig describes a project's external status source. Written by
// the admin domain, read-only at sync time.
type IntegrationConfig struct {
	ProjectSlug            string                       `json:"projectSlug" bson:"_id"`
	ApiBaseUrl             string                       `json:"apiBaseUrl" bson:"apiBaseUrl"`
	StatusEndpoint         string                       `json:"statusEndpoint" bson:"statusEndpoint"`
	AuthType               AuthType                     `json:"authType" bson:"authType"`
	Credentials            Credentials                  `json:"-" bson:"credentials"`
	StatusMapping          map[CanonicalStatus][]string `json:"statusMapping" bson:"statusMapping"`
	PollingIntervalSeconds int                          `json:"pollingIntervalSeconds" bson:"pollingIntervalSeconds"`
	TimeoutSeconds         int                          `json:"timeoutSeconds" bson:"timeoutSeconds"`
	HasCredentials         bool                         `json:"hasCredentials" bson:"-"`
}
