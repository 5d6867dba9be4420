package status

import (
	"encoding/base64"
	"fmt"

	"github.com/masterplanhq/masterplan-server/domain"
)

// AuthStrategy is a closed variant set: each variant only knows how to turn
// its credential shape into request headers.
type AuthStrategy interface {
	Headers() map[string]string
	sealedAuth()
}

type AuthNone struct{}

func (AuthNone) Headers() map[string]string { return nil }
func (AuthNone) sealedAuth()                {}

type AuthBearer struct {
	Token string
}

func (a AuthBearer) Headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.Token}
}
func (AuthBearer) sealedAuth() {}

type AuthApiKey struct {
	Key    string
	Header string
}

func (a AuthApiKey) Headers() map[string]string {
	header := a.Header
	if header == "" {
		header = "X-API-Key"
	}
	return map[string]string{header: a.Key}
}
func (AuthApiKey) sealedAuth() {}

type AuthBasic struct {
	Username string
	Password string
}

func (a AuthBasic) Headers() map[string]string {
	token := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
	return map[string]string{"Authorization": "Basic " + token}
}
func (AuthBasic) sealedAuth() {}

// StrategyFor selects the variant for a project's integration config.
func StrategyFor(conf domain.IntegrationConfig) (AuthStrategy, error) {
	switch conf.AuthType {
	case domain.AuthTypeNone, "":
		return AuthNone{}, nil
	case domain.AuthTypeBearer:
		return AuthBearer{Token: conf.Credentials.Token}, nil
	case domain.AuthTypeApiKey:
		return AuthApiKey{Key: conf.Credentials.ApiKey, Header: conf.Credentials.ApiKeyHeader}, nil
	case domain.AuthTypeBasic:
		return AuthBasic{Username: conf.Credentials.Username, Password: conf.Credentials.Password}, nil
	}
	return nil, fmt.Errorf("unknown auth type: %s", conf.AuthType)
}
