package iothub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	csDelimiter    = ";"
	csVarSeparator = "="

	csKeyHostName            = "HostName"
	csKeySharedAccessKey     = "SharedAccessKey"
	csKeySharedAccessKeyName = "SharedAccessKeyName"
	csKeyGatewayHostName     = "GatewayHostName"
)

var (
	ErrNoHostName = errors.New("connection string: no HostName")
	ErrNoKey      = errors.New("connection string: no SharedAccessKey")
)

// ConnectionString implements the Azure IoT Hub connection string format and
// the SharedAccessSignature authorization algorithm.
type ConnectionString struct {
	HostName        string `json:"hostname"`
	GatewayHostName string `json:"gateway_hostname,omitempty"`
	Name            string `json:"name,omitempty"`
	Key             []byte `json:"access_key"`
}

// ParseConnectionString parses the "Key=Value;..." serialization.
func ParseConnectionString(connection string) (*ConnectionString, error) {
	cs := new(ConnectionString)
	for _, arg := range strings.Split(connection, csDelimiter) {
		kv := strings.SplitN(arg, csVarSeparator, 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid connection string format")
		}
		switch kv[0] {
		case csKeyHostName:
			cs.HostName = kv[1]
		case csKeyGatewayHostName:
			cs.GatewayHostName = kv[1]
		case csKeySharedAccessKeyName:
			cs.Name = kv[1]
		case csKeySharedAccessKey:
			key, err := base64.StdEncoding.DecodeString(kv[1])
			if err != nil {
				return nil, fmt.Errorf("shared access key format: %w", err)
			}
			cs.Key = key
		default:
			return nil, fmt.Errorf("invalid connection string key: %s", kv[0])
		}
	}
	return cs, cs.Validate()
}

// Validate checks that the fields required for signing requests are set.
func (cs *ConnectionString) Validate() error {
	if cs.HostName == "" {
		return ErrNoHostName
	}
	if len(cs.Key) == 0 {
		return ErrNoKey
	}
	return nil
}

// String re-serializes the connection string. The secret is included;
// never log the result.
func (cs *ConnectionString) String() string {
	parts := []string{csKeyHostName + csVarSeparator + cs.HostName}
	if cs.GatewayHostName != "" {
		parts = append(parts, csKeyGatewayHostName+csVarSeparator+cs.GatewayHostName)
	}
	if cs.Name != "" {
		parts = append(parts, csKeySharedAccessKeyName+csVarSeparator+cs.Name)
	}
	parts = append(parts, csKeySharedAccessKey+csVarSeparator+
		base64.StdEncoding.EncodeToString(cs.Key))
	return strings.Join(parts, csDelimiter)
}

// Authorization computes a SharedAccessSignature header value valid until
// expireAt:
//
//	SharedAccessSignature sr=<resource>&sig=<signature>&se=<expiry>[&skn=<name>]
func (cs *ConnectionString) Authorization(expireAt time.Time) string {
	resource := url.QueryEscape(cs.HostName)
	expiry := strconv.FormatInt(expireAt.Unix(), 10)

	mac := hmac.New(sha256.New, cs.Key)
	mac.Write([]byte(resource + "\n" + expiry))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	auth := "SharedAccessSignature " +
		"sr=" + resource +
		"&sig=" + url.QueryEscape(signature) +
		"&se=" + expiry
	if cs.Name != "" {
		auth += "&skn=" + url.QueryEscape(cs.Name)
	}
	return auth
}
