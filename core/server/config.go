package server

// Config holds configuration for the management HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// JWTSecret is the HMAC secret used to verify caller identity tokens.
	// When empty, tokens are accepted without signature verification
	// (the API gateway is trusted to have validated them).
	JWTSecret string `mapstructure:"jwt_secret" default:""`
}
