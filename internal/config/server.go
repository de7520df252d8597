package config

var listenAddr = GetEnvOrDefault("DEVFOLIO_LISTEN_ADDR", "127.0.0.1:8080")

// GetListenAddr returns the address the local gateway binds to
func GetListenAddr() string {
	return listenAddr
}

// SetListenAddr temporarily changes the listen address and returns a function to restore it
func SetListenAddr(addr string) func() {
	previous := listenAddr
	listenAddr = addr

	return func() {
		listenAddr = previous
	}
}

// GetAllowedOrigins returns the origins allowed to open the session event socket.
// An empty list means only same-host origins are accepted.
func GetAllowedOrigins() []string {
	return parseEnvList("DEVFOLIO_ALLOWED_ORIGINS", nil)
}
