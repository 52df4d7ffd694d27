package instance

import "github.com/cyberbrief/cyberbrief-backend/pkg/env"

// ID returns an identifier for the running process: the platform dyno name,
// then the container hostname, else "local".
func ID() string {
	return env.Get("DYNO", env.Get("HOSTNAME", "local"))
}
