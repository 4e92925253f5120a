package bootstrap

import "os"

// Environment supplies environment variables to the selector
type Environment interface {
	Lookup(key string) (string, bool)
}

// OSEnvironment reads the process environment
type OSEnvironment struct{}

// Lookup implements Environment
func (OSEnvironment) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapEnvironment is a fixed environment, mostly for tests and dry runs
type MapEnvironment map[string]string

// Lookup implements Environment
func (m MapEnvironment) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func getenv(env Environment, key string) string {
	if env == nil {
		return ""
	}
	v, _ := env.Lookup(key)
	return v
}

var (
	_ Environment = OSEnvironment{}
	_ Environment = MapEnvironment(nil)
)
