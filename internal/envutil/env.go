// Package envutil provides small helpers around environment variable lookup.
package envutil

import "os"

// Getenv retrieves the value of the environment variable named by the key.
// It returns the default, which will be empty if not given, when the
// variable is unset. An empty-but-set variable is returned as is.
func Getenv(key string, def ...string) string {
	v, ok := os.LookupEnv(key)
	if !ok && len(def) != 0 {
		return def[0]
	}
	return v
}
