package httpapi

import "sync/atomic"

// maxBodyBytes limits JSON request bodies. Default 1 MiB.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes configures the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// defaultMaxLength is used when a generate request omits max_length.
var defaultMaxLength atomic.Int64

func init() { defaultMaxLength.Store(100) }

// SetDefaultMaxLength sets the max_length applied when the client sends none.
// Non-positive values restore 100.
func SetDefaultMaxLength(n int) {
	if n <= 0 {
		n = 100
	}
	defaultMaxLength.Store(int64(n))
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

// swaggerEnabled mounts /swagger/* when true.
var swaggerEnabled bool

// SetSwagger toggles the OpenAPI UI.
func SetSwagger(enabled bool) { swaggerEnabled = enabled }
