// Package instance names the running replica in logs.
package instance

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

// ID is resolved once per process.
var ID = sync.OnceValue(resolve)

// resolve prefers STOREFRONT_INSTANCE_ID and falls back to host and pid, so two
// binaries on one host stay distinguishable.
func resolve() string {
	if id := strings.TrimSpace(os.Getenv("STOREFRONT_INSTANCE_ID")); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "storefront"
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}
