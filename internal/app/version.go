package app

import (
	"sync"

	"github.com/google/uuid"
)

// Version is stamped by the build; the default marks dev builds.
var Version = "0.0.0-dev"

var (
	clientIDOnce  sync.Once
	clientIDValue string
)

// clientID identifies this client instance for the handshake. Stable
// for the process lifetime.
func clientID() string {
	clientIDOnce.Do(func() {
		clientIDValue = uuid.NewString()
	})
	return clientIDValue
}
