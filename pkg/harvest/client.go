// Package harvest implements the OAI-PMH harvesting client: set
// enumeration, cursor pagination, per-identifier record fetching with a
// bounded worker pool, and the run orchestration tying them to a sink.
package harvest

import (
	"time"

	"go.uber.org/zap"

	"github.com/oaiharvest/oaiharvest/pkg/clients"
	"github.com/oaiharvest/oaiharvest/pkg/config"
)

// hierarchySeparator marks sub-sets inside a setSpec. Sets containing it
// are excluded by policy, not by protocol.
const hierarchySeparator = ":"

// Client drives the protocol against one endpoint. All network calls go
// through a single retrying transport whose connection pool is shared by
// every concurrent fetch worker.
type Client struct {
	cfg       *config.Config
	transport *clients.Transport
	logger    *zap.Logger

	// appBackoffUnit scales the linear application-error backoff
	// (wait = 5 * attempt * unit). Production value is one second.
	appBackoffUnit time.Duration
}

// NewClient creates a harvesting client.
func NewClient(cfg *config.Config, transport *clients.Transport, logger *zap.Logger) *Client {
	return &Client{
		cfg:            cfg,
		transport:      transport,
		logger:         logger.With(zap.String("component", "harvest_client")),
		appBackoffUnit: time.Second,
	}
}
