package storage

import (
	"github.com/lcrostarosa/proofmode/internal/config"
	"github.com/lcrostarosa/proofmode/internal/logging"
)

// Open builds the configured store: the local primary, mirrored to the
// remote bucket when one is enabled. An invalid remote configuration
// disables the mirror instead of failing.
func Open(cfg config.StorageConfig, opts ...CompositeOption) (*Composite, *Local, error) {
	local, err := NewLocal(cfg.Root)
	if err != nil {
		return nil, nil, err
	}

	var secondary Provider
	if cfg.Remote.Enabled {
		remote, err := NewS3(cfg.Remote)
		if err != nil {
			logging.Warn("Remote storage disabled", logging.Err(err))
		} else {
			logging.Info("Mirroring proofs to remote storage", logging.String("bucket", remote.Bucket()))
			secondary = remote
		}
	}
	return NewComposite(local, secondary, opts...), local, nil
}
