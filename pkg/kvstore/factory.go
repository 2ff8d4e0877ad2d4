package kvstore

import (
	"fmt"
	"time"

	"github.com/blazelabs/lottery-engine/pkg/common/config"
	"github.com/blazelabs/lottery-engine/pkg/common/enum"
	"github.com/blazelabs/lottery-engine/pkg/infra"
	"github.com/blazelabs/lottery-engine/pkg/retry"
	"github.com/hashicorp/consul/api"
)

const (
	consulConnectAttempts = 5
	consulConnectInterval = 2 * time.Second
)

// NewFromConfig constructs an infra.KVStore based on kvstore configuration.
func NewFromConfig(cfg config.KVStoreCfg) (infra.KVStore, error) {
	switch cfg.Type {
	case enum.KVStoreTypeBadger:
		return NewBadgerStore(cfg.Badger.Directory, cfg.Badger.Prefix, infra.JSON)
	case enum.KVStoreTypeConsul:
		// consul may come up after us; retry the leader ping before giving up
		var store infra.KVStore
		err := retry.Constant(func() error {
			s, cerr := NewConsulClient(Options{
				Scheme:  cfg.Consul.Scheme,
				Address: cfg.Consul.Address,
				Folder:  cfg.Consul.Folder,
				Codec:   infra.JSON,
				Token:   cfg.Consul.Token,
				HttpAuth: &api.HttpBasicAuth{
					Username: cfg.Consul.HttpAuth.Username,
					Password: cfg.Consul.HttpAuth.Password,
				},
			})
			if cerr != nil {
				return cerr
			}
			store = s
			return nil
		}, consulConnectInterval, consulConnectAttempts)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported kvstore type: %s", cfg.Type)
	}
}
