// Package backend opens the record store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/synaptica-ai/hospital-analytics/pkg/common/config"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/database"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/store"
	"github.com/synaptica-ai/hospital-analytics/pkg/store/memstore"
	"github.com/synaptica-ai/hospital-analytics/pkg/store/mongostore"
	"github.com/synaptica-ai/hospital-analytics/pkg/store/pgstore"
)

// Store is a record store that also accepts the imported series.
type Store interface {
	store.RecordStore
	store.SeriesWriter
}

// Open connects to cfg.StoreDriver and prepares its schema.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	log := logger.WithField("driver", cfg.StoreDriver)

	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("Using in-memory record store; data is lost on restart")
		return memstore.New(), nil

	case config.StoreMongo:
		client, err := database.GetMongo()
		if err != nil {
			return nil, fmt.Errorf("connecting to mongo: %w", err)
		}
		st := mongostore.New(client, cfg.MongoDatabase)
		initCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		if err := st.Initialize(initCtx); err != nil {
			return nil, fmt.Errorf("creating mongo indexes: %w", err)
		}
		log.Info("Record store ready")
		return st, nil

	case config.StorePostgres:
		db, err := database.GetPostgres()
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		st := pgstore.New(db)
		if err := st.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("migrating record tables: %w", err)
		}
		log.Info("Record store ready")
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
