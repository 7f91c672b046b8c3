package sink

import (
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mcslp/backend/address"
)

// seenRecord is the gorm model backing the on-disk seen-set
// accelerator at <home>/.minecraft-scanner/cache/seen.db. It exists
// purely to make startup dedup (§8 scenario 6) an indexed lookup
// instead of a full re-scan of the text catalog once that catalog
// grows large; the text/JSON catalogs remain the source of truth.
type seenRecord struct {
	Address uint32 `gorm:"primaryKey"`
}

func (seenRecord) TableName() string { return "seen_addresses" }

// SeenCache wraps a sqlite-backed gorm.DB for fast startup seeding and
// incremental population of the SeenSet.
type SeenCache struct {
	db *gorm.DB
}

func OpenSeenCache(path string) (*SeenCache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, errors.Wrap(err, "open seen cache")
	}
	if err := db.AutoMigrate(&seenRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate seen cache")
	}
	return &SeenCache{db: db}, nil
}

// LoadInto seeds s with every address persisted in the cache.
func (c *SeenCache) LoadInto(s *SeenSet) error {
	var records []seenRecord
	if err := c.db.FindInBatches(&records, 10_000, func(tx *gorm.DB, batch int) error {
		for _, r := range records {
			s.Insert(address.Address(r.Address))
		}
		return nil
	}).Error; err != nil {
		return errors.Wrap(err, "load seen cache")
	}
	return nil
}

// Record persists addr so a future session's LoadInto picks it up
// without re-parsing the text catalog.
func (c *SeenCache) Record(addr address.Address) error {
	rec := seenRecord{Address: uint32(addr)}
	if err := c.db.Where("address = ?", rec.Address).FirstOrCreate(&rec).Error; err != nil {
		return errors.Wrap(err, "record seen address")
	}
	return nil
}

func (c *SeenCache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
