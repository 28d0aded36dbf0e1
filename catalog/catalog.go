// Package catalog keeps the layer records of the service in a SQLite database.
// A record points a layer name at a tiles table of a GeoPackage.
package catalog

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/pkg/errors"
)

var (
	ErrNotFound  = errors.New("layer not found")
	ErrDuplicate = errors.New("layer already exists")
)

type Layer struct {
	ID         uint   `gorm:"primary_key"`
	Name       string `gorm:"unique_index;not null" validate:"required,excludesall=/{}"`
	Title      string
	Abstract   string
	Keywords   string
	GeoPackage string `gorm:"column:geopackage;not null" validate:"required"`
	Table      string `gorm:"column:tile_table;not null" validate:"required"`
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Layer) TableName() string {
	return "layers"
}

// KeywordList splits the comma separated keywords.
func (l *Layer) KeywordList() []string {
	var keywords []string
	for _, k := range strings.Split(l.Keywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}

type Catalog struct {
	db       *gorm.DB
	validate *validator.Validate
}

// Open opens or creates the catalog database at path.
func Open(path string) (*Catalog, error) {
	db, err := gorm.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "Error opening catalog "+path)
	}
	// one connection, so in-memory databases are shared
	db.DB().SetMaxOpenConns(1)
	if err = db.AutoMigrate(&Layer{}).Error; err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "Error migrating Layer")
	}
	return &Catalog{db: db, validate: validator.New()}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) Create(l *Layer) error {
	if err := c.validate.Struct(l); err != nil {
		return errors.Wrap(err, "Invalid layer")
	}
	var count int
	if err := c.db.Model(&Layer{}).Where("name = ?", l.Name).Count(&count).Error; err != nil {
		return errors.Wrap(err, "Error counting layers")
	}
	if count > 0 {
		return errors.Wrap(ErrDuplicate, l.Name)
	}
	return errors.Wrap(c.db.Create(l).Error, "Error creating layer "+l.Name)
}

func (c *Catalog) Get(name string) (*Layer, error) {
	var l Layer
	err := c.db.Where("name = ?", name).First(&l).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "Error reading layer "+name)
	}
	return &l, nil
}

// List returns the layers ordered by creation. With enabledOnly disabled
// records are skipped.
func (c *Catalog) List(enabledOnly bool) ([]Layer, error) {
	var layers []Layer
	q := c.db.Order("id")
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	if err := q.Find(&layers).Error; err != nil {
		return nil, errors.Wrap(err, "Error listing layers")
	}
	return layers, nil
}

// Update saves all fields of an existing record, found by name.
func (c *Catalog) Update(l *Layer) error {
	if err := c.validate.Struct(l); err != nil {
		return errors.Wrap(err, "Invalid layer")
	}
	existing, err := c.Get(l.Name)
	if err != nil {
		return err
	}
	l.ID = existing.ID
	l.CreatedAt = existing.CreatedAt
	return errors.Wrap(c.db.Save(l).Error, "Error updating layer "+l.Name)
}

func (c *Catalog) Delete(name string) error {
	result := c.db.Where("name = ?", name).Delete(&Layer{})
	if result.Error != nil {
		return errors.Wrap(result.Error, "Error deleting layer "+name)
	}
	if result.RowsAffected == 0 {
		return errors.Wrap(ErrNotFound, name)
	}
	return nil
}
