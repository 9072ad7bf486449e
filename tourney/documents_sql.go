package tourney

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type storedDocument struct {
	Name      string `gorm:"primaryKey;size:64"`
	Body      []byte
	UpdatedAt time.Time
}

func (storedDocument) TableName() string {
	return "tourney_documents"
}

// SQLDocumentStore keeps documents as rows in a relational database through gorm.
type SQLDocumentStore struct {
	db *gorm.DB
}

// NewSQLDocumentStore migrates the documents table and returns a store on top of db.
func NewSQLDocumentStore(db *gorm.DB) (*SQLDocumentStore, error) {
	if err := db.AutoMigrate(&storedDocument{}); err != nil {
		return nil, err
	}
	return &SQLDocumentStore{db: db}, nil
}

func (s *SQLDocumentStore) Load(ctx context.Context, name string) (Document, error) {
	var row storedDocument
	if err := s.db.WithContext(ctx).First(&row, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return decodeDocument(row.Body)
}

func (s *SQLDocumentStore) Save(ctx context.Context, name string, doc Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	row := storedDocument{Name: name, Body: data, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&row).Error
}

func (s *SQLDocumentStore) Quarantine(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&storedDocument{}, "name = ?", name+corruptSuffix).Error; err != nil {
			return err
		}
		result := tx.Model(&storedDocument{}).Where("name = ?", name).Update("name", name+corruptSuffix)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrDocumentNotFound
		}
		return nil
	})
}
