package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aquatrack-hygiene/service-booking/internal/domain/account"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AddressModel is the GORM model for the addresses table. The table is owned
// by the customer service; this service only reads it.
type AddressModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Name        string    `gorm:"type:varchar(100);not null"`
	AddressLine string    `gorm:"type:text;not null"`
	Landmark    string    `gorm:"type:varchar(200)"`
	Lat         *float64  `gorm:""`
	Lng         *float64  `gorm:""`
	CreatedAt   time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

func (AddressModel) TableName() string { return "addresses" }

// UserModel is a read view of the users table.
type UserModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email     string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	Name      string    `gorm:"type:varchar(100);not null"`
	Phone     string    `gorm:"type:varchar(20)"`
	Verified  bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

func (UserModel) TableName() string { return "users" }

// FieldTeamModel is a read view of the field_teams table.
type FieldTeamModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email      string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	Name       string    `gorm:"type:varchar(100);not null"`
	Phone      string    `gorm:"type:varchar(20)"`
	EmployeeID string    `gorm:"type:varchar(50)"`
	Active     bool      `gorm:"not null;default:true"`
	CreatedAt  time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

func (FieldTeamModel) TableName() string { return "field_teams" }

// AdminModel is a read view of the admins table.
type AdminModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email     string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	Name      string    `gorm:"type:varchar(100);not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

func (AdminModel) TableName() string { return "admins" }

// GormAddressRepository implements AddressRepository using GORM.
type GormAddressRepository struct {
	db *gorm.DB
}

func NewGormAddressRepository(db *gorm.DB) *GormAddressRepository {
	return &GormAddressRepository{db: db}
}

func (r *GormAddressRepository) FindOwned(ctx context.Context, id, ownerID uuid.UUID) (*account.Address, error) {
	return r.find(ctx, r.db.Where("id = ? AND user_id = ?", id, ownerID), id)
}

func (r *GormAddressRepository) FindByID(ctx context.Context, id uuid.UUID) (*account.Address, error) {
	return r.find(ctx, r.db.Where("id = ?", id), id)
}

func (r *GormAddressRepository) find(ctx context.Context, cond *gorm.DB, id uuid.UUID) (*account.Address, error) {
	var model AddressModel
	if err := r.db.WithContext(ctx).Where(cond).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Address", id.String())
		}
		return nil, fmt.Errorf("failed to find address: %w", err)
	}
	return &account.Address{
		ID:          model.ID,
		UserID:      model.UserID,
		Name:        model.Name,
		AddressLine: model.AddressLine,
		Landmark:    model.Landmark,
		Lat:         model.Lat,
		Lng:         model.Lng,
		CreatedAt:   model.CreatedAt,
	}, nil
}

// GormDirectory implements Directory over the users, field_teams and admins tables.
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) TechnicianExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return d.exists(ctx, &FieldTeamModel{}, d.db.Where("id = ? AND active = ?", id, true))
}

func (d *GormDirectory) CustomerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return d.exists(ctx, &UserModel{}, d.db.Where("id = ?", id))
}

func (d *GormDirectory) AdminExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return d.exists(ctx, &AdminModel{}, d.db.Where("id = ?", id))
}

func (d *GormDirectory) FindCustomer(ctx context.Context, id uuid.UUID) (*account.Contact, error) {
	var model UserModel
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Customer", id.String())
		}
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}
	return &account.Contact{ID: model.ID, Name: model.Name, Email: model.Email, Phone: model.Phone}, nil
}

func (d *GormDirectory) exists(ctx context.Context, model interface{}, cond *gorm.DB) (bool, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(model).Where(cond).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return count > 0, nil
}
