package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/damage-estimator/internal/estimate"
	"github.com/example/damage-estimator/internal/logging"
)

// EstimationRow is the persisted form of an estimate.Record. Seq is assigned
// by the database and orders records that share a timestamp.
type EstimationRow struct {
	Seq                uint      `gorm:"column:seq;primaryKey;autoIncrement"`
	RecordID           string    `gorm:"column:record_id;uniqueIndex;size:36"`
	VehicleName        string    `gorm:"column:vehicle_name;size:64"`
	VehicleModel       string    `gorm:"column:vehicle_model;size:64"`
	ImageName          string    `gorm:"column:image_name;size:255"`
	AnnotatedImageName string    `gorm:"column:annotated_image_name;size:255"`
	DamageType         string    `gorm:"column:damage_type;size:64;index"`
	Confidence         float64   `gorm:"column:confidence"`
	BaseCost           int       `gorm:"column:base_cost"`
	EstimatedCost      int       `gorm:"column:estimated_cost"`
	Severity           string    `gorm:"column:severity;size:16"`
	CostRange          string    `gorm:"column:cost_range;size:64"`
	UserID             *string   `gorm:"column:user_id;size:36;index"`
	CreatedAt          time.Time `gorm:"column:created_at;index"`
}

// TableName overrides the default table name.
func (EstimationRow) TableName() string {
	return "estimations"
}

// EstimationRepository stores estimation records. It is safe for concurrent use.
type EstimationRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewEstimationRepository creates a new repository instance.
func NewEstimationRepository(db *gorm.DB, logger *zap.Logger) *EstimationRepository {
	return &EstimationRepository{
		db:             db,
		logger:         logger.Named("estimation_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *EstimationRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&EstimationRow{})
}

// Ping checks that the database answers.
func (r *EstimationRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return logging.NewOperationError("repository.ping", "", err)
	}
	return logging.NewOperationError("repository.ping", "", sqlDB.PingContext(ctx))
}

// Insert appends a record.
func (r *EstimationRepository) Insert(ctx context.Context, record *estimate.Record) error {
	row := toRow(record)
	return r.executeWithRetry(ctx, "repository.insert", record.ID, func() error {
		return r.db.WithContext(ctx).Create(row).Error
	})
}

// ListRecent returns every record, newest first. Records created at the same
// instant are ordered by insertion, latest first.
func (r *EstimationRepository) ListRecent(ctx context.Context) ([]estimate.Record, error) {
	var rows []EstimationRow
	err := r.executeWithRetry(ctx, "repository.list_recent", "", func() error {
		rows = rows[:0]
		return r.db.WithContext(ctx).Order("created_at DESC").Order("seq DESC").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	out := make([]estimate.Record, 0, len(rows))
	for i := range rows {
		out = append(out, fromRow(&rows[i]))
	}
	return out, nil
}

// FindByID loads a single record.
func (r *EstimationRepository) FindByID(ctx context.Context, id string) (*estimate.Record, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, estimate.ErrRecordNotFound
	}
	var row EstimationRow
	err = r.executeWithRetry(ctx, "repository.find_by_id", id, func() error {
		return r.db.WithContext(ctx).First(&row, "record_id = ?", parsed.String()).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, estimate.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	record := fromRow(&row)
	return &record, nil
}

// Delete removes a record and reports whether one existed. Ids that are not
// well formed cannot match and report false.
func (r *EstimationRepository) Delete(ctx context.Context, id string) (bool, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}
	var affected int64
	err = r.executeWithRetry(ctx, "repository.delete", id, func() error {
		res := r.db.WithContext(ctx).Where("record_id = ?", parsed.String()).Delete(&EstimationRow{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *EstimationRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	if r.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if !logging.IsTransient(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func toRow(record *estimate.Record) *EstimationRow {
	row := &EstimationRow{
		RecordID:           record.ID,
		VehicleName:        record.Vehicle.Brand,
		VehicleModel:       record.Vehicle.Model,
		ImageName:          record.SourceImage,
		AnnotatedImageName: record.AnnotatedImage,
		DamageType:         string(record.Category),
		Confidence:         record.Confidence,
		BaseCost:           record.Estimate.BaseCost,
		EstimatedCost:      record.Cost(),
		Severity:           string(record.Estimate.Severity),
		CostRange:          record.Estimate.CostRange,
		CreatedAt:          record.CreatedAt.UTC(),
	}
	if record.OwnerID != "" {
		owner := record.OwnerID
		row.UserID = &owner
	}
	return row
}

func fromRow(row *EstimationRow) estimate.Record {
	cost := row.EstimatedCost
	record := estimate.Record{
		ID:             row.RecordID,
		Vehicle:        estimate.Vehicle{Brand: row.VehicleName, Model: row.VehicleModel},
		SourceImage:    row.ImageName,
		AnnotatedImage: row.AnnotatedImageName,
		Category:       estimate.Category(row.DamageType),
		Confidence:     row.Confidence,
		Estimate: estimate.CostEstimate{
			BaseCost:     row.BaseCost,
			AdjustedCost: &cost,
			Severity:     estimate.Severity(row.Severity),
			CostRange:    row.CostRange,
		},
		CreatedAt: row.CreatedAt.UTC(),
	}
	if row.UserID != nil {
		record.OwnerID = *row.UserID
	}
	return record
}
