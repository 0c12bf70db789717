package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/internal/domain/report"
	"github.com/okian/turnlat/pkg/logger"
)

const insertBatchSize = 500

// MeasurementRow is the persisted form of a retained measurement.
type MeasurementRow struct {
	ID           uint      `gorm:"primaryKey"`
	RunID        string    `gorm:"size:36;not null;index:idx_run"`
	RecordingID  string    `gorm:"size:64;not null;index:idx_recording"`
	CallID       string    `gorm:"size:64"`
	Timestamp    time.Time `gorm:"index"`
	UserOnsetMS  int
	AgentOnsetMS int
	RTTMS        int `gorm:"column:rtt_ms"`
	Confidence   float64
	Quality      float64
}

// TableName pins the measurements table name.
func (MeasurementRow) TableName() string { return "turn_measurements" }

// RunRow summarizes one analysis run.
type RunRow struct {
	RunID       string    `gorm:"primaryKey;size:36"`
	GeneratedAt time.Time `gorm:"index"`
	WindowStart *time.Time
	WindowEnd   *time.Time
	Status      string `gorm:"size:16"`
	Verdict     string `gorm:"size:16"`
	Count       int
	MeanMS      float64
	MedianMS    float64
	P95MS       float64
	P99MS       float64
	Listed      int
	Analyzed    int
	Skipped     int
	Duplicates  int
}

// TableName pins the runs table name.
func (RunRow) TableName() string { return "analysis_runs" }

// SQLiteSink appends run results to a SQLite database so runs can be compared over time.
type SQLiteSink struct {
	mu     sync.Mutex
	db     *gorm.DB
	closed bool
	log    logger.Logger
}

// OpenSQLite opens (or creates) the database at path and migrates the schema.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&MeasurementRow{}, &RunRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}
	return &SQLiteSink{db: db, log: logger.Get().Named("sqlite")}, nil
}

// Save stores the run summary and its measurements in one transaction.
// Saving the same run twice replaces the earlier rows.
func (s *SQLiteSink) Save(ctx context.Context, r *report.Report, ms []model.TurnMeasurement) error {
	if r == nil {
		return ErrNilReport
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}

	rows := make([]MeasurementRow, len(ms))
	for i, m := range ms {
		rows[i] = MeasurementRow{
			RunID:        r.RunID,
			RecordingID:  m.RecordingID,
			CallID:       m.CallID,
			Timestamp:    m.Timestamp,
			UserOnsetMS:  m.UserOnsetMS,
			AgentOnsetMS: m.AgentOnsetMS,
			RTTMS:        m.RTTMS,
			Confidence:   m.Confidence,
			Quality:      m.Quality,
		}
	}
	run := RunRow{
		RunID:       r.RunID,
		GeneratedAt: r.GeneratedAt,
		WindowStart: r.WindowStart,
		WindowEnd:   r.WindowEnd,
		Status:      r.Status,
		Verdict:     string(r.Compliance.Verdict),
		Count:       r.Latency.Count,
		MeanMS:      r.Latency.Mean,
		MedianMS:    r.Latency.Median,
		P95MS:       r.Latency.P95,
		P99MS:       r.Latency.P99,
		Listed:      r.Recordings.Listed,
		Analyzed:    r.Recordings.Analyzed,
		Skipped:     r.Recordings.Skipped,
		Duplicates:  r.Recordings.Duplicates,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", r.RunID).Delete(&MeasurementRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", r.RunID).Delete(&RunRow{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.RunID, err)
	}

	s.log.Debug(ctx, "run saved", logger.String("run_id", r.RunID), logger.Int("measurements", len(rows)))
	return nil
}

// Runs returns stored run summaries, newest first.
func (s *SQLiteSink) Runs(ctx context.Context) ([]RunRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSinkClosed
	}
	var out []RunRow
	if err := s.db.WithContext(ctx).Order("generated_at desc").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Measurements returns the stored measurements of one run in insertion order.
func (s *SQLiteSink) Measurements(ctx context.Context, runID string) ([]MeasurementRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSinkClosed
	}
	var out []MeasurementRow
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the database handle.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
