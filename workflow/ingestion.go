package workflow

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	"bitbucket.org/finfocus/labourrecon_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrEmptyUpload = errors.New("upload contains no rows")

// UploadInput is one received source file already parsed into rows by the
// caller. The row slice matching SourceSystem is the payload; the others are
// ignored.
type UploadInput struct {
	PayPeriodId  string               `json:"pay_period_id" binding:"required"`
	PeriodStart  time.Time            `json:"period_start" binding:"required"`
	PeriodEnd    time.Time            `json:"period_end" binding:"required"`
	SourceSystem models.SourceSystem  `json:"source_system" binding:"required"`
	FileName     string               `json:"file_name"`
	IQBDetails   []models.IQBDetail   `json:"iqb_details"`
	TandaShifts  []models.TandaShift  `json:"tanda_shifts"`
	JournalLines []models.JournalLine `json:"journal_lines"`
}

// ReceiveUpload registers a source file for a period: the batch supersedes
// any prior active upload for the same (period, source), its rows are
// persisted immutably, and validation runs in the same transaction so the
// upload is never visible without a verdict. The pay period is created on
// first contact.
func ReceiveUpload(db *gorm.DB, logger *logrus.Logger, input *UploadInput) (*models.Upload, *models.ValidationResult, error) {
	if _, err := models.GetOrCreatePayPeriod(input.PayPeriodId, input.PeriodStart, input.PeriodEnd); err != nil {
		return nil, nil, err
	}

	var upload *models.Upload
	var result *models.ValidationResult
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		switch input.SourceSystem {
		case models.SourceSystemIQB:
			if len(input.IQBDetails) == 0 {
				return ErrEmptyUpload
			}
			upload, err = models.CreateUpload(tx, input.PayPeriodId, input.SourceSystem, input.FileName, len(input.IQBDetails))
			if err != nil {
				return err
			}
			rows := input.IQBDetails
			for i := range rows {
				rows[i].UploadId = upload.ID
			}
			err = tx.Create(&rows).Error
		case models.SourceSystemTanda:
			if len(input.TandaShifts) == 0 {
				return ErrEmptyUpload
			}
			upload, err = models.CreateUpload(tx, input.PayPeriodId, input.SourceSystem, input.FileName, len(input.TandaShifts))
			if err != nil {
				return err
			}
			rows := input.TandaShifts
			for i := range rows {
				rows[i].UploadId = upload.ID
			}
			err = tx.Create(&rows).Error
		case models.SourceSystemJournal:
			if len(input.JournalLines) == 0 {
				return ErrEmptyUpload
			}
			upload, err = models.CreateUpload(tx, input.PayPeriodId, input.SourceSystem, input.FileName, len(input.JournalLines))
			if err != nil {
				return err
			}
			rows := input.JournalLines
			for i := range rows {
				rows[i].UploadId = upload.ID
			}
			err = tx.Create(&rows).Error
		default:
			return fmt.Errorf("unknown source system: %s", input.SourceSystem)
		}
		if err != nil {
			return err
		}

		result, err = ValidateUpload(tx, logger, upload)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrEmptyUpload) {
			config.LogError(logger, "ingestion.go", "ReceiveUpload", "receive", input.PayPeriodId, err)
		}
		return nil, nil, err
	}

	logger.WithFields(logrus.Fields{
		"pay_period": input.PayPeriodId,
		"source":     input.SourceSystem,
		"upload_id":  upload.ID,
		"rows":       upload.RowCount,
	}).Info("upload received")
	return upload, result, nil
}
