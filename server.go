package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	"bitbucket.org/finfocus/labourrecon_backend/models"
	"bitbucket.org/finfocus/labourrecon_backend/utils"
	"bitbucket.org/finfocus/labourrecon_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// registerBindingValidators installs the costaccount format check so that
// request structs can declare `binding:"costaccount"` on code fields and get
// the same LLL-DDDD rule the engine enforces internally.
func registerBindingValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("costaccount", func(fl validator.FieldLevel) bool {
			_, err := models.ParseCostAccountCode(fl.Field().String())
			return err == nil
		})
	}
}

// obtainPeriodLock is a best-effort Redis lock around the long-running engine
// endpoints. Reliability must not depend on Redis: the workflows also
// serialize per period via MySQL advisory locks, so on any Redis trouble we
// proceed without the lock.
func obtainPeriodLock(c *gin.Context, logger *logrus.Logger, payPeriodId string) *redislock.Lock {
	redisLock := config.GetRedisLock()
	if redisLock == nil {
		return nil
	}
	lock, err := redisLock.Obtain(c.Request.Context(), "lock:payperiod:"+payPeriodId, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		logger.WithFields(logrus.Fields{
			"field":      "obtainPeriodLock",
			"pay_period": payPeriodId,
		}).Warn("could not obtain redis lock; proceeding without redis lock")
		return nil
	} else if err != nil {
		logger.WithFields(logrus.Fields{
			"field":      "obtainPeriodLock",
			"pay_period": payPeriodId,
		}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		return nil
	}
	return lock
}

func releasePeriodLock(c *gin.Context, logger *logrus.Logger, lock *redislock.Lock) {
	if lock == nil {
		return
	}
	if err := lock.Release(c.Request.Context()); err != nil {
		logger.WithFields(logrus.Fields{
			"field": "releasePeriodLock",
		}).Warn("failed to release redis lock: " + err.Error())
	}
}

type saveMappingsRequest struct {
	PayPeriodId string                      `json:"pay_period_id" binding:"required"`
	Mappings    []models.NewLocationMapping `json:"mappings" binding:"required,min=1,dive"`
}

func saveMappingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		var req saveMappingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		lock := obtainPeriodLock(c, logger, req.PayPeriodId)
		defer releasePeriodLock(c, logger, lock)

		result, err := workflow.SaveMappingsAndReallocate(config.GetDB(), logger, req.PayPeriodId, req.Mappings)
		if err != nil {
			var structural *models.StructuralError
			if errors.As(err, &structural) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if result != nil {
				// The mapping batch committed before the allocation re-run
				// failed; the caller needs the counts to know the save stuck.
				config.LogError(logger, "server.go", "saveMappingsHandler", "reallocate after save", req.PayPeriodId, err)
				c.JSON(http.StatusConflict, gin.H{
					"error":         "mappings saved but allocation re-run failed: " + err.Error(),
					"created_count": result.CreatedCount,
					"updated_count": result.UpdatedCount,
				})
				return
			}
			writeWorkflowError(c, logger, "saveMappingsHandler", req.PayPeriodId, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func uploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		var input workflow.UploadInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		switch input.SourceSystem {
		case models.SourceSystemIQB, models.SourceSystemTanda, models.SourceSystemJournal:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source system"})
			return
		}

		upload, result, err := workflow.ReceiveUpload(config.GetDB(), logger, &input)
		if err != nil {
			if errors.Is(err, workflow.ErrEmptyUpload) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			writeWorkflowError(c, logger, "uploadHandler", input.PayPeriodId, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"upload":     upload,
			"validation": gin.H{"upload_id": result.UploadId, "passed": result.Passed},
		})
	}
}

func getUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		uploadId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "upload id must be an integer"})
			return
		}
		upload, err := models.GetUpload(uploadId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
				return
			}
			config.LogError(logger, "server.go", "getUploadHandler", "GetUpload", uploadId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, upload)
	}
}

func reconciliationReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		payPeriodId := c.Param("id")

		run, err := models.GetReconciliationRun(payPeriodId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no reconciliation run for pay period"})
				return
			}
			config.LogError(logger, "server.go", "reconciliationReportHandler", "GetReconciliationRun", payPeriodId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		exceptions, err := models.GetReconciliationExceptions(payPeriodId)
		if err != nil {
			config.LogError(logger, "server.go", "reconciliationReportHandler", "GetReconciliationExceptions", payPeriodId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		journals, err := models.GetJournalReconciliations(payPeriodId)
		if err != nil {
			config.LogError(logger, "server.go", "reconciliationReportHandler", "GetJournalReconciliations", payPeriodId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run":        run,
			"journals":   journals,
			"exceptions": exceptions,
		})
	}
}

func allocationRulesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		payPeriodId := c.Param("id")

		source := models.AllocationSourceTag(c.DefaultQuery("source", string(models.AllocationSourceIQB)))
		if !source.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "source must be one of iqb, tanda, override"})
			return
		}
		rules, err := models.GetAllocationRules(payPeriodId, source)
		if err != nil {
			config.LogError(logger, "server.go", "allocationRulesHandler", "GetAllocationRules", payPeriodId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"pay_period_id": payPeriodId,
			"source":        source,
			"rules":         rules,
		})
	}
}

func employeeAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		payPeriodId := c.Param("id")
		employeeCode := c.Param("code")

		allocation, err := workflow.EffectiveEmployeeAllocation(config.GetDB(), payPeriodId, employeeCode)
		if err != nil {
			writeWorkflowError(c, logger, "employeeAllocationHandler", payPeriodId, err)
			return
		}
		c.JSON(http.StatusOK, allocation)
	}
}

func allocateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		payPeriodId := c.Param("id")

		lock := obtainPeriodLock(c, logger, payPeriodId)
		defer releasePeriodLock(c, logger, lock)

		result, err := workflow.RunAllocation(config.GetDB(), logger, payPeriodId)
		if err != nil {
			writeWorkflowError(c, logger, "allocateHandler", payPeriodId, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func reconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		payPeriodId := c.Param("id")

		lock := obtainPeriodLock(c, logger, payPeriodId)
		defer releasePeriodLock(c, logger, lock)

		result, err := workflow.Reconcile(config.GetDB(), logger, payPeriodId)
		if err != nil {
			writeWorkflowError(c, logger, "reconcileHandler", payPeriodId, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func uploadValidationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		uploadId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "upload id must be an integer"})
			return
		}
		result, err := models.GetValidationResult(uploadId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no validation result for upload"})
				return
			}
			config.LogError(logger, "server.go", "uploadValidationHandler", "GetValidationResult", uploadId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		checks, err := result.Checks()
		if err != nil {
			config.LogError(logger, "server.go", "uploadValidationHandler", "decode checks", uploadId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"upload_id":  result.UploadId,
			"passed":     result.Passed,
			"checks":     checks,
			"created_at": result.CreatedAt,
		})
	}
}

func unmappedLabelsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		payPeriodId := c.Param("id")
		labels, err := workflow.UnmappedLabels(config.GetDB(), payPeriodId)
		if err != nil {
			writeWorkflowError(c, logger, "unmappedLabelsHandler", payPeriodId, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"pay_period_id": payPeriodId, "unmapped": labels})
	}
}

type selectSourceRequest struct {
	Source    models.AllocationSourceTag `json:"source" binding:"required"`
	UpdatedBy string                     `json:"updated_by"`
}

func selectSourceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		payPeriodId := c.Param("id")
		employeeCode := c.Param("code")

		var req selectSourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !req.Source.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "source must be one of iqb, tanda, override"})
			return
		}

		selection, err := models.SelectAllocationSource(config.GetDB(), payPeriodId, employeeCode, req.Source, req.UpdatedBy)
		if err != nil {
			config.LogError(logger, "server.go", "selectSourceHandler", "SelectAllocationSource", employeeCode, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, selection)
	}
}

type overrideRequest struct {
	Override  string `json:"override" binding:"required"`
	UpdatedBy string `json:"updated_by"`
}

func applyOverrideHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		payPeriodId := c.Param("id")
		employeeCode := c.Param("code")

		var req overrideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		lock := obtainPeriodLock(c, logger, payPeriodId)
		defer releasePeriodLock(c, logger, lock)

		rules, err := workflow.ApplyOverride(config.GetDB(), logger, payPeriodId, employeeCode, req.Override, req.UpdatedBy)
		if err != nil {
			var parseErr *workflow.OverrideParseError
			if errors.As(err, &parseErr) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":  parseErr.Reason,
					"tokens": parseErr.Tokens,
				})
				return
			}
			writeWorkflowError(c, logger, "applyOverrideHandler", payPeriodId, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"pay_period_id": payPeriodId,
			"employee_code": employeeCode,
			"rules":         rules,
		})
	}
}

// writeWorkflowError maps the workflow sentinels onto HTTP statuses and logs
// anything unexpected.
func writeWorkflowError(c *gin.Context, logger *logrus.Logger, funcName, payPeriodId string, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "pay period not found"})
	case errors.Is(err, workflow.ErrNoSourceData):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrValidationFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		config.LogError(logger, "server.go", funcName, "workflow", payPeriodId, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	registerBindingValidators()

	// Start the HTTP server ASAP so the startup probe sees the port open.
	// Until the DB is ready, app endpoints return 503.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production require an explicit allowlist; otherwise allow all for
	// developer convenience.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/api/location-mappings", saveMappingsHandler())
	r.POST("/api/uploads", uploadHandler())
	r.GET("/api/uploads/:id", getUploadHandler())
	r.GET("/api/uploads/:id/validation", uploadValidationHandler())
	r.POST("/api/pay-periods/:id/allocate", allocateHandler())
	r.POST("/api/pay-periods/:id/reconcile", reconcileHandler())
	r.GET("/api/pay-periods/:id/reconciliation", reconciliationReportHandler())
	r.GET("/api/pay-periods/:id/rules", allocationRulesHandler())
	r.GET("/api/pay-periods/:id/unmapped", unmappedLabelsHandler())
	r.GET("/api/pay-periods/:id/employees/:code/allocation", employeeAllocationHandler())
	r.PUT("/api/pay-periods/:id/employees/:code/source", selectSourceHandler())
	r.PUT("/api/pay-periods/:id/employees/:code/override", applyOverrideHandler())
	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running migrations as
	// a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on :", port)

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
