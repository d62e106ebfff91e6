package handlers

import (
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/contentops/statevault/internal/models"
	"github.com/contentops/statevault/internal/services"
)

// BackupHandler exposes the backup service's operation contract over HTTP and
// persists an audit row for every operation it triggers. The audit database
// handle may be nil (audit disabled); the operations themselves still run.
type BackupHandler struct {
	svc *services.BackupService
	db  *gorm.DB
	log zerolog.Logger
}

func NewBackupHandler(svc *services.BackupService, db *gorm.DB, log zerolog.Logger) *BackupHandler {
	return &BackupHandler{svc: svc, db: db, log: log}
}

// Register mounts the backup routes on the router group.
func (h *BackupHandler) Register(api fiber.Router) {
	api.Get("/backups", h.Status)
	api.Post("/backups/full", h.CreateFull)
	api.Post("/backups/incremental", h.CreateIncremental)
	api.Post("/backups/:id/restore", h.Restore)
	api.Get("/backups/:id/download/:component", h.Download)
	api.Delete("/backups/:id", h.Delete)
	api.Post("/scheduler/start", h.StartScheduler)
	api.Post("/scheduler/stop", h.StopScheduler)
	api.Patch("/config", h.UpdateConfig)
	api.Post("/sync/ftp/test", h.TestFTP)
}

// Status returns the active runs and recent backup/recovery history.
func (h *BackupHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.svc.GetBackupStatus())
}

// CreateFull triggers a full backup run.
func (h *BackupHandler) CreateFull(c *fiber.Ctx) error {
	result := h.svc.CreateFullBackup(c.Context())
	h.audit(c, models.ActionCreateFull, backupID(result.Backup), "", result.Success, result.Error)
	if !result.Success {
		return c.Status(fiber.StatusInternalServerError).JSON(result)
	}
	return c.JSON(result)
}

// CreateIncremental triggers an incremental backup run.
func (h *BackupHandler) CreateIncremental(c *fiber.Ctx) error {
	result := h.svc.CreateIncrementalBackup(c.Context())
	h.audit(c, models.ActionCreateIncremental, backupID(result.Backup), "", result.Success, result.Error)
	if !result.Success {
		return c.Status(fiber.StatusInternalServerError).JSON(result)
	}
	return c.JSON(result)
}

// Restore applies a backup's components, optionally a subset and into an
// alternate destination.
func (h *BackupHandler) Restore(c *fiber.Ctx) error {
	id := c.Params("id")

	var opts models.RestoreOptions
	if err := c.BodyParser(&opts); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	result := h.svc.RestoreFromBackup(c.Context(), id, opts)
	h.audit(c, models.ActionRestore, id, recoveryID(result.Recovery), result.Success, result.Error)
	if !result.Success {
		status := fiber.StatusInternalServerError
		if _, ok := h.svc.History().Get(id); !ok {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(result)
	}
	return c.JSON(result)
}

// Download serves one of a backup's artifacts.
func (h *BackupHandler) Download(c *fiber.Ctx) error {
	id := c.Params("id")
	component := c.Params("component")

	b, ok := h.svc.History().Get(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Backup not found",
		})
	}
	comp, ok := b.Components[component]
	if !ok || comp.Location == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Component has no artifact",
		})
	}
	if _, err := os.Stat(comp.Location); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Artifact missing on disk",
		})
	}
	return c.Download(comp.Location, filepath.Base(comp.Location))
}

// Delete removes a backup's artifacts and history entry.
func (h *BackupHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	result := h.svc.DeleteBackup(id)
	h.audit(c, models.ActionDelete, id, "", result.Success, result.Error)
	if !result.Success {
		return c.Status(fiber.StatusNotFound).JSON(result)
	}
	return c.JSON(result)
}

// StartScheduler enables periodic incremental backups.
func (h *BackupHandler) StartScheduler(c *fiber.Ctx) error {
	result := h.svc.StartScheduledBackups()
	h.audit(c, models.ActionSchedulerStart, "", "", result.Success, result.Error)
	return c.JSON(result)
}

// StopScheduler disables periodic incremental backups.
func (h *BackupHandler) StopScheduler(c *fiber.Ctx) error {
	result := h.svc.StopScheduledBackups()
	h.audit(c, models.ActionSchedulerStop, "", "", result.Success, result.Error)
	return c.JSON(result)
}

// UpdateConfig applies a partial configuration update.
func (h *BackupHandler) UpdateConfig(c *fiber.Ctx) error {
	var updates map[string]interface{}
	if err := c.BodyParser(&updates); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	result := h.svc.UpdateConfiguration(updates)
	h.audit(c, models.ActionConfigUpdate, "", "", result.Success, result.Error)
	if !result.Success {
		return c.Status(fiber.StatusBadRequest).JSON(result)
	}
	return c.JSON(result)
}

// TestFTP checks FTP credentials and path access for the sync target.
func (h *BackupHandler) TestFTP(c *fiber.Ctx) error {
	var req struct {
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Username string `json:"username"`
		Password string `json:"password"`
		Path     string `json:"path"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request",
		})
	}
	if req.Port == 0 {
		req.Port = 21
	}

	if err := services.TestFTPConnection(req.Host, req.Port, req.Username, req.Password, req.Path); err != nil {
		return c.JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "FTP connection successful",
	})
}

// audit persists the operation's audit row. Audit problems are logged, never
// surfaced to the caller.
func (h *BackupHandler) audit(c *fiber.Ctx, action models.OperationAction, backupID, recoveryID string, success bool, errMsg string) {
	if h.db == nil {
		return
	}
	row := models.BackupOperation{
		Action:     action,
		BackupID:   backupID,
		RecoveryID: recoveryID,
		Actor:      c.Get("X-Operator", "unknown"),
		Success:    success,
		Message:    errMsg,
		IPAddress:  c.IP(),
	}
	if err := h.db.Create(&row).Error; err != nil {
		h.log.Error().Err(err).Str("action", string(action)).Msg("failed to write audit row")
	}
}

func backupID(b *models.Backup) string {
	if b == nil {
		return ""
	}
	return b.ID
}

func recoveryID(r *models.Recovery) string {
	if r == nil {
		return ""
	}
	return r.ID
}
