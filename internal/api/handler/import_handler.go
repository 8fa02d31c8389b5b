package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alexandre-riera/somafi-ingest/internal/api/dto"
	"github.com/alexandre-riera/somafi-ingest/internal/domain"
	"github.com/alexandre-riera/somafi-ingest/internal/tenant"
	"github.com/gin-gonic/gin"
)

// ImportEquipments handles POST /api/v1/agencies/:agency/equipments/import
//
// Incoming rows are partitioned against the existing equipment of the
// (contact, year) scope. Duplicates are reported back and skipped unless
// force=true, in which case the full payload is inserted. The insert is
// all-or-nothing; on a rolled-back batch the response carries the error list
// and a zero inserted count.
func (h *Handler) ImportEquipments(c *gin.Context) {
	agencyCode := c.Param("agency")
	if !tenant.IsValid(agencyCode) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unknown agency code %q", agencyCode),
		})
		return
	}

	var req dto.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid import request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	rows := make([]domain.EquipmentRecord, len(req.Rows))
	for i, row := range req.Rows {
		rows[i] = importRowToRecord(req.IDContact, row)
	}

	force := c.Query("force") == "true"

	partition, err := h.deduper.CheckDuplicates(c.Request.Context(), agencyCode, req.IDContact, req.Annee, rows)
	if err != nil {
		h.logger.Error("Duplicate check failed",
			slog.String("agency", agencyCode),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to check duplicates",
		})
		return
	}

	toInsert := partition.Clean
	if force {
		toInsert = rows
	}

	response := dto.ImportResponse{}
	for _, dup := range partition.Duplicates {
		response.Duplicates = append(response.Duplicates,
			fmt.Sprintf("equipment %s (%s) already exists for contact %d", dup.NumeroEquipement, dup.Visite, req.IDContact))
	}

	if len(toInsert) > 0 {
		result, err := h.importer.InsertBatch(c.Request.Context(), agencyCode, toInsert)
		if err != nil {
			// Only an invalid agency reaches here, and it was checked above.
			h.logger.Error("Batch insert rejected", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		response.Inserted = result.Inserted
		response.Errors = append(response.Errors, result.Errors...)
	}

	if total, err := h.importer.CountByContact(c.Request.Context(), agencyCode, req.IDContact); err == nil {
		response.Total = total
	} else {
		h.logger.Warn("Failed to count equipment after import",
			slog.String("agency", agencyCode),
			slog.Int("id_contact", req.IDContact),
			slog.String("error", err.Error()),
		)
	}

	h.logger.Info("Equipment import complete",
		slog.String("agency", tenant.Normalize(agencyCode)),
		slog.Int("id_contact", req.IDContact),
		slog.Int("received", len(rows)),
		slog.Int("inserted", response.Inserted),
		slog.Int("duplicates", len(response.Duplicates)),
		slog.Bool("force", force),
	)

	c.JSON(http.StatusOK, response)
}

// ReceiveWebhook handles POST /api/v1/webhooks/kizeo
//
// The push payload is validated and forwarded to the broker as a form event;
// job creation happens on the consumer side so webhook delivery stays fast
// and retry-safe.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	var req dto.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid webhook body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if !tenant.IsValid(req.AgencyCode) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unknown agency code %q", req.AgencyCode),
		})
		return
	}

	body, err := json.Marshal(req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to encode event",
		})
		return
	}

	if err := h.publisher.PublishWithRetry(c.Request.Context(), body, "application/json"); err != nil {
		h.logger.Error("Failed to publish form event",
			slog.Int("form_id", req.FormID),
			slog.Int("data_id", req.DataID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Event intake temporarily unavailable",
		})
		return
	}

	h.logger.Info("Webhook accepted",
		slog.String("agency", req.AgencyCode),
		slog.Int("form_id", req.FormID),
		slog.Int("data_id", req.DataID),
		slog.Int("medias", len(req.Medias)),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"status": "accepted",
	})
}

// ArchiveEquipment handles POST /api/v1/agencies/:agency/equipments/:equipment_id/archive
//
// Archival is the soft-delete for equipment rows; archived rows drop out of
// counts and duplicate checks but stay queryable for history.
func (h *Handler) ArchiveEquipment(c *gin.Context) {
	agencyCode := c.Param("agency")
	if !tenant.IsValid(agencyCode) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unknown agency code %q", agencyCode),
		})
		return
	}

	equipmentID, err := strconv.ParseInt(c.Param("equipment_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "equipment_id must be an integer",
		})
		return
	}

	if err := h.importer.Archive(c.Request.Context(), agencyCode, equipmentID); err != nil {
		h.logger.Error("Failed to archive equipment",
			slog.String("agency", agencyCode),
			slog.Int64("equipment_id", equipmentID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "archived",
		"equipment_id": equipmentID,
	})
}

func importRowToRecord(defaultContact int, row dto.ImportRow) domain.EquipmentRecord {
	idContact := row.IDContact
	if idContact == 0 {
		idContact = defaultContact
	}

	return domain.EquipmentRecord{
		IDContact:          idContact,
		NumeroEquipement:   row.NumeroEquipement,
		LibelleEquipement:  row.LibelleEquipement,
		Visite:             row.Visite,
		Annee:              row.Annee,
		Marque:             row.Marque,
		ModeFonctionnement: row.ModeFonctionnement,
		RepereSiteClient:   row.RepereSiteClient,
		IsHorsContrat:      row.IsHorsContrat,
		IsArchive:          row.IsArchive,
	}
}
