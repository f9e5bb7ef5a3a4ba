// Package api exposes the claim intake flow over HTTP with gin.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Armour007/parcelclaims-backend/internal/claims"
	"github.com/Armour007/parcelclaims-backend/internal/intake"
	"github.com/Armour007/parcelclaims-backend/internal/ledger"
)

// Client-facing messages.
const (
	MsgClaimCreated = "Заявка успешно создана"
	MsgClaimExists  = "Заявка уже существует"
	MsgBadRequest   = "Некорректные данные запроса"
	MsgInternal     = "Внутренняя ошибка сервера"
)

// ClaimService is the part of intake.Service the handlers call.
type ClaimService interface {
	CreateClaim(ctx context.Context, in claims.ClaimInput) (*intake.Created, error)
	RenderPreview(ctx context.Context, in claims.ClaimInput) ([]byte, error)
	CheckEligibility(ctx context.Context, phone, trackNumber string) intake.EligibilityResult
	BankName(ctx context.Context, bic string) intake.BankResult
}

type Handlers struct {
	svc   ClaimService
	ready func(context.Context) error
	log   logrus.FieldLogger
}

// NewHandlers wires the handlers. ready is probed by /readyz and may be nil.
func NewHandlers(svc ClaimService, ready func(context.Context) error, log logrus.FieldLogger) *Handlers {
	if log == nil {
		log = logrus.StandardLogger()
	}
	registerValidators()
	return &Handlers{svc: svc, ready: ready, log: log}
}

type checkParcelRequest struct {
	Phone       string `json:"phone" binding:"required"`
	TrackNumber string `json:"trackNumber" binding:"required,notblank"`
}

type bankNameRequest struct {
	BIC string `json:"bic" binding:"required,max=16"`
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	body := gin.H{"error": MsgBadRequest}
	if fields := fieldErrors(err); len(fields) > 0 {
		body["fields"] = fields
	}
	h.log.WithError(err).WithField("request_id", c.GetString("requestID")).Debug("rejected request body")
	c.JSON(http.StatusBadRequest, body)
}

// CheckParcel handles POST /api/checkParcel.
func (h *Handlers) CheckParcel(c *gin.Context) {
	var req checkParcelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.CheckEligibility(c.Request.Context(), req.Phone, req.TrackNumber))
}

// CreateClaim handles POST /api/createClaim.
func (h *Handlers) CreateClaim(c *gin.Context) {
	var in claims.ClaimInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, err)
		return
	}
	out, err := h.svc.CreateClaim(c.Request.Context(), in)
	if dup, ok := ledger.IsDuplicate(err); ok {
		c.JSON(http.StatusConflict, gin.H{
			"error":       MsgClaimExists,
			"claimId":     dup.ID,
			"claimNumber": dup.ClaimNumber,
			"status":      dup.Status,
			"createdAt":   dup.CreatedAt.UTC().Format(time.RFC3339),
		})
		return
	}
	if errors.Is(err, ledger.ErrEmptyKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgBadRequest, "fields": []string{"trackNumber"}})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": MsgInternal})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"message":     MsgClaimCreated,
		"claimId":     out.Claim.ID,
		"claimNumber": out.Claim.ClaimNumber,
		"createdAt":   out.Claim.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// PreviewClaim handles POST /api/claims/preview. Nothing is stored.
func (h *Handlers) PreviewClaim(c *gin.Context) {
	var in claims.ClaimInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, err)
		return
	}
	doc, err := h.svc.RenderPreview(c.Request.Context(), in)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": MsgInternal})
		return
	}
	c.Header("Content-Disposition", `inline; filename="preview.pdf"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}

// GetBankName handles POST /api/getBankName.
func (h *Handlers) GetBankName(c *gin.Context) {
	var req bankNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.BankName(c.Request.Context(), req.BIC))
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports 503 until the ledger answers a ping.
func (h *Handlers) Ready(c *gin.Context) {
	if h.ready == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 300*time.Millisecond)
	defer cancel()
	if err := h.ready(ctx); err != nil {
		h.log.WithError(err).Warn("readiness probe failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
