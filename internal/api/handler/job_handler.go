package handler

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nickthelegend/0rca-agent-template/internal/api/dto"
	"github.com/nickthelegend/0rca-agent-template/internal/domain"
	"github.com/nickthelegend/0rca-agent-template/internal/payment"
	"github.com/nickthelegend/0rca-agent-template/internal/token"
)

// CreateJob handles POST /api/v1/jobs
// Creates a new job in status queued. No side effects persist when the
// sender address fails validation.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "sender_address and job_input required",
		})
		return
	}

	if _, err := types.DecodeAddress(req.SenderAddress); err != nil {
		h.logger.Error("Invalid sender address",
			slog.String("sender_address", req.SenderAddress),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid sender address",
		})
		return
	}

	inputHash := sha256.Sum256([]byte(req.JobInput))

	job := &domain.Job{
		JobID:         uuid.New().String(),
		JobInput:      req.JobInput,
		JobInputHash:  hex.EncodeToString(inputHash[:]),
		SenderAddress: req.SenderAddress,
		Status:        domain.JobStatusQueued,
		CreatedAt:     time.Now(),
	}

	if err := h.store.CreateJob(c.Request.Context(), job); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to create job",
		})
		return
	}

	h.metrics.JobsCreated.Inc()
	h.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.String("sender", job.SenderAddress),
	)

	c.JSON(http.StatusCreated, dto.CreateJobResponse{
		JobID:     job.JobID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// RequestPayment handles POST /api/v1/jobs/:job_id/payment
// Builds the unsigned payment group for a queued job, records the expected
// transaction IDs and moves the job to payment_processing.
func (h *JobHandler) RequestPayment(c *gin.Context) {
	jobID := c.Param("job_id")

	var req dto.RequestPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "sender_address required",
		})
		return
	}

	if _, err := types.DecodeAddress(req.SenderAddress); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid sender address",
		})
		return
	}

	job, err := h.store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	if req.SenderAddress != job.SenderAddress {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "sender address does not match job",
		})
		return
	}

	if job.Status != domain.JobStatusQueued {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "payment already requested",
			"status": job.Status,
		})
		return
	}

	group, err := h.gateway.BuildPaymentGroup(c.Request.Context(), job.SenderAddress, job.JobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSenderAddress):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sender address"})
		case errors.Is(err, domain.ErrLedgerUnavailable):
			h.logger.Error("Ledger node unavailable", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger node unavailable, retry later"})
		default:
			h.logger.Error("Failed to build payment group", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build payment group"})
		}
		return
	}

	if err := h.store.SetPaymentProcessing(c.Request.Context(), job.JobID, group.TxnIDs); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Lost a race with a concurrent request for the same job.
			c.JSON(http.StatusConflict, gin.H{"error": "payment already requested"})
			return
		}
		h.logger.Error("Failed to record expected txn ids", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record payment request"})
		return
	}

	unsigned := make([]string, 0, len(group.UnsignedTxns))
	for _, raw := range group.UnsignedTxns {
		unsigned = append(unsigned, base64.StdEncoding.EncodeToString(raw))
	}

	c.JSON(http.StatusOK, dto.RequestPaymentResponse{
		JobID:             job.JobID,
		UnsignedGroupTxns: unsigned,
		TxnIDs:            group.TxnIDs,
		PaymentRequired:   h.gateway.PaymentAmount(),
	})
}

// SubmitPayment handles POST /api/v1/jobs/:job_id/payment/submit
// Verifies the claimed transaction IDs against the indexer, authorizes the
// job, issues the access token and queues the job for execution. A repeated
// valid submission returns the already-issued token and the current status.
func (h *JobHandler) SubmitPayment(c *gin.Context) {
	jobID := c.Param("job_id")

	var req dto.SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "txn_ids required",
		})
		return
	}

	ctx := c.Request.Context()

	if err := h.verifier.Verify(ctx, jobID, req.TxnIDs); err != nil {
		var verr *payment.VerificationError
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		case errors.As(err, &verr):
			h.metrics.PaymentVerifications.WithLabelValues("rejected").Inc()
			h.logger.Warn("Payment rejected",
				slog.String("job_id", jobID),
				slog.String("reason", verr.Reason),
			)
			c.JSON(http.StatusPaymentRequired, gin.H{"error": verr.Reason})
		default:
			h.metrics.PaymentVerifications.WithLabelValues("error").Inc()
			h.logger.Error("Payment verification error", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger indexer unavailable, retry later"})
		}
		return
	}

	h.metrics.PaymentVerifications.WithLabelValues("accepted").Inc()

	issueCtx := token.IssueContext{
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	if err := h.store.AuthorizeJob(ctx, jobID); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Already authorized by an earlier submission; report the
			// current state with the existing token instead of minting or
			// dispatching anything.
			h.respondAlreadyAuthorized(c, jobID)
			return
		}
		h.logger.Error("Failed to authorize job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authorize job"})
		return
	}

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.logger.Error("Failed to reload job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	issueCtx.Address = job.SenderAddress

	if err := h.store.RecordReceipt(ctx, jobID, req.TxnIDs); err != nil {
		h.logger.Warn("Failed to record receipt", slog.String("error", err.Error()))
	}
	_ = h.store.AppendJobLog(ctx, jobID, "info", "payment verified, job authorized")

	accessToken, err := h.tokens.Issue(ctx, jobID, issueCtx)
	if err != nil {
		h.logger.Error("Failed to issue access token", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue access token"})
		return
	}

	h.publishDispatch(c, jobID)

	c.JSON(http.StatusOK, dto.SubmitPaymentResponse{
		JobID:       jobID,
		Status:      domain.JobStatusRunning,
		AccessToken: accessToken,
	})
}

// respondAlreadyAuthorized answers a duplicate valid submission.
func (h *JobHandler) respondAlreadyAuthorized(c *gin.Context, jobID string) {
	ctx := c.Request.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}

	accessToken, err := h.tokens.ExistingForJob(ctx, jobID)
	if err != nil {
		h.logger.Error("No token for authorized job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusConflict, gin.H{
			"error":  "job already authorized",
			"status": job.Status,
		})
		return
	}

	c.JSON(http.StatusOK, dto.SubmitPaymentResponse{
		JobID:       jobID,
		Status:      job.Status,
		AccessToken: accessToken,
	})
}

// publishDispatch queues the authorized job for the worker service. A
// publish failure is not fatal: the job stays running with no dispatch
// claim and the recovery poller picks it up.
func (h *JobHandler) publishDispatch(c *gin.Context, jobID string) {
	body, err := json.Marshal(domain.JobMessage{JobID: jobID})
	if err != nil {
		h.logger.Error("Failed to marshal job message", slog.String("error", err.Error()))
		return
	}

	if err := h.queue.PublishWithRetry(c.Request.Context(), body, "application/json"); err != nil {
		h.logger.Warn("Failed to publish dispatch message, poller will recover",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// GetJobStatus handles GET /api/v1/jobs/:job_id
// Status and timestamps are visible unauthenticated; output requires the
// job's access token. A token for a different job is rejected outright.
func (h *JobHandler) GetJobStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	resp := dto.JobStatusResponse{
		JobID:     job.JobID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
	}
	if job.CompletedAt.Valid {
		completed := job.CompletedAt.Time.UTC().Format(time.RFC3339)
		resp.CompletedAt = &completed
	}

	if tokenValue := bearerToken(c); tokenValue != "" {
		err := h.tokens.Validate(c.Request.Context(), jobID, tokenValue, token.IssueContext{
			ClientIP:  c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid access token"})
			return
		}

		if job.Output.Valid {
			output := job.Output.String
			resp.Output = &output
		}
		if job.Status == domain.JobStatusFailed && job.ErrorMessage.Valid {
			errMsg := job.ErrorMessage.String
			resp.Error = &errMsg
		}
	}

	c.JSON(http.StatusOK, resp)
}

// bearerToken extracts the access token from the Authorization header or
// the token query parameter.
func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Query("token")
}
