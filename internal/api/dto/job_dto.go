package dto

// CreateJobRequest starts a new job for a paying sender.
type CreateJobRequest struct {
	SenderAddress string `json:"sender_address" binding:"required"`
	JobInput      string `json:"job_input" binding:"required"`
}

// CreateJobResponse returns the new job's identity.
type CreateJobResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// RequestPaymentRequest asks for the unsigned payment group for a job.
type RequestPaymentRequest struct {
	SenderAddress string `json:"sender_address" binding:"required"`
}

// RequestPaymentResponse carries the unsigned group for the client to sign.
// Each group member is base64-encoded msgpack.
type RequestPaymentResponse struct {
	JobID             string   `json:"job_id"`
	UnsignedGroupTxns []string `json:"unsigned_group_txns"`
	TxnIDs            []string `json:"txn_ids"`
	PaymentRequired   uint64   `json:"payment_required"`
}

// SubmitPaymentRequest reports the transaction IDs the client paid with.
type SubmitPaymentRequest struct {
	TxnIDs []string `json:"txn_ids" binding:"required"`
}

// SubmitPaymentResponse returns the bearer token for the authorized job.
type SubmitPaymentResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	AccessToken string `json:"access_token"`
}

// JobStatusResponse reports job progress. Output is null unless the caller
// presented a valid access token for this job.
type JobStatusResponse struct {
	JobID       string  `json:"job_id"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	CompletedAt *string `json:"completed_at"`
	Output      *string `json:"output"`
	Error       *string `json:"error,omitempty"`
}
