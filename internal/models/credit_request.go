package models

import "time"

type CreditRequestStatus string

const (
	CreditRequestPending  CreditRequestStatus = "pending"
	CreditRequestApproved CreditRequestStatus = "approved"
	CreditRequestRejected CreditRequestStatus = "rejected"
)

// CreditRequest is a user-submitted top-up claim with an uploaded proof.
// Once reviewed it is immutable; approval increments the user's balance in
// the same transaction that flips the status.
type CreditRequest struct {
	ID          int64               `json:"id"`
	UserID      int64               `json:"user_id"`
	AmountCents int64               `json:"amount_cents"`
	ProofURL    string              `json:"proof_url"`
	Status      CreditRequestStatus `json:"status"`
	ReviewNote  string              `json:"review_note,omitempty"`
	ReviewedBy  *int64              `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time          `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}
