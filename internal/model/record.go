package model

import (
	"time"
)

// Record type vocabulary
const (
	RecordTypeLabResult    = "lab-result"
	RecordTypePrescription = "prescription"
	RecordTypeImaging      = "imaging"
	RecordTypeConsultation = "consultation"
	RecordTypeVaccination  = "vaccination"
	RecordTypeOther        = "other"
)

// MedicalRecord holds the metadata of one uploaded file. FileHash is a real
// SHA-256 digest of the uploaded bytes; TransactionHash is a synthetic
// Keccak-256 identifier with no ledger behind it and is never verified.
type MedicalRecord struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	RecordType      string    `json:"record_type"`
	RecordDate      time.Time `json:"record_date"`
	PatientAddress  string    `json:"patient_address"`
	FilePath        string    `json:"-"`
	FileName        string    `json:"file_name"`
	FileSize        int64     `json:"file_size"`
	MimeType        string    `json:"mime_type"`
	FileHash        string    `json:"file_hash"`
	TransactionHash string    `json:"transaction_hash"`
	CreatedAt       time.Time `json:"created_at"`
}

// CreateRecordRequest carries the multipart form fields of an upload. The
// file part itself is handled separately by the handler.
type CreateRecordRequest struct {
	Title          string `form:"title" binding:"required,max=255"`
	RecordType     string `form:"recordType" binding:"required,oneof=lab-result prescription imaging consultation vaccination other"`
	RecordDate     string `form:"recordDate" binding:"required"`
	PatientAddress string `form:"patientAddress" binding:"required,walletaddr"`
}
