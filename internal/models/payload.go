package models

import "time"

// ExternalSignalPayload is the minimal, de-identified description of a help
// signal sent to a partner. It must never carry family, child, or parent
// identifiers, contact info, screenshots, or activity content; the exclusion
// validator enforces this before every delivery.
type ExternalSignalPayload struct {
	SignalID         string    `json:"signalId"`
	ChildAge         int       `json:"childAge"`
	HasSharedCustody bool      `json:"hasSharedCustody"`
	SignalTimestamp  time.Time `json:"signalTimestamp"`
	Jurisdiction     string    `json:"jurisdiction"`
	DevicePlatform   string    `json:"devicePlatform"`
}

// EncryptedSignalPackage is the hybrid-encrypted form of an
// ExternalSignalPayload for one partner key. It is transient: transmitted
// once and never persisted.
type EncryptedSignalPackage struct {
	EncryptedKey     string `json:"encryptedKey"`     // base64, RSA-OAEP wrapped
	EncryptedPayload string `json:"encryptedPayload"` // base64, AES-GCM ciphertext
	IV               string `json:"iv"`               // base64 GCM nonce
	KeyAlgorithm     string `json:"keyAlgorithm"`
	PayloadAlgorithm string `json:"payloadAlgorithm"`
	PartnerID        string `json:"partnerId"`
	PublicKeyHash    string `json:"publicKeyHash"` // hex SHA-256 of SPKI DER
}
