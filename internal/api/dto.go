package api

import "time"

// ProofCreatedDTO is returned after a submission produced (or found) a bundle.
type ProofCreatedDTO struct {
	Fingerprint string `json:"fingerprint"`
}

// ImportAcceptedDTO is returned when a file was queued.
type ImportAcceptedDTO struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

// ProofDTO describes a stored bundle.
type ProofDTO struct {
	Fingerprint string   `json:"fingerprint"`
	Artifacts   []string `json:"artifacts"`
}

// ProofListDTO lists stored bundles.
type ProofListDTO struct {
	Fingerprints []string `json:"fingerprints"`
	Count        int      `json:"count"`
}

// StatusDTO is the API representation of the service status
type StatusDTO struct {
	Proofs              int       `json:"proofs"`
	IdentityFingerprint string    `json:"identity_fingerprint,omitempty"`
	Notaries            []string  `json:"notaries"`
	StartedAt           time.Time `json:"started_at"`
}
