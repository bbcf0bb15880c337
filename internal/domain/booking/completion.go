package booking

import (
	"fmt"
	"time"
)

// Completion holds the evidence collected when a job is finished.
type Completion struct {
	BeforePhotos      []string  `json:"before_photos" bson:"before_photos"`
	AfterPhotos       []string  `json:"after_photos" bson:"after_photos"`
	CustomerSignature string    `json:"customer_signature" bson:"customer_signature"`
	Notes             string    `json:"completion_notes" bson:"completion_notes"`
	CompletedAt       time.Time `json:"completed_at" bson:"completed_at"`
}

// Validate requires photos on both sides of the job and a signature.
func (c Completion) Validate() error {
	if len(c.BeforePhotos) == 0 {
		return fmt.Errorf("before photos are required")
	}
	if len(c.AfterPhotos) == 0 {
		return fmt.Errorf("after photos are required")
	}
	if c.CustomerSignature == "" {
		return fmt.Errorf("customer signature is required")
	}
	return nil
}
