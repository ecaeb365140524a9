package platform

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID returns a random UUID used as a row primary key.
func NewID() string {
	return uuid.New().String()
}

// WorkflowID returns a unique Temporal workflow ID for one run of kind
// against subject, e.g. "execute-rule-<rule id>-<uuid>". Manual runs of the
// same rule never collide.
func WorkflowID(kind, subject string) string {
	return fmt.Sprintf("%s-%s-%s", kind, subject, uuid.New().String())
}
