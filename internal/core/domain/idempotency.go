package domain

import "github.com/google/uuid"

// BuildIdempotencyKey scopes a merchant-supplied external reference by resource kind.
func BuildIdempotencyKey(merchantID uuid.UUID, kind ResourceType, externalReference string) string {
	return merchantID.String() + ":" + string(kind) + ":" + externalReference
}
