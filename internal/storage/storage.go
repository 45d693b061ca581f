package storage

import (
	"context"

	"traceScope/internal/model"
)

// Storage defines a sink for decoded actions, the failures met while
// decoding, and the token metadata the actions reference.
type Storage interface {
	PutActionBatch(ctx context.Context, actions []model.ActionRecord) error
	PutDecodeErrors(ctx context.Context, errs []model.DecodeError) error
	PutTokens(ctx context.Context, tokens []model.TokenMeta) error
}
