package requestdata

import (
	"context"

	"github.com/google/uuid"
)

var requestDataKey = struct{}{}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey)
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}

// RequestData carries per-request identity: the acting principal (fills
// requested_by / reviewed_by audit fields) and the workspace the request
// is scoped to.
type RequestData struct {
	TokenString string
	ActorID     string
	WorkspaceID uuid.UUID
}
