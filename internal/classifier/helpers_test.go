package classifier

import (
	"context"

	"phishbox/pkg/trace"
)

func contextWithTrace(id string) context.Context {
	return trace.WithContext(context.Background(), id)
}
