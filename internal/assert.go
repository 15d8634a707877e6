package internal

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// Assert panics if mustBeTrue is false. The panic goes through the logger
// first, so the message carries the contextual fields (e.g. "input_id").
func Assert(
	ctx context.Context,
	mustBeTrue bool,
	extraArgs ...any,
) {
	if mustBeTrue {
		return
	}

	logger.Panic(ctx, "assertion failed", extraArgs)
	// a no-op default logger does not panic by itself
	panic(fmt.Sprintf("assertion failed: %v", extraArgs))
}
