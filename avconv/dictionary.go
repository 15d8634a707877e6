package avconv

import (
	"context"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/videoinput/internal"
	"github.com/xaionaro-go/videoinput/logger"
	"github.com/xaionaro-go/videoinput/types"
)

func DictionaryItemsToAstiav(
	ctx context.Context,
	s types.DictionaryItems,
) *astiav.Dictionary {
	if len(s) == 0 {
		return nil
	}

	result := astiav.NewDictionary()
	internal.SetFinalizerFree(ctx, result)
	for _, opt := range s.Deduplicate() {
		logger.Tracef(ctx, "setting custom option: %s=%s", opt.Key, opt.Value)
		result.Set(opt.Key, opt.Value, 0)
	}
	return result
}
