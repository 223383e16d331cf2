package console

import (
	"context"
	"os"

	"github.com/schollz/progressbar/v3"
)

type progressKey struct{}

// WithProgress enables or disables progress bars for operations using ctx
func WithProgress(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, progressKey{}, enabled)
}

// NewProgressBar returns a byte-counting progress bar. The bar stays invisible unless progress
// output was enabled through WithProgress and we're not running on CI.
func NewProgressBar(ctx context.Context, length int64, desc string) *progressbar.ProgressBar {
	enabled, _ := ctx.Value(progressKey{}).(bool)
	if !enabled || os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}
