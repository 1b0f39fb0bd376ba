package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/cyderes/dummy-etl/internal/config"
	"github.com/cyderes/dummy-etl/internal/storage"
)

var (
	// storageFactory opens the configured destination. It can be overridden for testing purposes.
	storageFactory = func(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
		return storage.NewStorage(ctx, cfg)
	}
)

// handleError will do custom print error handling based on the type of error received.
// It returns the original error so the process exits with a non zero code.
func handleError(cmd *cobra.Command, err error) error {
	switch {
	case errors.Is(err, config.ErrInvalidConfig):
		cmd.PrintErrln(err)
		_ = cmd.Usage() // do not check error as we cannot do much about it
		return err
	default:
		cmd.PrintErrln(err)
		return err
	}
}
