// File: cmd/output.go
package cmd

import (
	"context"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/xhs-cli/internal/observability"
	"github.com/xkilldash9x/xhs-cli/internal/xhs"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// workflow is one call into the xhs service.
type workflow func(ctx context.Context, svc *xhs.Service) xhs.Result

// runWorkflow builds the components, runs fn, prints its result and tears
// the browser down again, also when the context was canceled by a signal.
func runWorkflow(cmd *cobra.Command, fn workflow) error {
	ctx := cmd.Context()
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	logger := observability.GetLogger()

	components, err := componentFactory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown(ctx)

	res := fn(ctx, components.Service)
	logger.Debug("Workflow finished.",
		zap.String("operation", res.Operation),
		zap.String("run_id", res.RunID),
		zap.Bool("success", res.Success),
		zap.Duration("duration", res.Duration()),
	)

	if err := writeResult(cmd.OutOrStdout(), res, compact); err != nil {
		return err
	}
	if !res.Success {
		return ErrResultFailed
	}
	return nil
}

// writeResult prints res as JSON followed by a newline.
func writeResult(w io.Writer, res xhs.Result, compact bool) error {
	var (
		data []byte
		err  error
	)
	if compact {
		data, err = json.Marshal(res)
	} else {
		data, err = json.MarshalIndent(res, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
