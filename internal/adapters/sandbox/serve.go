package sandbox

import (
	"context"
	"encoding/json"
	"io"

	"go.trai.ch/zerr"

	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports"
)

// Serve reads one test case as JSON from r, runs it on sb and writes the result as JSON to w.
// It backs the hidden sandbox command that the process runner executes.
func Serve(ctx context.Context, r io.Reader, w io.Writer, sb ports.Sandbox) error {
	var tc domain.TestCase
	if err := json.NewDecoder(r).Decode(&tc); err != nil {
		return zerr.Wrap(err, domain.ErrSandboxFailed.Error())
	}

	result, err := sb.Run(ctx, tc)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		return zerr.Wrap(err, domain.ErrSandboxFailed.Error())
	}
	return nil
}
