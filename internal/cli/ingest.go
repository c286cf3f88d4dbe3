package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agenttrail/agenttrail/internal/models"
	"github.com/agenttrail/agenttrail/internal/normalizer"
	"github.com/agenttrail/agenttrail/internal/writer"
)

// newIngestCmd is the agent hook entry point: one JSON event on stdin,
// one invocation per event. Empty input is a silent no-op; a malformed
// payload is recorded in the side error log and fails the command. Sink
// errors after a valid decode never fail the caller, so a disk problem
// cannot block the agent.
func newIngestCmd() *cobra.Command {
	var action string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Read one raw event from stdin and append it to the log streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			payload, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				writer.LogIngestError(cfg.Log.Dir, fmt.Sprintf("read stdin: %v", err))
				return fmt.Errorf("read stdin: %w", err)
			}
			if len(bytes.TrimSpace(payload)) == 0 {
				return nil
			}

			var raw models.RawEvent
			if err := json.Unmarshal(payload, &raw); err != nil {
				writer.LogIngestError(cfg.Log.Dir, fmt.Sprintf("decode event: %v", err))
				return fmt.Errorf("decode event: %w", err)
			}
			if action != "" {
				raw.AgentActionName = action
			}

			nz := normalizer.New(normalizer.WithMaxContentLength(cfg.Log.MaxContentLength))
			entry := nz.Normalize(&raw)

			w, err := writer.New(writer.Config{
				Dir:           cfg.Log.Dir,
				BufferSize:    cfg.Log.BufferSize,
				FlushInterval: cfg.Log.FlushInterval(),
				FailurePolicy: writer.FailurePolicy(cfg.Log.FlushFailurePolicy),
			}, nil)
			if err != nil {
				writer.LogIngestError(cfg.Log.Dir, fmt.Sprintf("open writer: %v", err))
				return nil
			}
			// Close drains every buffer; the hook process is one-shot.
			defer w.Close()

			if err := w.Write(entry); err != nil {
				writer.LogIngestError(cfg.Log.Dir, fmt.Sprintf("write event: %v", err))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "override the event's agent_action_name")
	return cmd
}
