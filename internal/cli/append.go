package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/anchorage/internal/anchorid"
	"github.com/roach88/anchorage/internal/ar"
)

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	Fallback string // "x,y,z"
	Legacy   bool
}

// AppendResult is the append command payload.
type AppendResult struct {
	Index  uint64 `json:"index"`
	ID     string `json:"id"`
	Legacy bool   `json:"legacy,omitempty"`
}

func (r AppendResult) String() string {
	layout := "canonical"
	if r.Legacy {
		layout = "legacy"
	}
	return fmt.Sprintf("appended %s at index %d (%s layout)", r.ID, r.Index, layout)
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append <identifier>",
		Short: "Append an anchor record",
		Long: `Append a record for an anchor identifier to the configured store.

The identifier must be the 36-character hyphenated form. --legacy writes
the pre-canonical low/high decimal fields instead, for migration testing.

Examples:
  anchorctl append 04030201-0605-0807-090a-0b0c0d0e0f10
  anchorctl append 04030201-0605-0807-090a-0b0c0d0e0f10 --fallback 1,0,2.5
  anchorctl append 04030201-0605-0807-090a-0b0c0d0e0f10 --legacy`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Fallback, "fallback", "", "fallback coordinate as x,y,z")
	cmd.Flags().BoolVar(&opts.Legacy, "legacy", false, "write the legacy low/high identifier fields")

	return cmd
}

func runAppend(opts *AppendOptions, text string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	id, err := anchorid.Decode(text)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeIdentifier, "invalid identifier", err, nil)
	}

	var fallback *ar.Vec3
	if opts.Fallback != "" {
		v, err := parseVec3(opts.Fallback)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeArgument, "invalid --fallback", err, nil)
		}
		fallback = &v
	}

	s, err := openSession(opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer s.Close()

	var index uint64
	if opts.Legacy {
		index, err = s.store.AppendLegacy(cmd.Context(), id, fallback)
	} else {
		index, err = s.store.Append(cmd.Context(), id, fallback)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to append record", err, nil)
	}

	s.logger.Info("record appended", "index", index, "id", id.String(), "legacy", opts.Legacy)
	return f.Success(AppendResult{Index: index, ID: id.String(), Legacy: opts.Legacy})
}

// parseVec3 parses "x,y,z".
func parseVec3(s string) (ar.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return ar.Vec3{}, fmt.Errorf("want 3 comma-separated numbers, got %d", len(parts))
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return ar.Vec3{}, fmt.Errorf("component %d: %w", i, err)
		}
		vals[i] = v
	}
	return ar.Vec3{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}
