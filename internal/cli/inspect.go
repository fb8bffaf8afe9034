package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// RecordView is one record slot as printed by inspect.
type RecordView struct {
	Index    uint64      `json:"index"`
	ID       string      `json:"id,omitempty"`
	Fallback *[3]float64 `json:"fallback,omitempty"`
	Legacy   bool        `json:"legacy,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// InspectResult is the inspect command payload.
type InspectResult struct {
	Backend   string       `json:"backend"`
	Namespace string       `json:"namespace,omitempty"`
	Count     uint64       `json:"count"`
	Records   []RecordView `json:"records"`
}

func (r InspectResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d record(s) in %s store", r.Count, r.Backend)
	if r.Namespace != "" {
		fmt.Fprintf(&b, " (namespace %q)", r.Namespace)
	}
	for _, rec := range r.Records {
		b.WriteString("\n")
		if rec.Error != "" {
			fmt.Fprintf(&b, "  [%d] unreadable: %s", rec.Index, rec.Error)
			continue
		}
		fmt.Fprintf(&b, "  [%d] %s", rec.Index, rec.ID)
		if rec.Fallback != nil {
			fmt.Fprintf(&b, " fallback=(%g, %g, %g)", rec.Fallback[0], rec.Fallback[1], rec.Fallback[2])
		}
		if rec.Legacy {
			b.WriteString(" legacy")
		}
	}
	return b.String()
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "List persisted anchor records",
		Long: `List every record slot in the configured record store.

Unreadable slots (malformed identifier, missing fields) are listed with
the reason instead of being hidden.

Examples:
  anchorctl inspect --store ./anchors.db
  anchorctl inspect --backend badger --store ./anchors --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, cmd)
		},
	}
}

func runInspect(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	s, err := openSession(opts, f)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.store.List(cmd.Context())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read records", err, nil)
	}

	result := InspectResult{
		Backend:   s.cfg.Store.Backend,
		Namespace: s.cfg.Store.Namespace,
		Count:     uint64(len(entries)),
		Records:   make([]RecordView, 0, len(entries)),
	}
	for _, e := range entries {
		view := RecordView{Index: e.Index}
		if e.Err != nil {
			view.Error = e.Err.Error()
		} else {
			view.ID = e.Record.ID.String()
			view.Legacy = e.Record.Legacy
			if fb := e.Record.Fallback; fb != nil {
				view.Fallback = &[3]float64{fb.X, fb.Y, fb.Z}
			}
		}
		result.Records = append(result.Records, view)
	}

	f.VerboseLog("read %d record slot(s)", len(entries))
	return f.Success(result)
}
