package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/datalogger/internal/engine"
	"github.com/roach88/datalogger/internal/ir"
	"github.com/roach88/datalogger/internal/queryir"
	"github.com/roach88/datalogger/internal/store"
)

// CapturesOptions holds flags shared by the captures subcommands.
type CapturesOptions struct {
	*RootOptions
	Database string
	Data     bool   // show: include channel bytes

	// list filters
	Plan    string
	Mode    string
	State   string
	Overrun bool
	Limit   int
	Newest  bool
}

// ChannelView is one channel of a shown capture.
type ChannelView struct {
	ir.CaptureChannel
	Hex string `json:"hex,omitempty"`
}

// CaptureView is the show output: the archived record without its raw
// payloads, plus the decoded medium header in mem mode.
type CaptureView struct {
	ID            string         `json:"id"`
	Seq           int64          `json:"seq"`
	PlanName      string         `json:"plan_name"`
	PlanHash      string         `json:"plan_hash"`
	Mode          string         `json:"mode"`
	FinalState    string         `json:"final_state"`
	Overrun       bool           `json:"overrun"`
	Ticks         uint64         `json:"ticks"`
	TimeBase      uint32         `json:"time_base"`
	Bytes         int            `json:"bytes"`
	DataDigest    string         `json:"data_digest"`
	EngineVersion string         `json:"engine_version"`
	Header        *engine.Header `json:"header,omitempty"`
	Channels      []ChannelView  `json:"channels"`
}

// NewCapturesCommand creates the captures command group.
func NewCapturesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CapturesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "captures",
		Short: "Inspect archived captures",
		Long: `List, show and delete captures archived by the run command.

Examples:
  datalogger captures list --db ./captures.db
  datalogger captures list --db ./captures.db --plan bench
  datalogger captures list --db ./captures.db --mode mem --overrun --limit 5
  datalogger captures show --db ./captures.db --data <id>
  datalogger captures delete --db ./captures.db <id>`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List captures in archive order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapturesList(opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.Plan, "plan", "", "only captures of this plan")
	list.Flags().StringVar(&opts.Mode, "mode", "", "only captures in this mode (ram, mem)")
	list.Flags().StringVar(&opts.State, "state", "", "only captures that ended in this state")
	list.Flags().BoolVar(&opts.Overrun, "overrun", false, "only captures whose overrun flag matches")
	list.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of captures (0 for all)")
	list.Flags().BoolVar(&opts.Newest, "newest", false, "newest captures first")

	show := &cobra.Command{
		Use:           "show <id>",
		Short:         "Show one capture and its channel layout",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapturesShow(opts, args[0], cmd)
		},
	}
	show.Flags().BoolVar(&opts.Data, "data", false, "include each channel's samples as hex")

	del := &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a capture",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapturesDelete(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

// openArchive opens the database, reporting failure through formatter.
func openArchive(opts *CapturesOptions, formatter *OutputFormatter) (*store.Store, error) {
	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// archiveError reports a store failure. A missing capture is a command
// error like any other, with its own code.
func archiveError(formatter *OutputFormatter, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("capture %q not found", id), nil)
		return WrapExitError(ExitCommandError, "capture not found", err)
	}
	_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
	return WrapExitError(ExitCommandError, "archive error", err)
}

func runCapturesList(opts *CapturesOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	st, err := openArchive(opts, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.Limit < 0 {
		_ = formatter.Error(ErrCodeGeneric, "--limit must not be negative", nil)
		return NewExitError(ExitCommandError, "invalid limit")
	}
	list, err := st.QueryCaptures(context.Background(), listQuery(opts, cmd))
	if err != nil {
		return archiveError(formatter, "", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(formatter.Writer, "No captures found.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tPLAN\tMODE\tSTATE\tOVERRUN\tBYTES")
	for _, c := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%t\t%d\n", c.Seq, c.ID, c.PlanName, c.Mode, c.FinalState, c.Overrun, c.DataLen)
	}
	return tw.Flush()
}

// listQuery builds the capture filter from the list flags. --overrun only
// filters when given, so --overrun=false selects clean captures.
func listQuery(opts *CapturesOptions, cmd *cobra.Command) queryir.Select {
	var preds []queryir.Predicate
	text := func(field queryir.Field, v string) {
		if v != "" {
			preds = append(preds, queryir.Equals{Field: field, Value: v})
		}
	}
	text(queryir.FieldPlanName, opts.Plan)
	text(queryir.FieldMode, opts.Mode)
	text(queryir.FieldFinalState, opts.State)
	if cmd.Flags().Changed("overrun") {
		preds = append(preds, queryir.Equals{Field: queryir.FieldOverrun, Value: opts.Overrun})
	}
	return queryir.Select{
		Filter: queryir.Where(preds...),
		Limit:  opts.Limit,
		Desc:   opts.Newest,
	}
}

func runCapturesShow(opts *CapturesOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	st, err := openArchive(opts, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := st.ReadCapture(context.Background(), id)
	if err != nil {
		return archiveError(formatter, id, err)
	}

	view, err := newCaptureView(c, opts.Data)
	if err != nil {
		return formatter.Fail(ExitFailure, "corrupt capture header", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(view)
	}
	return outputCaptureText(formatter, view)
}

func runCapturesDelete(opts *CapturesOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	st, err := openArchive(opts, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteCapture(context.Background(), id); err != nil {
		return archiveError(formatter, id, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]string{"deleted": id})
	}
	fmt.Fprintf(formatter.Writer, "✓ Deleted capture %s\n", id)
	return nil
}

func newCaptureView(c ir.Capture, withData bool) (CaptureView, error) {
	view := CaptureView{
		ID:            c.ID,
		Seq:           c.Seq,
		PlanName:      c.PlanName,
		PlanHash:      c.PlanHash,
		Mode:          c.Mode,
		FinalState:    c.FinalState,
		Overrun:       c.Overrun,
		Ticks:         c.Ticks,
		TimeBase:      c.TimeBase,
		Bytes:         len(c.Data),
		DataDigest:    c.DataDigest,
		EngineVersion: c.EngineVersion,
		Channels:      make([]ChannelView, 0, len(c.Channels)),
	}
	if len(c.Header) > 0 {
		var h engine.Header
		if err := h.UnmarshalBinary(c.Header); err != nil {
			return view, err
		}
		view.Header = &h
	}
	for _, ch := range c.Channels {
		cv := ChannelView{CaptureChannel: ch}
		if withData {
			cv.Hex = hex.EncodeToString(ch.Slice(c.Data))
		}
		view.Channels = append(view.Channels, cv)
	}
	return view, nil
}

func outputCaptureText(formatter *OutputFormatter, v CaptureView) error {
	w := formatter.Writer
	fmt.Fprintf(w, "Capture %s (#%d)\n", v.ID, v.Seq)
	fmt.Fprintf(w, "  plan:    %s (%s)\n", v.PlanName, v.PlanHash)
	fmt.Fprintf(w, "  mode:    %s, time base %d Hz\n", v.Mode, v.TimeBase)
	fmt.Fprintf(w, "  state:   %s after %d tick(s), overrun %t\n", v.FinalState, v.Ticks, v.Overrun)
	fmt.Fprintf(w, "  data:    %d byte(s), %s\n", v.Bytes, v.DataDigest)
	if v.Header != nil {
		fmt.Fprintf(w, "  header:  last address %d\n", v.Header.LastAddress)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tID\tVARIABLE\tWIDTH\tDIVIDER\tSAMPLES\tOFFSET")
	for _, ch := range v.Channels {
		fmt.Fprintf(tw, "%d\t%#x\t%s\t%d\t%d\t%d/%d\t%d\n",
			ch.Slot, ch.ChannelID, ch.Variable, ch.Width, ch.Divider, ch.Samples, ch.RecordLength, ch.Offset)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, ch := range v.Channels {
		if ch.Hex != "" {
			fmt.Fprintf(w, "  slot %d: %s\n", ch.Slot, ch.Hex)
		}
	}
	return nil
}
