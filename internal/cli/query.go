package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nikolay-makurin/entityview/internal/sink"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Count bool
	Type  string
}

func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:          "query <query-file>",
		Short:        "Run a query file against the Postgres replica",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Count, "count", false, "also report the total number of matching rows")
	cmd.Flags().StringVar(&opts.Type, "type", string(types.ReplicationEntity), "replication type to query (ENTITY or SUBMISSION)")

	return cmd
}

func parseReplicationType(s string) (types.ReplicationType, error) {
	switch rt := types.ReplicationType(strings.ToUpper(s)); rt {
	case types.ReplicationEntity, types.ReplicationSubmission:
		return rt, nil
	}
	return "", fmt.Errorf("unknown replication type %q", s)
}

func runQuery(opts *QueryOptions, path string, cmd *cobra.Command) error {
	rt, err := parseReplicationType(opts.Type)
	if err != nil {
		return err
	}
	m, err := readQuery(path, cmd.InOrStdin())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	replica, err := sink.NewPostgresSink(ctx, cfg.Replica.Postgres)
	if err != nil {
		return err
	}
	defer replica.Close()

	rows, err := replica.Query(ctx, rt, m)
	if err != nil {
		return err
	}
	var total int64 = -1
	if opts.Count {
		if total, err = replica.Count(ctx, rt, m); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		result := map[string]any{"rows": rows}
		if opts.Count {
			result["count"] = total
		}
		return json.NewEncoder(out).Encode(result)
	}

	columns := m.SelectColumns()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = fmt.Sprint(row[c])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if opts.Count {
		fmt.Fprintf(out, "%d matching rows\n", total)
	}
	return nil
}
