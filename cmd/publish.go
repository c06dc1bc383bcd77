package main

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dataquality/internal/job"
	"github.com/sells-group/dataquality/internal/metrics"
	"github.com/sells-group/dataquality/internal/publish"
)

var publishCmd = &cobra.Command{
	Use:   "publish <jobId>",
	Short: "Rebuild the report tables for an existing job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		jobID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "publish: invalid job id %q", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m := metrics.New()
		res, err := publish.New(st, cfg.Rules.UsualLongestLife, m).Publish(ctx, jobID)
		if err != nil {
			return eris.Wrap(err, "publish")
		}
		if err := st.TouchQueryCache(ctx, job.QueryCacheType, time.Now()); err != nil {
			return err
		}
		_ = m.WriteTextfile(cfg.Metrics.TextfilePath)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
