package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/titanous/json5"

	"github.com/rolesclub/rolesbot/internal/config"
	"github.com/rolesclub/rolesbot/internal/tenant"
)

func seedCmd() *cobra.Command {
	var preserveState bool
	cmd := &cobra.Command{
		Use:   "seed <seed-file.json5>",
		Short: "Create or refresh a club from a seed file",
		Long:  "Reads a JSON5 seed file describing one club (id, admins, members, roles), writes its catalog, creates round state, and registers the club in the manifest.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read seed file: %w", err)
			}
			var seed tenant.Seed
			if err := json5.Unmarshal(data, &seed); err != nil {
				return fmt.Errorf("parse seed file: %w", err)
			}
			if preserveState {
				seed.PreserveState = true
			}

			res, err := seed.Apply(cfg.ClubsDir)
			if err != nil {
				return err
			}
			slog.Info("seed.applied",
				"club", seed.ClubID,
				"dir", res.ClubDir,
				"members", len(seed.Members),
				"roles", len(seed.Roles),
				"state_created", res.CreatedState)
			return nil
		},
	}
	cmd.Flags().BoolVar(&preserveState, "preserve-state", false, "keep existing round state, only backfilling new members")
	return cmd
}
