package main

import (
	"fmt"

	"github.com/ewiniecke/nb27-backup/internal/services/checksum"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <dump>",
	Short: "Verify a local dump against its .sha256 sidecar",
	Long:  `Verify a local dump against the checksum sidecar next to it. Exits 4 on mismatch or a missing sidecar.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	dumpPath := args[0]
	sidecar := checksum.SidecarPath(dumpPath)

	digest, err := checksum.Verify(dumpPath, sidecar)
	if err != nil {
		log.Error().Err(err).Str("dump", dumpPath).Msg("verification failed")
		return err
	}

	log.Info().Str("dump", dumpPath).Str("sha256", digest).Msg("checksum OK")
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", dumpPath)
	return nil
}
