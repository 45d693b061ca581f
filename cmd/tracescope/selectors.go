package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"traceScope/internal/config"
	"traceScope/internal/dex"
)

// runSelectors lists the router functions each decoder recognizes.
func runSelectors(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	reg, err := dex.NewRegistry(cfg.Routers...)
	if err != nil {
		return err
	}
	decoders, err := dex.DefaultDecoders(reg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DECODER\tSELECTOR\tFUNCTION")
	for _, decoder := range decoders {
		for _, sig := range decoder.Signatures() {
			selector := sig.Selector()
			fmt.Fprintf(w, "%s\t%s\t%s\n", decoder.Name(), hexutil.Encode(selector[:]), sig.Canonical)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "ROUTER\tADDRESS\tFEE_BPS")
	for _, router := range reg.Routers() {
		fmt.Fprintf(w, "%s\t%s\t%d\n", router.Name, router.Address.Hex(), router.FeeBps)
	}
	return w.Flush()
}
