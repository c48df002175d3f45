package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

var Version = "dev"

func main() {
	opts := zap.Options{
		Development: true,
	}
	opts.BindFlags(flag.CommandLine)

	root := newRootCommand(&opts)
	if err := root.ExecuteContext(ctrl.SetupSignalHandler()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(zapOpts *zap.Options) *cobra.Command {
	hook := &hookOptions{}

	root := &cobra.Command{
		Use:   "cdmon-dns01",
		Short: "Publish and remove ACME dns-01 validation records on CDmon",
		Long: `cdmon-dns01 creates and deletes the _acme-challenge TXT records used by
ACME dns-01 validation through the CDmon domains API.

It can be used as a certbot manual hook (reading CERTBOT_DOMAIN and
CERTBOT_VALIDATION) or as a lego exec provider (present|cleanup fqdn value).`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(zapOpts)))
		},
	}

	flags := root.PersistentFlags()
	flags.AddGoFlagSet(flag.CommandLine)
	flags.StringVar(&hook.credentialsPath, "credentials", "", "Path to a YAML or certbot INI credentials file (default: $"+envCredentialsPath+", then "+defaultCredentialsPath+" if present, then API_KEY_CDMON)")
	flags.StringVar(&hook.secretRef, "credentials-secret", "", "Kubernetes Secret holding the credentials, as namespace/name")

	present := &cobra.Command{
		Use:   "present [fqdn value]",
		Short: "Create or update the validation TXT record",
		Args:  cobra.MatchAll(cobra.RangeArgs(0, 2), notOneArg),
		RunE: func(cmd *cobra.Command, args []string) error {
			fqdn, value, err := challengeArgs(args, os.Getenv)
			if err != nil {
				return err
			}
			return runHook(cmd.Context(), hook, actionPresent, fqdn, value)
		},
	}
	present.Flags().DurationVar(&hook.wait, "wait", 0, "Time to sleep after the record is published, e.g. 90s for certbot manual hooks")

	cleanup := &cobra.Command{
		Use:   "cleanup [fqdn value]",
		Short: "Delete the validation TXT record",
		Args:  cobra.MatchAll(cobra.RangeArgs(0, 2), notOneArg),
		RunE: func(cmd *cobra.Command, args []string) error {
			fqdn, value, err := challengeArgs(args, os.Getenv)
			if err != nil {
				return err
			}
			return runHook(cmd.Context(), hook, actionCleanup, fqdn, value)
		},
	}

	root.AddCommand(present, cleanup)
	return root
}

func notOneArg(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return fmt.Errorf("expected both fqdn and value, or neither")
	}
	return nil
}
