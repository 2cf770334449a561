package cmd

import (
	"coffeectl/internal/cluster"
	"coffeectl/internal/images"

	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	var (
		noLoad      bool
		quietOutput bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the demo images and load them into the cluster",
		Long: `Builds every configured image with docker build and loads the result into
the cluster. Docker Desktop shares the host images, so nothing is loaded there.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := newPrinter(cmd.OutOrStdout())
			r := newRunner()

			builder := images.NewBuilder(r)
			if !quietOutput {
				builder.Out = cmd.OutOrStdout()
			}
			for _, img := range cfg.Images {
				p.header("Building %s", img.Name)
				if err := builder.Build(ctx, img); err != nil {
					return err
				}
				p.ok("built %s", img.Name)
			}

			if noLoad {
				return nil
			}
			provisioner, err := cluster.New(cfg.Cluster, r, newKubeManager())
			if err != nil {
				return err
			}
			p.header("Loading images into %s", provisioner.Name())
			if err := cluster.LoadImages(ctx, provisioner, images.Names(cfg.Images)); err != nil {
				return err
			}
			if provisioner.SharesHostImages() {
				p.skipped("%s uses the host images", provisioner.Backend())
			} else {
				p.ok("%d image(s) loaded", len(cfg.Images))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noLoad, "no-load", false, "Only build, do not load the images into the cluster")
	cmd.Flags().BoolVarP(&quietOutput, "quiet", "q", false, "Do not print docker build output")
	return cmd
}
