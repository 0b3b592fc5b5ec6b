package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/watzon/localgw/internal/build"
	"github.com/watzon/localgw/internal/bundler"
	"github.com/watzon/localgw/internal/registry"
)

var (
	packageOut         string
	packageServicePath string
)

var packageCmd = &cobra.Command{
	Use:   "package",
	Short: "Build once and compute per-function package filters",
	Long: `Run the build command once and, when the service packages functions
individually, rewrite every function's include filter to:

  ["!**", <files of the function's output chunk>, <previous includes>]

Source maps are left out unless custom.includeMaps is set. The filters are
logged, and written as YAML with --out (relative to the build output
directory).`,
	RunE: runPackage,
}

func init() {
	packageCmd.Flags().StringVarP(&packageOut, "out", "o", "", "Write package filters to this YAML file")
	packageCmd.Flags().StringVar(&packageServicePath, "service", "", "Path to the service file (default: serverless.yml)")

	rootCmd.AddCommand(packageCmd)
}

func runPackage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("service") {
		cfg.Service.Path = packageServicePath
	}

	svc, err := loadService(cfg)
	if err != nil {
		return err
	}

	_, err = packageService(cmd.Context(), newBundler(cfg, svc), svc, cmd.OutOrStdout(), packageOut)
	return err
}

// packageManifest is the --out file format.
type packageManifest struct {
	Service   string                  `yaml:"service"`
	Output    string                  `yaml:"output"`
	Functions []build.FunctionPackage `yaml:"functions"`
}

// packageService compiles once, prints the stats and writes the computed
// filters to outFile when set. outFile is resolved against the build output.
func packageService(ctx context.Context, b bundler.Bundler, svc *registry.Service, out io.Writer, outFile string) (*build.Result, error) {
	result, err := build.Compile(ctx, b, svc, build.CompileOptions{Output: out})
	if err != nil {
		return nil, err
	}

	_, _ = io.WriteString(out, result.Stats.String())

	for _, pkg := range result.Packages {
		log.Info().
			Str("function", pkg.Function).
			Strs("include", pkg.Include).
			Msg("Package filter")
	}

	if outFile != "" {
		path := outFile
		if !filepath.IsAbs(path) {
			path = result.Scope.Path(outFile)
		}
		if err := writeManifest(path, packageManifest{
			Service:   svc.Name,
			Output:    result.Scope.NewRoot,
			Functions: result.Packages,
		}); err != nil {
			return nil, err
		}
		log.Info().Str("file", path).Msg("Package filters written")
	}

	log.Info().
		Str("output", result.Scope.NewRoot).
		Str("root", result.Scope.Restore()).
		Msg("Package complete")

	return result, nil
}

func writeManifest(path string, manifest packageManifest) error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding package filters: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
