package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/watzon/localgw/internal/gateway"
	"github.com/watzon/localgw/internal/registry"
)

const routesTableWidth = 90

var (
	routesJSON        bool
	routesStage       string
	routesStagePrefix bool
	routesService     string
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the routes the gateway would register",
	RunE:  runRoutes,
}

func init() {
	routesCmd.Flags().BoolVar(&routesJSON, "json", false, "Print routes as JSON")
	routesCmd.Flags().StringVar(&routesStage, "stage", "", "Stage name (default: provider stage, then dev)")
	routesCmd.Flags().BoolVar(&routesStagePrefix, "stage-prefix", false, "Prefix every route with /<stage>")
	routesCmd.Flags().StringVar(&routesService, "service", "", "Path to the service file (default: serverless.yml)")

	rootCmd.AddCommand(routesCmd)
}

func runRoutes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("stage") {
		cfg.Server.Stage = routesStage
	}
	if cmd.Flags().Changed("stage-prefix") {
		cfg.Server.StagePrefix = routesStagePrefix
	}
	if cmd.Flags().Changed("service") {
		cfg.Service.Path = routesService
	}

	svc, err := loadService(cfg)
	if err != nil {
		return err
	}

	return printRoutes(cmd.OutOrStdout(), svc, gateway.RouteOptions{
		StagePrefix: cfg.Server.StagePrefix,
		Stage:       cfg.Server.Stage,
	}, routesJSON)
}

func printRoutes(out io.Writer, svc *registry.Service, opts gateway.RouteOptions, asJSON bool) error {
	table, err := gateway.NewRouteTable(svc, opts)
	if err != nil {
		return err
	}
	routes := table.Describe()

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(routes)
	}

	if len(routes) == 0 {
		fmt.Fprintln(out, "No HTTP triggers found.")
		return nil
	}

	fmt.Fprintf(out, "%-8s %-40s %-20s %-12s %s\n", "METHOD", "PATH", "FUNCTION", "INTEGRATION", "CORS")
	fmt.Fprintln(out, strings.Repeat("-", routesTableWidth))
	for _, r := range routes {
		cors := "-"
		if r.CORS != nil {
			cors = strings.Join(r.CORS.Origins, ",")
		}
		fmt.Fprintf(out, "%-8s %-40s %-20s %-12s %s\n", r.Method, r.Path, r.Function, r.Integration, cors)
	}
	return nil
}
