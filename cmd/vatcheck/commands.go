package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/olgasafonova/vat-registry-mcp-server/internal/base"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/config"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/service"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/vat"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/vies"
)

// errInvalidNumbers makes the process exit non-zero once the results are printed.
var errInvalidNumbers = errors.New("one or more VAT numbers are invalid")

const defaultConcurrency = 4

// app holds the flags shared by every subcommand and the service they build.
type app struct {
	envFile string
	jsonOut bool

	cfg *config.Config
	svc *service.Service
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "vatcheck",
		Short: "Validate VAT identification numbers",
		Long: `vatcheck checks VAT numbers against country syntax rules and checksums,
and optionally confirms them in the EU VIES registry.

Settings come from the same environment variables as the MCP server
(VAT_EU_ONLY, VAT_ALLOWED_COUNTRIES, VAT_VIES_CHECK, VAT_STRICT_CHECKSUMS,
VIES_ENDPOINT, ...), or from a dotenv file given with --env-file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "read settings from this dotenv file instead of the environment")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(a.validateCmd())
	root.AddCommand(a.lookupCmd())
	root.AddCommand(a.countriesCmd())
	return root
}

// loadConfig reads settings from --env-file or the environment.
func (a *app) loadConfig() error {
	var err error
	if a.envFile != "" {
		a.cfg, err = config.LoadFile(a.envFile)
	} else {
		a.cfg, err = config.Load()
	}
	return err
}

// setup builds the VIES client, validator and service from the loaded config.
func (a *app) setup(cmd *cobra.Command) error {
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: a.cfg.SlogLevel(),
	}))

	viesClient := vies.NewClient(a.cfg.VIESEndpoint,
		base.WithTimeout(a.cfg.VIESTimeout),
		base.WithMaxConcurrent(a.cfg.VIESMaxConcurrent),
		base.WithLogger(logger),
	)

	validator, err := vat.NewValidator(a.cfg.ValidatorConfig(), vat.WithConfirmer(viesClient))
	if err != nil {
		return err
	}

	a.svc, err = service.New(validator, viesClient, logger)
	return err
}

func (a *app) validateCmd() *cobra.Command {
	var (
		normalize   bool
		checkVIES   bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "validate [VAT_NUMBER...]",
		Short: "Validate VAT numbers (reads one per line from stdin when none are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			if cmd.Flags().Changed("vies") {
				a.cfg.RemoteCheck = checkVIES
			}
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1, got %d", concurrency)
			}
			if err := a.setup(cmd); err != nil {
				return err
			}

			numbers := args
			if len(numbers) == 0 {
				var err error
				numbers, err = readNumbers(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			results, err := a.validateAll(cmd.Context(), numbers, normalize, concurrency)
			if err != nil {
				return err
			}
			if err := a.printValidations(cmd.OutOrStdout(), results); err != nil {
				return err
			}

			for _, r := range results {
				if !r.Valid {
					return errInvalidNumbers
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&normalize, "normalize", false, "strip spaces, dots and dashes and upper-case before validating")
	cmd.Flags().BoolVar(&checkVIES, "vies", false, "confirm EU numbers in VIES (overrides VAT_VIES_CHECK)")
	cmd.Flags().IntVar(&concurrency, "concurrency", defaultConcurrency, "numbers validated in parallel")
	return cmd
}

// validateAll validates numbers with at most limit in flight and returns the
// results in input order.
func (a *app) validateAll(ctx context.Context, numbers []string, normalize bool, limit int) ([]service.ValidateResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]service.ValidateResult, len(numbers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, number := range numbers {
		g.Go(func() error {
			res, err := a.svc.ValidateMCP(ctx, service.ValidateArgs{VATNumber: number, Normalize: normalize})
			if err != nil {
				return fmt.Errorf("validating %q: %w", number, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *app) printValidations(w io.Writer, results []service.ValidateResult) error {
	if a.jsonOut {
		return writeJSON(w, results)
	}
	for _, r := range results {
		var err error
		if r.Valid {
			_, err = fmt.Fprintf(w, "%s\tvalid\t%s\tremote=%s\n", r.Number, r.Country, r.Remote)
		} else {
			_, err = fmt.Fprintf(w, "%s\tinvalid\t%s\t%s\n", r.Number, r.ErrorCode, r.Message)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) lookupCmd() *cobra.Command {
	var normalize bool

	cmd := &cobra.Command{
		Use:   "lookup VAT_NUMBER",
		Short: "Fetch the VIES record for an EU VAT number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			if err := a.setup(cmd); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			res, err := a.svc.LookupMCP(ctx, service.LookupArgs{VATNumber: args[0], Normalize: normalize})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				return writeJSON(out, res)
			}
			status := "not registered"
			if res.Valid {
				status = "registered"
			}
			_, err = fmt.Fprintf(out, "%s\t%s\nName:\t%s\nAddress:\t%s\nChecked:\t%s\n",
				res.VATNumber, status, orDash(res.Name), orDash(res.Address), res.RequestDate)
			return err
		},
	}

	cmd.Flags().BoolVar(&normalize, "normalize", false, "normalize the number before the lookup")
	return cmd
}

func (a *app) countriesCmd() *cobra.Command {
	var euOnly bool

	cmd := &cobra.Command{
		Use:   "countries",
		Short: "List supported country prefixes and their syntax rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			if err := a.setup(cmd); err != nil {
				return err
			}

			res, err := a.svc.ListCountriesMCP(context.Background(), service.ListCountriesArgs{EUOnly: euOnly})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				return writeJSON(out, res)
			}
			for _, c := range res.Countries {
				if _, err := fmt.Fprintf(out, "%s\t%s\teu=%t\tchecksum=%t\tallowed=%t\n",
					c.Code, c.Pattern, c.EUVATArea, c.Checksum, c.Allowed); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&euOnly, "eu-only", false, "only list EU VAT area countries")
	return cmd
}

// readNumbers returns the non-blank lines of r, skipping # comments.
func readNumbers(r io.Reader) ([]string, error) {
	var numbers []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		numbers = append(numbers, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading numbers: %w", err)
	}
	if len(numbers) == 0 {
		return nil, errors.New("no VAT numbers given")
	}
	return numbers, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
