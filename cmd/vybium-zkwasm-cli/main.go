// vybium-zkwasm-cli proves recorded zkWasm executions.
//
// Every subcommand takes the path of a JSON trace bundle. Settings come from
// an optional TOML file and are overridden by flags.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/log"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/utils"
	vybiumzkwasm "github.com/vybium/vybium-zkwasm/pkg/vybium-zkwasm"
)

var (
	configFile  string
	name        string
	k           uint32
	field       string
	strategy    string
	backend     string
	backendPath string
	outputDir   string
	paramsDir   string
	public      []string
	private     []string
	contextIn   []string
	hostFns     []string
	dumpTables  bool
	logLevel    string
	quiet       []string

	dumpWitness bool
)

var rootCmd = &cobra.Command{
	Use:           "vybium-zkwasm-cli",
	Short:         "Slice, check and prove zkWasm execution traces",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := log.InitLogger(logLevel); err != nil {
			return err
		}
		for _, m := range quiet {
			log.DisableModule(m)
		}
		return nil
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup <trace.json>",
	Short: "Write parameters, load info and circuit descriptions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, args[0])
		if err != nil {
			return err
		}
		return s.Setup(cmd.Context())
	},
}

var dryRunCmd = &cobra.Command{
	Use:   "dry-run <trace.json>",
	Short: "Build and check every slice without writing proofs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, args[0])
		if err != nil {
			return err
		}
		report, err := s.DryRun(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

var proveCmd = &cobra.Command{
	Use:   "prove <trace.json>",
	Short: "Prove every slice and write instances and transcripts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, args[0])
		if err != nil {
			return err
		}
		if err := s.Setup(cmd.Context()); err != nil {
			return err
		}
		proofs, err := s.Prove(cmd.Context(), dumpWitness)
		if err != nil {
			return err
		}
		for _, p := range proofs {
			fmt.Fprintf(cmd.OutOrStdout(), "slice %d: pre %s post %s last %v\n", p.Index, p.PreChecksum, p.PostChecksum, p.IsLastSlice)
		}
		return nil
	},
}

var checksumCmd = &cobra.Command{
	Use:   "checksum <trace.json>",
	Short: "Print the checksum of the program image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, args[0])
		if err != nil {
			return err
		}
		sum, err := s.ImageChecksum()
		if err != nil {
			return err
		}
		out := struct {
			Checksum  string   `json:"checksum"`
			Instances []string `json:"instances"`
		}{Checksum: sum.Hex()}
		for _, v := range sum.Instances() {
			out.Instances = append(out.Instances, hexutil.EncodeBig(v))
		}
		return printJSON(cmd, out)
	},
}

func init() {
	defaults := utils.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "TOML session config")
	flags.StringVar(&name, "name", defaults.Name, "artifact name prefix")
	flags.Uint32VarP(&k, "k", "k", defaults.K, "circuit size, 2^k rows")
	flags.StringVar(&field, "field", defaults.Field, "scalar field: bn254 or bls12-381")
	flags.StringVar(&strategy, "strategy", defaults.Strategy, "post image strategy: trivial or continuation")
	flags.StringVar(&backend, "backend", defaults.Backend, "slice backend: memory, leveldb or pebble")
	flags.StringVar(&backendPath, "backend-path", "", "database directory of a persisted slice backend")
	flags.StringVarP(&outputDir, "output", "o", defaults.OutputDir, "artifact directory")
	flags.StringVar(&paramsDir, "params", defaults.ParamsDir, "parameter directory")
	flags.StringSliceVar(&public, "public", nil, "public inputs, decimal or 0x hex")
	flags.StringSliceVar(&private, "private", nil, "private inputs, decimal or 0x hex")
	flags.StringSliceVar(&contextIn, "context-in", nil, "context inputs, decimal or 0x hex")
	flags.StringSliceVar(&hostFns, "host", defaults.HostFunctions, "enabled host functions")
	flags.BoolVar(&dumpTables, "dump-tables", false, "write the event, frame and host call tables of every slice")
	flags.StringVar(&logLevel, "log-level", "info", "trace, debug, info, warn or error")
	flags.StringSliceVar(&quiet, "quiet", nil, "modules whose trace and debug output is dropped")

	proveCmd.Flags().BoolVar(&dumpWitness, "witness", false, "write the assigned columns of every slice")

	rootCmd.AddCommand(setupCmd, dryRunCmd, proveCmd, checksumCmd)
}

func parseInputs(values []string) ([]uint64, error) {
	out := make([]uint64, len(values))
	for i, v := range values {
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid input %q: %w", v, err)
		}
		out[i] = n
	}
	return out, nil
}

// sessionConfig reads the TOML file, if any, and applies the flags the user
// set explicitly.
func sessionConfig(cmd *cobra.Command) (*utils.Config, error) {
	config := utils.DefaultConfig()
	if configFile != "" {
		var err error
		if config, err = utils.LoadConfig(configFile); err != nil {
			return nil, err
		}
	}
	set := cmd.Flags().Changed
	if set("name") {
		config.WithName(name)
	}
	if set("k") {
		config.WithK(k)
	}
	if set("field") {
		config.WithField(field)
	}
	if set("strategy") {
		config.WithStrategy(strategy)
	}
	if set("backend") || set("backend-path") {
		config.WithBackend(backend, backendPath)
	}
	if set("output") {
		config.WithOutputDir(outputDir)
	}
	if set("params") {
		config.WithParamsDir(paramsDir)
	}
	if set("host") {
		config.WithHostFunctions(hostFns...)
	}
	if set("dump-tables") {
		config.DumpTables = dumpTables
	}
	inputs := []struct {
		flag   string
		values []string
		dst    *[]uint64
	}{
		{"public", public, &config.PublicInputs},
		{"private", private, &config.PrivateInputs},
		{"context-in", contextIn, &config.ContextInputs},
	}
	for _, in := range inputs {
		if !set(in.flag) {
			continue
		}
		values, err := parseInputs(in.values)
		if err != nil {
			return nil, err
		}
		*in.dst = values
	}
	return config, nil
}

func openSession(cmd *cobra.Command, trace string) (*vybiumzkwasm.Session, error) {
	config, err := sessionConfig(cmd)
	if err != nil {
		return nil, err
	}
	s, err := vybiumzkwasm.NewSession(config)
	if err != nil {
		return nil, err
	}
	log.Info(log.CLIModule, "Loading trace", "path", trace, "k", config.K, "field", config.Field, "strategy", config.Strategy)
	if err := s.Load(trace); err != nil {
		return nil, err
	}
	return s, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "vybium-zkwasm-cli:", err)
		stop()
		os.Exit(1)
	}
}
