package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"atlasqc/pkg/atlasio"
	"atlasqc/pkg/config"
	"atlasqc/pkg/iar"
	"atlasqc/pkg/publish"
	"atlasqc/pkg/visualization"
)

type runCommand struct {
	configPath    string
	atlasDir      string
	structure     string
	outlierMethod string
	zScore        string
	logFile       string
	numCores      int
	singleStep    bool
	survivors     string
}

var _ subcommands.Command = &runCommand{}

func (*runCommand) Name() string { return "run" }

func (*runCommand) Synopsis() string {
	return "run iterative atlas removal on an atlas directory"
}

func (*runCommand) Usage() string {
	return `run -atlases DIR [-config FILE] [flags]:
  Load every atlas below DIR and remove outliers for one structure.
  Flags override values from the configuration file.
`
}

func (c *runCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "atlasqc.yaml", "Configuration file (defaults are used if it does not exist)")
	f.StringVar(&c.atlasDir, "atlases", "", "Directory containing one subdirectory per atlas")
	f.StringVar(&c.structure, "structure", "", "Structure label to evaluate")
	f.StringVar(&c.outlierMethod, "outlier-method", "", "Outlier rule: IQR or std")
	f.StringVar(&c.zScore, "z-score", "", "Dispersion estimator: MAD or std")
	f.StringVar(&c.logFile, "log", "", "Run log path; {time} and {structure} are expanded")
	f.IntVar(&c.numCores, "cores", 0, "Number of CPU cores to use (default: from config)")
	f.BoolVar(&c.singleStep, "single-step", false, "Stop after the first removal round")
	f.StringVar(&c.survivors, "survivors", "", "Write the surviving atlas ids to this file")
}

// apply overrides cfg with the flags that were set
func (c *runCommand) apply(cfg *config.Config) {
	if c.structure != "" {
		cfg.IAR.Structure = c.structure
	}
	if c.outlierMethod != "" {
		cfg.IAR.OutlierMethod = c.outlierMethod
	}
	if c.zScore != "" {
		cfg.IAR.ZScore = c.zScore
	}
	if c.logFile != "" {
		cfg.IAR.LogFile = c.logFile
	}
	if c.numCores > 0 {
		cfg.Processing.NumCores = c.numCores
	}
	if c.singleStep {
		cfg.IAR.SingleStep = true
	}
}

func (c *runCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	if c.atlasDir == "" {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		logger.Printf("Failed to load configuration: %v", err)
		return subcommands.ExitFailure
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Printf("Invalid configuration: %v", err)
		return subcommands.ExitUsageError
	}

	set, err := atlasio.LoadAtlasSet(c.atlasDir, []string{cfg.IAR.Structure})
	if err != nil {
		logger.Printf("Failed to load atlases: %v", err)
		return subcommands.ExitFailure
	}

	params := cfg.IARParams()
	params.Logger = log.New(os.Stdout, "", 0)

	if cfg.Output.SaveIntermediaryResults {
		params.Observers = append(params.Observers, visualization.NewIntermediaryWriter(cfg.Output.IntermediaryDir))
	}

	client, err := publish.Connect(ctx, publish.Options{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, logger)
	if err != nil {
		logger.Printf("Warning: MQTT publishing disabled: %v", err)
	} else if client != nil {
		defer client.Disconnect(250)
		params.Observers = append(params.Observers, publish.NewPublisher(client, cfg.MQTT.TopicPrefix, logger))
	}

	startTime := time.Now()
	res, err := iar.NewRemover(params).Run(ctx, set)
	if err != nil {
		logger.Printf("Atlas removal failed: %v", err)
		if errors.Is(err, iar.ErrConfig) {
			return subcommands.ExitUsageError
		}
		return subcommands.ExitFailure
	}

	fmt.Printf("\nAtlas removal completed in %.2f seconds\n", time.Since(startTime).Seconds())
	fmt.Printf("Kept %d of %d atlases after %d iterations\n", res.Atlases.Len(), set.Len(), len(res.Iterations))
	fmt.Printf("Run log saved to: %s\n", res.LogFile)
	if cfg.Output.SaveIntermediaryResults {
		fmt.Printf("Intermediary results saved to: %s\n", cfg.Output.IntermediaryDir)
	}

	if c.survivors != "" {
		content := strings.Join(res.Atlases.IDs(), "\n") + "\n"
		if err := os.WriteFile(c.survivors, []byte(content), 0644); err != nil {
			logger.Printf("Failed to write survivors: %v", err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}
