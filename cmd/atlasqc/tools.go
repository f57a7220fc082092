package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/google/subcommands"
	"gonum.org/v1/gonum/spatial/r3"

	"atlasqc/internal/phantom"
	"atlasqc/pkg/atlasio"
	"atlasqc/pkg/config"
	"atlasqc/pkg/iar"
	"atlasqc/pkg/visualization"
)

type initConfigCommand struct {
	path string
}

func (*initConfigCommand) Name() string     { return "init-config" }
func (*initConfigCommand) Synopsis() string { return "write a configuration file with default values" }
func (*initConfigCommand) Usage() string {
	return "init-config [-config FILE]:\n  Write the default configuration.\n"
}

func (c *initConfigCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.path, "config", "atlasqc.yaml", "Configuration file to create")
}

func (c *initConfigCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if _, err := os.Stat(c.path); err == nil {
		log.Printf("%s already exists", c.path)
		return subcommands.ExitFailure
	}
	if err := config.CreateDefaultConfigFile(c.path); err != nil {
		log.Printf("Failed to write configuration: %v", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Default configuration written to %s\n", c.path)
	return subcommands.ExitSuccess
}

type phantomCommand struct {
	out        string
	structure  string
	count      int
	size       int
	radius     float64
	bulgeIndex int
	bulgeScale float64
}

func (*phantomCommand) Name() string     { return "phantom" }
func (*phantomCommand) Synopsis() string { return "write a synthetic sphere atlas set" }
func (*phantomCommand) Usage() string {
	return "phantom -out DIR [flags]:\n  Write identical sphere atlases, one of them with a bulge.\n"
}

func (c *phantomCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.out, "out", "", "Output directory")
	f.StringVar(&c.structure, "structure", "heart", "Structure name")
	f.IntVar(&c.count, "n", 12, "Number of atlases")
	f.IntVar(&c.size, "size", 32, "Edge length of the volumes in voxels")
	f.Float64Var(&c.radius, "radius", 10, "Sphere radius in voxels")
	f.IntVar(&c.bulgeIndex, "bulge-index", 0, "Atlas that receives the bulge (-1 for none)")
	f.Float64Var(&c.bulgeScale, "bulge-scale", 1.25, "Radius scale inside the bulge")
}

func (c *phantomCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.out == "" || c.count < 1 || c.size < 3 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	mid := float64(c.size-1) / 2
	base := phantom.Sphere{Size: c.size, Center: r3.Vec{X: mid, Y: mid, Z: mid}, Radius: c.radius}
	var bulge *phantom.Bulge
	if c.bulgeIndex >= 0 {
		bulge = &phantom.Bulge{Direction: r3.Vec{X: 1}, HalfAngle: 35 * math.Pi / 180, Scale: c.bulgeScale}
	}
	set, err := phantom.AtlasSet(c.structure, c.count, base, bulge, c.bulgeIndex)
	if err != nil {
		log.Printf("Failed to build phantom: %v", err)
		return subcommands.ExitFailure
	}
	if err := atlasio.SaveAtlasSet(c.out, set); err != nil {
		log.Printf("Failed to write phantom: %v", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Wrote %d atlases to %s\n", set.Len(), c.out)
	return subcommands.ExitSuccess
}

type chartCommand struct {
	logFile string
	out     string
	png     bool
}

func (*chartCommand) Name() string     { return "chart" }
func (*chartCommand) Synopsis() string { return "render Q-value charts from a run log" }
func (*chartCommand) Usage() string {
	return "chart -log FILE -out DIR [-png]:\n  Render one chart per logged iteration.\n"
}

func (c *chartCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.logFile, "log", "", "Run log written by the run command")
	f.StringVar(&c.out, "out", ".", "Output directory")
	f.BoolVar(&c.png, "png", false, "Render PNG instead of SVG")
}

func (c *chartCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.logFile == "" {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	entries, err := iar.ReadLog(c.logFile)
	if err != nil {
		log.Printf("Failed to read log: %v", err)
		return subcommands.ExitFailure
	}
	if err := os.MkdirAll(c.out, 0755); err != nil {
		log.Printf("Failed to create output directory: %v", err)
		return subcommands.ExitFailure
	}

	for _, e := range entries {
		var removed []string
		for i, q := range e.Scores {
			if q > e.Threshold {
				removed = append(removed, e.AtlasIDs[i])
			}
		}
		chart, err := visualization.NewQChart(e.AtlasIDs, e.Scores, e.Threshold, removed)
		if err != nil {
			log.Printf("Warning: skipping iteration %d: %v", e.Iteration, err)
			continue
		}

		ext, render := "svg", chart.RenderSVG
		if c.png {
			ext, render = "png", chart.RenderPNG
		}
		path := filepath.Join(c.out, fmt.Sprintf("iter_%02d.%s", e.Iteration, ext))
		f, err := os.Create(path)
		if err != nil {
			log.Printf("Failed to create %s: %v", path, err)
			return subcommands.ExitFailure
		}
		if err := render(f); err != nil {
			f.Close()
			log.Printf("Failed to render %s: %v", path, err)
			return subcommands.ExitFailure
		}
		if err := f.Close(); err != nil {
			log.Printf("Failed to write %s: %v", path, err)
			return subcommands.ExitFailure
		}
	}
	fmt.Printf("Rendered %d charts to %s\n", len(entries), c.out)
	return subcommands.ExitSuccess
}
