/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/fragments/InputParameters"
	"github.com/notargets/fragments/filter"
	"github.com/notargets/fragments/parallel"
	"github.com/notargets/fragments/utils"
)

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Find the fragments of a synthetic AMR volume described by a YAML file",
	Long:  `Find the fragments of a synthetic AMR volume described by a YAML file`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err  error
			ip   *InputParameters.FragmentParameters
			outs []*filter.Output
		)
		if ip, err = processInput(viper.GetString("inputConditionsFile")); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		if np := viper.GetInt("ranks"); np > 0 {
			ip.Ranks = np
		}
		if base := viper.GetString("outputBaseName"); base != "" {
			ip.Output.BaseName = base
		}
		ip.Print()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		start := time.Now()
		if outs, err = RunFragments(ctx, ip, viper.GetBool("quiet")); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		PrintSummary(os.Stdout, outs)
		fmt.Printf("Elapsed time: %v, %s\n", time.Since(start), utils.GetMemUsage())
	},
}

const exampleFile = `
########################################
Title: "Two spheres"
Ranks: 4
MaterialFractionThreshold: 0.5
ComputeOBB: true
Volume:
  BlockDims: [8, 8, 8]
  Blocks: [4, 2, 2]
  Refine:
    - Type: box
      Min: [16, 0, 0]
      Max: [32, 16, 16]
Materials:
  - Name: steel
    Density: 7.8
    Shapes:
      - Type: sphere
        Center: [12, 8, 8]
        Radius: 5
      - Type: sphere
        Center: [26, 8, 8]
        Radius: 3
Output:
  Statistics: true
  BaseName: "~/fragments"
########################################
`

func processInput(fileName string) (ip *InputParameters.FragmentParameters, err error) {
	if len(fileName) == 0 {
		fmt.Printf("Example File:%s\n", exampleFile)
		return nil, fmt.Errorf("must supply an input parameters file (-I, --inputConditionsFile)")
	}
	var data []byte
	if data, err = os.ReadFile(fileName); err != nil {
		return
	}
	ip = InputParameters.NewFragmentParameters()
	if err = ip.Parse(data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", fileName, err)
	}
	return
}

// RunFragments samples the volume on ip.Ranks in-process ranks and runs the
// filter on each of them. The outputs are indexed by rank.
func RunFragments(ctx context.Context, ip *InputParameters.FragmentParameters,
	quiet bool) (outs []*filter.Output, err error) {
	if ip.Ranks < 1 {
		return nil, fmt.Errorf("need at least one rank, have %d", ip.Ranks)
	}
	synth, err := ip.Synthetic()
	if err != nil {
		return nil, err
	}
	outs = make([]*filter.Output, ip.Ranks)
	err = parallel.NewWorld(ip.Ranks).Run(ctx, func(ctx context.Context, c parallel.Communicator) (err error) {
		f := filter.NewMaterialInterfaceFilter()
		if err = ip.Configure(f); err != nil {
			return
		}
		if quiet {
			f.Logger = log.New(io.Discard, "", 0)
		}
		ds, err := synth.Build(c.Rank(), c.Size())
		if err != nil {
			return
		}
		outs[c.Rank()], err = f.Execute(ctx, c, ds)
		return
	})
	if err != nil {
		return nil, err
	}
	return
}

// PrintSummary lists the fragments found on rank 0 and the diagnostics of
// every rank that recorded any
func PrintSummary(w io.Writer, outs []*filter.Output) {
	if len(outs) == 0 || outs[0] == nil {
		return
	}
	for _, t := range outs[0].Tables {
		fmt.Fprintf(w, "Material %s: %d raw fragments, %d resolved, %d reported\n",
			t.Material, t.NumberOfRawFragments, t.NumberOfResolvedFragments, t.NumberOfFragments)
		for _, fr := range t.Fragments {
			fmt.Fprintf(w, "%6d %14.6e [%10.4f,%10.4f,%10.4f] ranks %v\n", fr.ID, fr.Volume,
				fr.CenterOfMass[0], fr.CenterOfMass[1], fr.CenterOfMass[2], fr.Ranks)
		}
		fmt.Fprintf(w, "Total volume %14.6e\n", t.TotalVolume)
	}
	for np, out := range outs {
		if out != nil && out.Diagnostics != (filter.Diagnostics{}) {
			fmt.Fprintf(w, "rank %d diagnostics: %+v\n", np, out.Diagnostics)
		}
	}
}

func init() {
	rootCmd.AddCommand(RunCmd)
	RunCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file describing the volume and the filter settings")
	RunCmd.Flags().IntP("ranks", "n", 0, "number of ranks, overrides the input file")
	RunCmd.Flags().StringP("outputBaseName", "o", "", "base name of the output files, overrides the input file")
	RunCmd.Flags().BoolP("quiet", "q", false, "suppress per rank progress logging")
	for _, name := range []string{"inputConditionsFile", "ranks", "outputBaseName", "quiet"} {
		_ = viper.BindPFlag(name, RunCmd.Flags().Lookup(name))
	}
}
