package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	_ "modernc.org/sqlite"

	"github.com/pointproc/go-tpp/experiment"
	"github.com/pointproc/go-tpp/training"
)

var (
	name    = "tpp-train"
	version = "1.0.0"
)

type args struct {
	Config string `help:"path to the experiment YAML config" arg:"-c,required"`
	Quiet  bool   `help:"suppress per-pass progress output" arg:"-q"`
}

func (args) Version() string {
	return fmt.Sprintf("%s %s", name, version)
}

func (args) Description() string {
	return "trains a neural temporal point process model with early stopping and reports train/val/test negative log-likelihood"
}

func main() {
	var args args
	arg.MustParse(&args)

	cfg, err := experiment.LoadConfig(args.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}

	var reporter training.Reporter = training.NewConsoleReporter(!args.Quiet)
	if args.Quiet {
		reporter = &training.NopReporter{}
	}

	summary, err := experiment.Run(cfg, reporter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}

	fmt.Printf("status: %s after %d passes (best pass %d)\n",
		summary.Result.Status, len(summary.Result.History), summary.Result.BestPass)
	fmt.Printf("train NLL: %.4f\n", summary.TrainNLL)
	fmt.Printf("val NLL:   %.4f\n", summary.ValNLL)
	fmt.Printf("test NLL:  %.4f\n", summary.TestNLL)
	if summary.RunID != 0 {
		fmt.Printf("recorded as run %d in %s\n", summary.RunID, cfg.Output.LedgerPath)
	}
}
