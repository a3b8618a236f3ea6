package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"hopedata/internal"
	"hopedata/internal/config"
	"hopedata/internal/logging"
	"hopedata/internal/pipeline"
	"hopedata/internal/report"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	must(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "normalize":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", cfg.Source, "file path, http(s) URL or sheets:<id>")
		inType := fs.String("type", "", "csv|xlsx|html|eml (default: infer)")
		output := fs.String("output", filepath.Join(cfg.OutputDir, "normalized.xlsx"), "output xlsx path")
		_ = fs.Parse(os.Args[2:])

		res, err := pipeline.RunOnce(ctx, cfg, *input, *inType, *output, logger)
		must(err)
		fmt.Printf("normalize done records=%d issues=%d missing=%s output=%s\n",
			len(res.Batch.Records), len(res.Batch.Issues), joinFields(res.Batch.MissingFields), res.OutputPath)
	case "report":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", cfg.Source, "file path, http(s) URL or sheets:<id>")
		inType := fs.String("type", "", "csv|xlsx|html|eml (default: infer)")
		output := fs.String("output", "", "optional output xlsx path")
		_ = fs.Parse(os.Args[2:])

		res, err := pipeline.RunOnce(ctx, cfg, *input, *inType, *output, logger)
		must(err)
		must(report.Print(os.Stdout, res.Views))
	case "match":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		field := fs.String("field", "", "canonical field, e.g. gender")
		value := fs.String("value", "", "raw value to match")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*field) == "" {
			must(fmt.Errorf("--field is required"))
		}

		policy, err := pipeline.NewPolicy(cfg)
		must(err)
		rule, ok := policy.Rule(internal.Field(*field))
		if !ok || len(rule.Vocab.Entries()) == 0 {
			must(fmt.Errorf("field %q has no vocabulary", *field))
		}
		res := pipeline.Match(*value, rule.Vocab, rule.Threshold, rule.Default, pipeline.WithCaseFold(rule.CaseFold))
		fmt.Printf("field=%s value=%q result=%q score=%.2f matched=%t reason=%s\n",
			rule.Field, *value, res.Value, res.Score, res.Matched, res.Reason)
	case "policy":
		policy, err := pipeline.NewPolicy(cfg)
		must(err)
		printPolicy(policy)
	default:
		usage()
		os.Exit(1)
	}
}

func printPolicy(p pipeline.Policy) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "field\tkind\tthreshold\tcase_fold\tdefault\tentries")
	for _, r := range p.Rules() {
		threshold := "-"
		if r.Kind == pipeline.RuleVocabulary || r.Kind == pipeline.RuleStateAbbr || r.Kind == pipeline.RuleGazetteer {
			threshold = fmt.Sprintf("%.0f", r.Threshold)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%d\n", r.Field, r.Kind, threshold, r.CaseFold, r.Default, len(r.Vocab.Entries()))
	}
	_ = tw.Flush()

	fmt.Println()
	fmt.Println("income brackets (annual, right-inclusive):")
	for _, b := range p.Brackets() {
		fmt.Printf("  <= %.1f  %s\n", b.Upper, b.Label)
	}
	fmt.Printf("date layouts: %s\n", strings.Join(p.DateLayouts(), " | "))
}

func joinFields(fields []internal.Field) string {
	if len(fields) == 0 {
		return "-"
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return strings.Join(out, ",")
}

func usage() {
	fmt.Println("usage: hopedata <command>")
	fmt.Println("commands:")
	fmt.Println("  normalize --input=SRC [--type=csv|xlsx|html|eml] [--output=out/normalized.xlsx]")
	fmt.Println("  report --input=SRC [--type=csv|xlsx|html|eml] [--output=report.xlsx]")
	fmt.Println("  match --field=gender --value=femal")
	fmt.Println("  policy")
	fmt.Println("SRC is a file path, an http(s) URL or sheets:<spreadsheetId>; defaults to $SOURCE")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
