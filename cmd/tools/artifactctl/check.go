package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"artifact-compiler/internal/common/errors"
	"artifact-compiler/internal/common/validation"
	"artifact-compiler/internal/compiler/pipeline"
	"artifact-compiler/internal/models"
	"artifact-compiler/pkg/registry"
)

type checkOptions struct {
	kind  string
	phase string
	print bool
}

func newCheckCmd(root *rootOptions) *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check <file>...",
		Short: "Compile saved model responses without calling the model",
		Long: `Runs each file through extraction, sentinel detection, schema validation
and code detection. Failures print the error kind and the recovery action.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, root, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.kind, "kind", "", "artifact kind (selects <kind>.schema.json)")
	cmd.Flags().StringVar(&opts.phase, "phase", "", "pass id resolved through the registry")
	cmd.Flags().BoolVar(&opts.print, "print", false, "print the compiled artifact")
	return cmd
}

func runCheck(cmd *cobra.Command, root *rootOptions, opts *checkOptions, files []string) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}

	kind := models.ArtifactKind(opts.kind)
	switch {
	case opts.kind != "" && opts.phase != "":
		return fmt.Errorf("--kind and --phase are mutually exclusive")
	case opts.phase != "":
		reg, err := registry.LoadRegistry(cfg.Compiler.RegistryPath)
		if err != nil {
			return err
		}
		pass, ok := reg.Get(opts.phase)
		if !ok {
			return fmt.Errorf("unknown phase %q", opts.phase)
		}
		kind = pass.ArtifactKind
	case opts.kind == "":
		return fmt.Errorf("--kind or --phase is required")
	case !kind.Valid():
		return fmt.Errorf("invalid artifact kind %q", opts.kind)
	}

	items := make([]pipeline.BatchItem, len(files))
	for i, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		items[i] = pipeline.BatchItem{Kind: kind, Raw: string(raw)}
	}

	p := pipeline.New(validation.NewSchemaValidator(cfg.Compiler.SchemaDir),
		pipeline.OptionsFromConfig(cfg.Compiler, root.logger())...)
	results, err := p.CompileBatch(cmd.Context(), items, cfg.Compiler.BatchConcurrency)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for i, res := range results {
		if res.Err != nil {
			failed++
			printFailure(out, files[i], res.Err)
			continue
		}
		fmt.Fprintf(out, "OK   %s (%s)\n", files[i], kind)
		if opts.print {
			doc, _ := json.MarshalIndent(res.Artifact.Payload, "", "  ")
			fmt.Fprintln(out, string(doc))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d responses failed to compile", failed, len(files))
	}
	return nil
}

func printFailure(out io.Writer, file string, err error) {
	ce, ok := errors.AsCompilerError(err)
	if !ok {
		fmt.Fprintf(out, "FAIL %s: %v\n", file, err)
		return
	}
	fmt.Fprintf(out, "FAIL %s: %s\n", file, ce.Error())
	fmt.Fprintf(out, "     category=%s action=%s recoverable=%t\n",
		ce.Category(), errors.Classify(ce), ce.Recoverable)
}
