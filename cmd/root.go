package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// Exit codes: 1 runtime error, 2 guardrail violations, 3 config or input
// error, 4 missing snapshot.
var rootCmd = &cobra.Command{
	Use:   "tracemark",
	Short: "Tracemark - annotate and guard LLM traces",
	Long: `Tracemark captures LLM traces through a local proxy, attaches annotations
to values inside them, and gates CI on guardrail findings.

Key commands:
  tracemark init      Initialize a project (tracemark.yml + starter rules)
  tracemark capture   Run the capture proxy and record traffic
  tracemark traces    List captured traces
  tracemark view      Render a trace with its annotations
  tracemark annotate  Attach annotations to trace values
  tracemark check     Run guardrail rules, diff against snapshots`,
	Version:      version,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		code := 1
		if exitErr, ok := err.(ExitError); ok {
			code = exitErr.Code
			err = exitErr.Err
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(code)
	}
}

type ExitError struct {
	Code int
	Err  error
}

func (e ExitError) Error() string {
	if e.Err == nil {
		return "exit"
	}
	return e.Err.Error()
}
