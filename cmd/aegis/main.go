package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mindburn-labs/aegis/pkg/audit"
	"github.com/mindburn-labs/aegis/pkg/config"
	"github.com/mindburn-labs/aegis/pkg/governance"
	"github.com/mindburn-labs/aegis/pkg/missioncontrol"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 0
	}

	switch args[1] {
	case "demo":
		return runDemo(args[2:], stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Aegis Governance Kernel")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  aegis <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  demo     Run an end-to-end scenario against an in-memory kernel")
	fmt.Fprintln(w, "  verify   Verify an exported audit trail (--in)")
	fmt.Fprintln(w, "  help     Show this help")
	fmt.Fprintln(w, "")
}

func runDemo(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("demo", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var configPath string
	cmd.StringVar(&configPath, "config", "", "path to a governance config YAML (optional)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, nil))

	cfg := governance.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			return 1
		}
		cfg = loaded
	}

	mc, err := missioncontrol.New(cfg, nil, nil)
	if err != nil {
		logger.Error("failed to construct mission control", "error", err)
		return 1
	}

	sub := mc.OnEvent(governance.EventActionRequested, func(ev governance.Event) {
		logger.Info("event", "kind", ev.Kind, "severity", ev.Severity, "data", ev.Data)
	})
	defer sub.Unsubscribe()

	if err := mc.RegisterApprover(governance.ApproverIdentity{ID: "approver-1", DisplayName: "ops-oncall", Clearance: governance.L2}); err != nil {
		logger.Error("failed to register approver", "error", err)
		return 1
	}

	agent := governance.AgentIdentity{ID: "agent-demo", Clearance: governance.L2}
	ctx := context.Background()

	readOut, err := mc.Execute(ctx, governance.ActionReadPublic, agent, map[string]any{}, func(payload any) (any, error) {
		return map[string]any{"status": "ok"}, nil
	})
	if err != nil {
		logger.Error("read-public execution failed", "error", err)
		return 1
	}
	fmt.Fprintf(stdout, "read-public: success=%v sequence=%d\n", readOut.Result.Success, readOut.Entry.Sequence)

	destroyOut, err := mc.Execute(ctx, governance.ActionDestroyResource, agent, map[string]any{"resourceId": "r-1"}, func(payload any) (any, error) {
		return map[string]any{"deleted": true}, nil
	})
	if err != nil {
		logger.Error("destroy-resource preflight failed", "error", err)
		return 1
	}
	if destroyOut.Pending == nil {
		logger.Error("expected destroy-resource to require approval")
		return 1
	}
	fmt.Fprintf(stdout, "destroy-resource: pending approval %s\n", destroyOut.Pending.ApprovalID)

	if _, err := mc.ApproveAction(destroyOut.Pending.ApprovalID, "approver-1", nil, "approved via demo"); err != nil {
		logger.Error("approval failed", "error", err)
		return 1
	}

	resumed, err := mc.ResumeExecute(ctx, destroyOut.Pending.ActionRequestID, governance.ActionDestroyResource, agent,
		map[string]any{"resourceId": "r-1"}, func(payload any) (any, error) {
			return map[string]any{"deleted": true}, nil
		})
	if err != nil {
		logger.Error("resumed execution failed", "error", err)
		return 1
	}
	fmt.Fprintf(stdout, "destroy-resource: success=%v sequence=%d\n", resumed.Result.Success, resumed.Entry.Sequence)

	fmt.Fprintf(stdout, "chain valid: %v\n", mc.VerifyAuditIntegrity())

	exported, err := mc.ExportAuditTrail()
	if err != nil {
		logger.Error("export failed", "error", err)
		return 1
	}
	fmt.Fprintln(stdout, string(exported))
	return 0
}

func runVerify(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var inPath string
	cmd.StringVar(&inPath, "in", "", "path to an exported audit trail JSON file (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if inPath == "" {
		fmt.Fprintln(stderr, "Error: --in is required")
		cmd.Usage()
		return 2
	}

	data, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading %s: %v\n", inPath, err)
		return 1
	}

	exp, valid, err := audit.ParseExport(data)
	if err != nil {
		fmt.Fprintf(stderr, "Error parsing %s: %v\n", inPath, err)
		return 1
	}

	fmt.Fprintf(stdout, "entries: %d\n", exp.EntryCount)
	fmt.Fprintf(stdout, "chain valid: %v\n", valid)
	if !valid {
		return 1
	}
	return 0
}
