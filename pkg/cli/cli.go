// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli builds the dcsandbox command tree: one cobra subcommand per
// Lifecycle Engine operation (spec §6).
package cli

import (
	"io"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/dcsandbox/dcsandbox/internal/lifecycle"
)

// CommandHandler wires cobra commands to the Lifecycle Engine.
type CommandHandler struct {
	engine *lifecycle.Engine
}

func NewCommandHandler(engine *lifecycle.Engine) *CommandHandler {
	return &CommandHandler{engine: engine}
}

func (h *CommandHandler) RootCmd(name string) *cobra.Command {
	cmd := &cobra.Command{
		Use: name,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.AddCommand(
		h.createCmd(),
		h.listCmd(),
		h.infoCmd(),
		h.startCmd(),
		h.stopCmd(),
		h.removeCmd(),
		h.cleanupCmd(),
		h.logsCmd(),
		h.versionCmd(),
	)

	return cmd
}

func (h *CommandHandler) createCmd() *cobra.Command {
	var req lifecycle.CreateRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and start a new sandbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := h.engine.Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			cmd.Printf("%s\t%s\tmcp://localhost:%d\n", r.ID, r.Name, r.MCP.Port)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "sandbox name (derived from --git if omitted)")
	cmd.Flags().StringVar(&req.GitURL, "git", "", "git repository URL to clone into the workspace")
	cmd.Flags().StringVar(&req.GitBranch, "branch", "main", "git branch to clone")
	cmd.Flags().StringVar(&req.GitToken, "git-token", "", "OAuth2 token for private HTTPS clones")
	cmd.Flags().StringVar(&req.Template, "template", "", "template name (overrides auto-detection)")
	cmd.Flags().BoolVar(&req.AutoDetect, "auto-detect", true, "auto-detect a template from the workspace contents")
	cmd.Flags().StringVar(&req.Memory, "memory", "2G", "memory limit, e.g. 512M, 2G")
	cmd.Flags().StringVar(&req.CPU, "cpu", "2", "CPU core limit, at least 1, e.g. 1.5, 2")
	cmd.Flags().IntVar(&req.TimeoutMins, "timeout", 120, "minutes after creation before the reaper stops this sandbox")
	cmd.Flags().BoolVar(&req.Persist, "persist", false, "exempt this sandbox from the timeout reaper")
	return cmd
}

func (h *CommandHandler) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all sandboxes",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := h.engine.List()
			if err != nil {
				return err
			}
			for _, r := range records {
				cmd.Printf("%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Status, r.Template)
			}
			return nil
		},
	}
}

func (h *CommandHandler) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <id>",
		Short: "Show the record for a sandbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := h.engine.Info(args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%+v\n", r)
			return nil
		},
	}
}

func (h *CommandHandler) startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start a stopped sandbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := h.engine.Start(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%s\t%s\tmcp://localhost:%d\n", r.ID, r.Name, r.MCP.Port)
			return nil
		},
	}
}

func (h *CommandHandler) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a running sandbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.engine.Stop(cmd.Context(), args[0])
		},
	}
}

func (h *CommandHandler) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a sandbox and its workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.engine.Remove(cmd.Context(), args[0])
		},
	}
}

func (h *CommandHandler) cleanupCmd() *cobra.Command {
	var selector string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove sandboxes matching a status selector",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := h.engine.Cleanup(cmd.Context(), lifecycle.CleanupSelector(selector))
			if err != nil {
				return err
			}
			cmd.Printf("removed %d, failed %d\n", res.Removed, res.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&selector, "status", "stopped", "which sandboxes to remove: stopped, errored, all")
	return cmd
}

func (h *CommandHandler) logsCmd() *cobra.Command {
	var opts lifecycle.LogOptions
	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Show a sandbox's container logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := h.engine.Logs(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(cmd.OutOrStdout(), rc)
			return err
		},
	}
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "follow the logs")
	cmd.Flags().IntVarP(&opts.Tail, "tail", "n", -1, "number of lines to show from the end of the logs")
	return cmd
}

func (h *CommandHandler) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the dcsandbox version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println(VersionCommit())
			return nil
		},
	}
}

// VersionCommit returns the build's VCS commit hash, or "dev" outside a
// checkout.
func VersionCommit() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	var dirty bool
	var commit string
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if commit == "" {
		return "dev"
	}
	if len(commit) >= 9 {
		commit = commit[:9]
	}
	if dirty {
		commit += "+dirty"
	}
	return commit
}
