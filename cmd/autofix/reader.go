package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autofix/internal/config"
	"autofix/internal/reader"
)

var readerCmd = &cobra.Command{
	Use:   "reader",
	Short: "Talk to the metadata worker directly",
}

var readerPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Start the metadata worker and check that it answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withReader(cmd, func(ctx context.Context, c *reader.Client) error {
			if err := c.Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okColor.Sprint("alive"), c.Executable())
			return nil
		})
	},
}

var readerDebugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Show the worker's global properties and cached projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withReader(cmd, func(ctx context.Context, c *reader.Client) error {
			info, err := c.Debug(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "requests: %d\n", info.Requests)
			keys := make([]string, 0, len(info.Properties))
			for k := range info.Properties {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "property %s=%s\n", k, info.Properties[k])
			}
			for _, p := range info.CachedProjects {
				fmt.Fprintf(out, "cached %s\n", p)
			}
			return nil
		})
	},
}

var readerOpenCmd = &cobra.Command{
	Use:   "open <project>",
	Short: "Read a project's metadata and print its documents and references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		return withReader(cmd, func(ctx context.Context, c *reader.Client) error {
			meta, err := c.OpenProject(ctx, path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s) %s\n", ruleColor.Sprint(meta.Name), meta.Language, meta.ID)
			for _, d := range meta.Documents {
				fmt.Fprintf(out, "  document   %s\n", d.FilePath)
			}
			for _, d := range meta.AdditionalDocuments {
				fmt.Fprintf(out, "  additional %s\n", d.FilePath)
			}
			for _, r := range meta.References {
				fmt.Fprintf(out, "  reference  %s (%s)\n", r.FilePath, r.Name)
			}
			return nil
		})
	},
}

func init() {
	readerCmd.PersistentFlags().String("reader", "", "path to the "+reader.ExecutableName+" executable")
	readerCmd.PersistentFlags().StringArrayP("property", "p", nil, "global property (Name=Value)")
	readerCmd.AddCommand(readerPingCmd, readerDebugCmd, readerOpenCmd)
}

// withReader starts a client for one command and always shuts the worker
// down afterwards.
func withReader(cmd *cobra.Command, fn func(ctx context.Context, c *reader.Client) error) error {
	applyColorFlag(cmd)
	path, _ := cmd.Flags().GetString("reader")
	pairs, _ := cmd.Flags().GetStringArray("property")
	props, err := config.ParseProperties(pairs)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd, &config.Config{})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	c, err := reader.NewClient(reader.Config{Path: path, GlobalProperties: props, Logger: log})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(context.WithoutCancel(cmd.Context())); err != nil {
			log.Warn("stopping worker", zap.Error(err))
		}
	}()
	return fn(cmd.Context(), c)
}
