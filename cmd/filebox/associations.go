package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var associateCmd = &cobra.Command{
	Use:   "associate CONTAINER_ID DATA_ID",
	Short: "Link a data file to the document that renders it",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		if err := a.graph.Associate(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("failed to associate: %w", err)
		}
		fmt.Printf("✓ Associated %s with %s\n", args[1], args[0])
		return nil
	}),
}

var disassociateCmd = &cobra.Command{
	Use:   "disassociate CONTAINER_ID DATA_ID",
	Short: "Remove a link between a document and a data file",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		if err := a.graph.Disassociate(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("failed to disassociate: %w", err)
		}
		fmt.Printf("✓ Disassociated %s from %s\n", args[1], args[0])
		return nil
	}),
}

var associatedCmd = &cobra.Command{
	Use:   "associated CONTAINER_ID",
	Short: "List the data files linked to a document",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		entries, err := a.graph.ListAssociated(ctx, args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No associated files")
			return nil
		}
		printEntries(entries)
		return nil
	}),
}

var referencedByCmd = &cobra.Command{
	Use:   "referenced-by DATA_ID",
	Short: "List the documents that link to a data file",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		entries, err := a.repo.ListReferencing(ctx, args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Not referenced")
			return nil
		}
		printEntries(entries)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(associateCmd)
	rootCmd.AddCommand(disassociateCmd)
	rootCmd.AddCommand(associatedCmd)
	rootCmd.AddCommand(referencedByCmd)
}
