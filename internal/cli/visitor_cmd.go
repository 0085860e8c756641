// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatstream/internal/visitor"
)

func newVisitorCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visitor",
		Short: "Show or reset the visitor identifier",
		Long: `Every request carries an opaque visitor identifier that is created on
first use and kept in the local store.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the visitor identifier, creating it if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(a.cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			id, err := visitor.NewService(store).GetOrCreate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget the visitor identifier; the next request gets a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(a.cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := visitor.NewService(store).Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Visitor identifier reset."))
			return nil
		},
	})

	return cmd
}
