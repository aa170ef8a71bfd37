package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/salebot/internal/business"
)

func businessesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "businesses",
		Short: "Tenant knowledge files",
	}
	cmd.AddCommand(businessesValidateCmd())
	return cmd
}

func businessesValidateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse and validate every tenant file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dir = cfg.Businesses.Dir
			}
			configs, err := business.LoadDir(dir)
			if err != nil {
				return err
			}
			if len(configs) == 0 {
				return fmt.Errorf("no tenant files in %s", dir)
			}
			for _, c := range configs {
				t := c.TriggerSet()
				fmt.Printf("  %-16s products=%-3d faq=%-3d scripts=%-3d docs=%-3d triggers=%s\n",
					c.ID, len(c.Products), len(c.FAQ), len(c.SaleScripts), len(c.KnowledgeDocs), t.Version)
			}
			fmt.Printf("%d businesses OK\n", len(configs))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "businesses directory (default: businesses.dir)")
	return cmd
}
