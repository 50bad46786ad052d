package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/notes/backend/internal/prices"
	"github.com/wonny/notes/backend/internal/products"
	"github.com/wonny/notes/backend/pkg/redis"
)

// productsCmd groups product management commands
var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "상품 관리",
}

// pricesCmd groups price cache commands
var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "가격 캐시 관리",
}

var (
	productsListCmd = &cobra.Command{
		Use:   "list",
		Short: "활성 상품 목록",
		RunE:  listProducts,
	}

	productsImportCmd = &cobra.Command{
		Use:   "import [file]",
		Short: "YAML 상품 정의를 Postgres에 저장",
		Args:  cobra.ExactArgs(1),
		RunE:  importProducts,
	}

	productsDeactivateCmd = &cobra.Command{
		Use:   "deactivate [product_id]",
		Short: "상품 비활성화",
		Args:  cobra.ExactArgs(1),
		RunE:  deactivateProduct,
	}

	pricesImportCmd = &cobra.Command{
		Use:   "import [file]",
		Short: "YAML 가격 레코드를 Postgres/Redis에 저장",
		Long: `Stores price records into Postgres when DATABASE_URL is set and
into the Redis cache when Redis is enabled.

Example:
  go run ./cmd/notes prices import prices.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: importPrices,
	}
)

func init() {
	rootCmd.AddCommand(productsCmd)
	rootCmd.AddCommand(pricesCmd)
	productsCmd.AddCommand(productsListCmd)
	productsCmd.AddCommand(productsImportCmd)
	productsCmd.AddCommand(productsDeactivateCmd)
	pricesCmd.AddCommand(pricesImportCmd)
}

func listProducts(cmd *cobra.Command, args []string) error {
	d, err := bootstrap(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.requireProducts(); err != nil {
		return err
	}

	list, err := d.products.ListActive(cmd.Context())
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}

	rows := make([][]string, 0, len(list))
	for _, p := range list {
		rows = append(rows, []string{p.ID, string(p.Structure.Kind), p.Currency, p.MaturityDate.Format("2006-01-02"), p.Name})
	}
	out := cmd.OutOrStdout()
	printHeader(out, fmt.Sprintf("Active products (%d)", len(list)))
	printTable(out, []string{"ID", "Template", "Ccy", "Maturity", "Name"}, []int{12, 20, 4, 10, 30}, rows)
	fmt.Fprintln(out, doubleLine)
	return nil
}

func importProducts(cmd *cobra.Command, args []string) error {
	list, err := products.LoadFile(args[0])
	if err != nil {
		return err
	}

	d, err := bootstrap(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer d.Close()
	if d.db == nil {
		return fmt.Errorf("DATABASE_URL is required")
	}

	repo := products.NewRepository(d.db.Pool)
	for _, p := range list {
		if err := repo.Save(cmd.Context(), p); err != nil {
			return fmt.Errorf("save %s: %w", p.ID, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Imported %d products\n", len(list))
	return nil
}

func deactivateProduct(cmd *cobra.Command, args []string) error {
	d, err := bootstrap(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer d.Close()
	if d.db == nil {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if err := products.NewRepository(d.db.Pool).Deactivate(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Deactivated %s\n", args[0])
	return nil
}

func importPrices(cmd *cobra.Command, args []string) error {
	records, err := prices.LoadFile(args[0])
	if err != nil {
		return err
	}

	d, err := bootstrap(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer d.Close()

	if d.db == nil && !d.rdb.Enabled() {
		return fmt.Errorf("nothing to import into: set DATABASE_URL or enable Redis")
	}

	ctx := cmd.Context()
	var pg *prices.PostgresStore
	if d.db != nil {
		pg = prices.NewPostgresStore(d.db.Pool)
	}
	var cache *prices.RedisStore
	if d.rdb.Enabled() {
		cache = prices.NewRedisStore(redis.NewCache(d.rdb, d.cfg.Redis.Prefix))
	}

	for _, r := range records {
		if pg != nil {
			if err := pg.SaveRecord(ctx, r); err != nil {
				return fmt.Errorf("save %s: %w", r.FullTicker, err)
			}
		}
		if cache != nil {
			if err := cache.PutRecord(ctx, r, d.cfg.Prices.CacheTTL); err != nil {
				return fmt.Errorf("cache %s: %w", r.FullTicker, err)
			}
		}
	}

	d.log.WithFields(map[string]interface{}{
		"records":  len(records),
		"postgres": pg != nil,
		"redis":    cache != nil,
	}).Info("Price records imported")
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Imported %d price records\n", len(records))
	return nil
}
