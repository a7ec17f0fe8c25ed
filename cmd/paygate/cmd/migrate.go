package cmd

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"paygate/pkg/logger"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "执行数据库迁移",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
	SilenceUsage: true,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "回滚全部迁移")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	m, err := migrate.New("file://migrations", cfg.DB.MigrateURL())
	if err != nil {
		return fmt.Errorf("初始化迁移失败: %w", err)
	}

	if migrateDown {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("迁移执行失败: %w", err)
	}

	logger.Info("数据库迁移完成")
	return nil
}
