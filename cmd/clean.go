package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soramiyu/picture-api/config"
	"github.com/soramiyu/picture-api/metastore"
	"github.com/soramiyu/picture-api/storage"
)

// cleanCmd 清理孤儿元数据、孤儿文件和临时文件
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean orphan metadata records and temp files",
	Long: `Clean orphan metadata records and temp files.
This includes:
  - Delete metadata records without corresponding image files
  - Delete image files without corresponding metadata records
  - Clean temp folder files`,
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		tempOnly, _ := cmd.Flags().GetBool("temp-only")
		metaOnly, _ := cmd.Flags().GetBool("meta-only")
		storageOnly, _ := cmd.Flags().GetBool("storage-only")

		if err := runClean(dryRun, tempOnly, metaOnly, storageOnly); err != nil {
			log.Fatalf("Clean failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().Bool("dry-run", false, "Only show what would be cleaned, don't actually delete")
	cleanCmd.Flags().Bool("temp-only", false, "Only clean temp files")
	cleanCmd.Flags().Bool("meta-only", false, "Only clean orphan metadata records")
	cleanCmd.Flags().Bool("storage-only", false, "Only clean orphan image files")
}

// cleanStats 清理统计信息
type cleanStats struct {
	orphanMetaRecords   int
	orphanStorageFiles  int
	deletedTempFiles    int
	deletedMetaRecords  int
	deletedStorageFiles int
	errors              []string
}

// runClean 执行清理
func runClean(dryRun, tempOnly, metaOnly, storageOnly bool) error {
	config.InitConfig()
	cfg := config.Get()

	store, err := metastore.NewStore(cfg.MetadataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize metadata store: %w", err)
	}

	storageFactory, err := storage.NewFactory(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	stats := &cleanStats{}

	if !tempOnly && !storageOnly {
		if err := cleanOrphanMetaRecords(store, storageFactory, stats, dryRun); err != nil {
			stats.errors = append(stats.errors, fmt.Sprintf("clean orphan metadata records failed: %v", err))
		}
	}

	if !tempOnly && !metaOnly {
		if err := cleanOrphanStorageFiles(cfg, store, stats, dryRun); err != nil {
			stats.errors = append(stats.errors, fmt.Sprintf("clean orphan image files failed: %v", err))
		}
	}

	if !metaOnly && !storageOnly {
		if err := cleanTempFiles(cfg, stats, dryRun); err != nil {
			stats.errors = append(stats.errors, fmt.Sprintf("clean temp files failed: %v", err))
		}
	}

	printCleanStats(stats, dryRun)

	if len(stats.errors) > 0 {
		return fmt.Errorf("encountered %d errors during cleanup", len(stats.errors))
	}

	return nil
}

// cleanOrphanMetaRecords 清理没有对应图片文件的元数据记录
func cleanOrphanMetaRecords(store *metastore.Store, storageFactory *storage.Factory, stats *cleanStats, dryRun bool) error {
	log.Println("Checking for orphan metadata records...")

	provider := storageFactory.GetDefault()

	records, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list metadata records: %w", err)
	}

	for _, record := range records {
		exists, err := provider.Exists(context.Background(), record.StoredFilename)
		if err != nil {
			log.Printf("Warning: failed to check existence of %s: %v", record.StoredFilename, err)
			continue
		}
		if exists {
			continue
		}

		stats.orphanMetaRecords++
		if dryRun {
			log.Printf("[DRY-RUN] Would delete orphan metadata record: ID=%s, File=%s", record.ID, record.StoredFilename)
			continue
		}

		if err := store.Delete(record.StoredFilename); err != nil {
			log.Printf("Warning: failed to delete metadata record %s: %v", record.StoredFilename, err)
		} else {
			stats.deletedMetaRecords++
			log.Printf("Deleted orphan metadata record: %s", record.StoredFilename)
		}
	}

	return nil
}

// cleanOrphanStorageFiles 清理没有对应元数据记录的图片文件
func cleanOrphanStorageFiles(cfg *config.Config, store *metastore.Store, stats *cleanStats, dryRun bool) error {
	log.Println("Checking for orphan image files...")

	if cfg.StorageType != "" && cfg.StorageType != "local" {
		log.Printf("Storage type '%s' does not support orphan file detection yet", cfg.StorageType)
		return nil
	}

	records, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list metadata records: %w", err)
	}

	knownFiles := make(map[string]bool)
	for _, record := range records {
		knownFiles[record.StoredFilename] = true
	}

	entries, err := os.ReadDir(cfg.UploadDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read upload directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || knownFiles[entry.Name()] {
			continue
		}
		// 元数据目录与上传目录重合时跳过 sidecar 文件
		if strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		stats.orphanStorageFiles++
		path := filepath.Join(cfg.UploadDir, entry.Name())
		if dryRun {
			log.Printf("[DRY-RUN] Would delete orphan file: %s", path)
			continue
		}

		if err := os.Remove(path); err != nil {
			log.Printf("Warning: failed to delete orphan file %s: %v", path, err)
		} else {
			stats.deletedStorageFiles++
			log.Printf("Deleted orphan file: %s", path)
		}
	}

	return nil
}

// cleanTempFiles 清理临时文件
func cleanTempFiles(cfg *config.Config, stats *cleanStats, dryRun bool) error {
	log.Println("Checking for temp files...")

	entries, err := os.ReadDir(cfg.TempDir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Println("Temp directory does not exist, skipping...")
			return nil
		}
		return fmt.Errorf("failed to read temp directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if dryRun {
			log.Printf("[DRY-RUN] Would delete temp file: %s", entry.Name())
			continue
		}

		path := filepath.Join(cfg.TempDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Printf("Warning: failed to delete temp file %s: %v", entry.Name(), err)
		} else {
			stats.deletedTempFiles++
			log.Printf("Deleted temp file: %s", entry.Name())
		}
	}

	return nil
}

// printCleanStats 打印清理统计
func printCleanStats(stats *cleanStats, dryRun bool) {
	fmt.Println()
	fmt.Println("========================================")
	if dryRun {
		fmt.Println("           [DRY RUN MODE]")
	}
	fmt.Println("         Clean Statistics")
	fmt.Println("========================================")
	fmt.Printf("Orphan metadata records found: %d\n", stats.orphanMetaRecords)
	fmt.Printf("Orphan image files found:      %d\n", stats.orphanStorageFiles)
	fmt.Printf("Metadata records deleted:      %d\n", stats.deletedMetaRecords)
	fmt.Printf("Image files deleted:           %d\n", stats.deletedStorageFiles)
	fmt.Printf("Temp files deleted:            %d\n", stats.deletedTempFiles)
	fmt.Println("========================================")

	if len(stats.errors) > 0 {
		fmt.Println("\nErrors encountered:")
		for _, err := range stats.errors {
			fmt.Printf("  - %s\n", err)
		}
	}
}
