package metastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrRecordNotFound 元数据记录不存在
var ErrRecordNotFound = errors.New("metastore: record not found")

const lockStripes = 32

// Store 基于文件的元数据存储，每张图片对应一个 <storedFilename>.json。
// 写入先落临时文件再 rename，同一 key 的写操作串行化。
type Store struct {
	absBasePath string
	locks       [lockStripes]sync.Mutex
}

// NewStore 创建元数据存储
func NewStore(basePath string) (*Store, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory '%s': %w", absPath, err)
	}

	return &Store{absBasePath: absPath}, nil
}

// Save 持久化一条记录，key 为记录的 StoredFilename
func (s *Store) Save(record *ImageRecord) error {
	if record == nil {
		return errors.New("metastore: nil record")
	}
	if !isValidKey(record.StoredFilename) {
		return fmt.Errorf("metastore: invalid stored filename: %s", record.StoredFilename)
	}
	if record.Width <= 0 || record.Height <= 0 {
		return fmt.Errorf("metastore: refusing to persist record '%s' without dimensions", record.ID)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record '%s': %w", record.ID, err)
	}

	lock := s.lockFor(record.StoredFilename)
	lock.Lock()
	defer lock.Unlock()

	finalPath := s.pathFor(record.StoredFilename)

	tmp, err := os.CreateTemp(s.absBasePath, "record-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp metadata file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp metadata file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to commit metadata for '%s': %w", record.StoredFilename, err)
	}

	return nil
}

// Get 按 storedFilename 读取一条记录
func (s *Store) Get(storedFilename string) (*ImageRecord, error) {
	if !isValidKey(storedFilename) {
		return nil, fmt.Errorf("metastore: invalid stored filename: %s", storedFilename)
	}

	data, err := os.ReadFile(s.pathFor(storedFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read metadata for '%s': %w", storedFilename, err)
	}

	var record ImageRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("corrupt metadata for '%s': %w", storedFilename, err)
	}

	return &record, nil
}

// List 读取全部记录，损坏或不可读的条目跳过并记录日志
func (s *Store) List() ([]*ImageRecord, error) {
	entries, err := os.ReadDir(s.absBasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata directory: %w", err)
	}

	records := make([]*ImageRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.absBasePath, entry.Name()))
		if err != nil {
			log.Printf("[metastore] skipping unreadable record %s: %v", entry.Name(), err)
			continue
		}

		var record ImageRecord
		if err := json.Unmarshal(data, &record); err != nil {
			log.Printf("[metastore] skipping corrupt record %s: %v", entry.Name(), err)
			continue
		}

		records = append(records, &record)
	}

	return records, nil
}

// Delete 删除一条记录，不存在时返回 ErrRecordNotFound
func (s *Store) Delete(storedFilename string) error {
	if !isValidKey(storedFilename) {
		return fmt.Errorf("metastore: invalid stored filename: %s", storedFilename)
	}

	lock := s.lockFor(storedFilename)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.pathFor(storedFilename)); err != nil {
		if os.IsNotExist(err) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("failed to delete metadata for '%s': %w", storedFilename, err)
	}
	return nil
}

// Health 检查元数据目录可读
func (s *Store) Health() error {
	_, err := os.ReadDir(s.absBasePath)
	return err
}

// BasePath 返回元数据目录绝对路径
func (s *Store) BasePath() string {
	return s.absBasePath
}

func (s *Store) pathFor(storedFilename string) string {
	return filepath.Join(s.absBasePath, storedFilename+".json")
}

func (s *Store) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockStripes]
}

// isValidKey 校验 key 不含路径穿越成分
func isValidKey(key string) bool {
	if key == "" || filepath.IsAbs(key) || strings.Contains(key, "..") {
		return false
	}

	for _, r := range key {
		if !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.') {
			return false
		}
	}

	return true
}
