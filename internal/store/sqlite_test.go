package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"futures-orderbot/internal/config"
)

func TestOpen_FileCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "events.db")

	s, err := Open(config.DatabaseConfig{Path: path, MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}
	defer s.Close()

	if err := s.Migrate(context.Background(), `CREATE TABLE t (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("Migrate 失败: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("数据库文件未创建: %v", err)
	}
	if s.Path() != path {
		t.Fatalf("期望路径 %s, got %s", path, s.Path())
	}
}

func TestOpen_InMemorySharesSingleConnection(t *testing.T) {
	s, err := Open(config.DatabaseConfig{InMemory: true, MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Migrate(ctx, `CREATE TABLE t (v TEXT)`, `INSERT INTO t (v) VALUES ('a')`); err != nil {
		t.Fatalf("Migrate 失败: %v", err)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM t`).Scan(&count); err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if count != 1 {
		t.Fatalf("期望 1 行, got %d", count)
	}
}

func TestMigrate_ReportsBadStatement(t *testing.T) {
	s, err := Open(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}
	defer s.Close()

	if err := s.Migrate(context.Background(), `CREATE TABL broken`); err == nil {
		t.Fatal("期望建表语句错误")
	}
}
