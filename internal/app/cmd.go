package app

import (
	"fmt"
	"strconv"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はRedisキューのメール配信ワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// MigrateOptions はmigrateサブコマンドの引数。
type MigrateOptions struct {
	Down  bool
	Steps int
}

// ParseMigrateArgs はmigrate以降の引数を解析する。
//
//	migrate            全ての未適用マイグレーションを適用
//	migrate up         同上
//	migrate down [N]   N件（省略時1件）巻き戻す
func ParseMigrateArgs(args []string) (MigrateOptions, error) {
	if len(args) == 0 || args[0] == "up" {
		if len(args) > 1 {
			return MigrateOptions{}, fmt.Errorf("migrate up takes no arguments, got %v", args[1:])
		}
		return MigrateOptions{}, nil
	}

	if args[0] != "down" {
		return MigrateOptions{}, fmt.Errorf("unknown migrate direction %q", args[0])
	}

	opts := MigrateOptions{Down: true, Steps: 1}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return MigrateOptions{}, fmt.Errorf("migrate down steps must be a positive integer, got %q", args[1])
		}
		opts.Steps = n
	}
	return opts, nil
}
