// Command todoman はOTPログイン付きTODO管理APIのエントリーポイント。
//
//	todoman [serve]          APIサーバー
//	todoman worker           Redisキューのメール配信ワーカー
//	todoman migrate [up]     マイグレーション適用
//	todoman migrate down [N] マイグレーションをN件巻き戻す
//	todoman healthcheck      /healthの疎通確認（Dockerヘルスチェック用）
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/todoman/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
