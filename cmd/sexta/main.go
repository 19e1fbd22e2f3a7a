// Command sexta は認証APIサーバー、リセットトークンのクリアワーカー、
// マイグレーションをサブコマンドで切り替えて起動する。
package main

import (
	"fmt"
	"os"

	"github.com/sextafeira/sexta/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
