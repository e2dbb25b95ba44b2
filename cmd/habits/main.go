// Command habits はソーシャル習慣トラッカーのAPIサーバー・ワーカー・対話CLIを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/habits/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
