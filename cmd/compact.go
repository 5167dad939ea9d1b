package cmd

import (
	"context"
	"fmt"
)

// Compact compacts the vault database to reclaim unused space
func Compact(_ context.Context, env Env) {
	app := env.open()
	defer closeApp(app)

	sizeBefore := diskSize(app.Path())
	if err := app.Compact(); err != nil {
		HandleError(err)
	}
	sizeAfter := diskSize(app.Path())

	fmt.Printf("Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(sizeAfter))
}
