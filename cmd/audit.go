package cmd

import (
	"context"
	"fmt"
)

// Audit prints the vault health report
func Audit(ctx context.Context, env Env) {
	app := env.openUnlocked(ctx)
	defer closeApp(app)

	report, err := app.Audit(ctx)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Security score: %d/100\n\n", report.Score)
	fmt.Printf("Entries: %d\n", report.Total)
	fmt.Printf("  secure: %d\n", report.SecureCount)
	fmt.Printf("  strong: %d\n", report.StrongCount)
	fmt.Printf("  medium: %d\n", report.MediumCount)
	fmt.Printf("  weak:   %d\n", report.WeakCount)
	fmt.Printf("  reused: %d\n", report.ReusedCount)

	if len(report.Alerts) == 0 {
		return
	}
	fmt.Println("\nAlerts:")
	for _, a := range report.Alerts {
		fmt.Printf("  [%s] %s\n", a.Kind, a.Message)
	}
}
