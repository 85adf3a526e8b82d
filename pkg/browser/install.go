package browser

import (
	"fmt"

	"NewsSmoke/pkg/logger"

	"github.com/playwright-community/playwright-go"
)

// InstallDeps downloads the Playwright driver and Chromium browser.
// Required once per machine before any check can launch a session.
func InstallDeps(log *logger.Logger) error {
	log.Info("Installing Playwright driver and Chromium browser...")
	err := playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to install Playwright browsers: %w", err)
	}
	log.Info("Playwright installation complete")
	return nil
}

// CheckDeps reports whether the Playwright driver is installed.
func CheckDeps() bool {
	driver, err := playwright.NewDriver(&playwright.RunOptions{
		SkipInstallBrowsers: true,
		Verbose:             false,
	})
	if err != nil {
		return false
	}
	// fails when the driver binary is missing
	cmd := driver.Command("--version")
	return cmd.Run() == nil
}
