package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner to stderr.
func PrintBanner(config *Config, logger *Logger) {
	version := GetVersion()
	build := GetBuild()
	serviceURL := fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)

	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 70
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	art := []string{
		`        d8888 8888888 888     888 8888888888 8888888 888      8888888 Y88b   d88P`,
		`       d88888   888   888     888 888          888   888        888    Y88b d88P`,
		`      d88P888   888   888     888 888          888   888        888     Y88o88P`,
		`     d88P 888   888   Y88b   d88P 8888888      888   888        888      Y888P`,
		`    d88P  888   888    Y88b d88P  888          888   888        888      d888b`,
		`   d88P   888   888     Y88o88P   888          888   888        888     d88888b`,
		`  d8888888888   888      Y888P    888          888   888        888    d88P Y88b`,
		` d88P     888 8888888     Y8P     8888888888 8888888 88888888 8888888 d88P   Y88b`,
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s\n", hr)
	fmt.Fprintf(os.Stderr, "\n")
	for _, line := range art {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", textColor, line, banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s  Authentication & MCP Gateway%s\n", textColor, banner.ColorReset)
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Version:   %s (build %s)\n", version, build)
	fmt.Fprintf(os.Stderr, "  Listen:    %s\n", serviceURL)
	fmt.Fprintf(os.Stderr, "  Issuer:    %s\n", config.Issuer())
	fmt.Fprintf(os.Stderr, "  Storage:   %s\n", config.Storage.Backend)
	fmt.Fprintf(os.Stderr, "  Knowledge: %s\n", config.Knowledge.BaseURL)
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s\n", hr)
	fmt.Fprintf(os.Stderr, "\n")
}
