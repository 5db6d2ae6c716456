package config

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dooshek/murmur/internal/fileops"
	"github.com/dooshek/murmur/internal/logger"
	"github.com/fatih/color"
)

// RunWizard asks for the analysis service location and alert settings on the
// terminal and saves the result to the default config directory.
func RunWizard() error {
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return fmt.Errorf("failed to initialize file operations: %w", err)
	}
	cfg, err := RunWizardWith(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	return SaveConfigTo(fileOps, cfg)
}

// RunWizardWith runs the interactive prompts against in/out and returns the
// resulting config without saving it.
func RunWizardWith(in io.Reader, out io.Writer) (*Config, error) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	reader := bufio.NewReader(in)
	cfg := DefaultConfig()

	bold.Fprintln(out, "\n🎧 Welcome to the Murmur configuration wizard!")
	fmt.Fprintln(out, "\nThis wizard points murmur at your analysis server and sets alert options.")

	for {
		cyan.Fprintf(out, "\nAnalysis server URL [%s]: ", cfg.Analysis.BaseURL)
		answer, err := readLine(reader)
		if err != nil {
			logger.Error("Failed to read input", err)
			return nil, err
		}
		if answer == "" {
			break
		}
		if !strings.Contains(answer, "://") {
			answer = "http://" + answer
		}
		if u, err := url.Parse(answer); err != nil || u.Host == "" {
			yellow.Fprintf(out, "%q is not a valid URL, try again.\n", answer)
			continue
		}
		cfg.Analysis.BaseURL = strings.TrimRight(answer, "/")
		break
	}

	for {
		cyan.Fprintf(out, "Alert threshold 0-1 [%.2f]: ", cfg.Alerts.Threshold)
		answer, err := readLine(reader)
		if err != nil {
			return nil, err
		}
		if answer == "" {
			break
		}
		v, err := strconv.ParseFloat(answer, 64)
		if err != nil || v <= 0 || v > 1 {
			yellow.Fprintln(out, "Threshold must be a number in (0, 1].")
			continue
		}
		cfg.Alerts.Threshold = v
		break
	}

	for {
		cyan.Fprintf(out, "Minimum time between alerts [%s]: ", cfg.Alerts.Cooldown)
		answer, err := readLine(reader)
		if err != nil {
			return nil, err
		}
		if answer == "" {
			break
		}
		d, err := time.ParseDuration(answer)
		if err != nil || d < 0 {
			yellow.Fprintln(out, "Use a duration like 10s or 1m.")
			continue
		}
		cfg.Alerts.Cooldown = d
		break
	}

	cyan.Fprint(out, "Enable the Ctrl+Shift+M toggle hotkey? [y/N]: ")
	answer, err := readLine(reader)
	if err != nil {
		return nil, err
	}
	answer = strings.ToLower(answer)
	cfg.Hotkey.Enabled = answer == "y" || answer == "yes"

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	green.Fprintf(out, "\n✅ Using analysis server %s\n", cfg.Analysis.BaseURL)
	return cfg, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, line)
	return strings.TrimSpace(line), nil
}
